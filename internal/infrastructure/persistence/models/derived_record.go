package models

import "time"

// DerivedRecord is one named, locally derived document. The account store is
// persisted as the "accounts" record.
type DerivedRecord struct {
	Name        string    `gorm:"column:name;primaryKey;size:100"`
	Payload     string    `gorm:"column:payload;type:text;not null"`
	LastUpdated time.Time `gorm:"column:last_updated;not null"`
	Version     int       `gorm:"column:version;not null;default:1"`
	// Revision guards concurrent saves from several execution contexts
	Revision int64 `gorm:"column:revision;not null;default:0"`
}

// TableName returns the table name for GORM
func (DerivedRecord) TableName() string {
	return "derived_records"
}
