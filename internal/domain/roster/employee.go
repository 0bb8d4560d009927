// Package roster holds the primary entity owned by the remote HR backend.
package roster

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Role is the staff role of an employee
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Status is the employment status of an employee
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusTerminated Status = "terminated"
)

// ID is a backend identifier. The backend sends it either as a JSON string or
// as a number; both decode to the same textual form.
type ID string

// UnmarshalJSON accepts string and numeric identifiers
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier text
func (id ID) String() string {
	return string(id)
}

// Timestamp tolerates the date layouts the backend has been seen to emit.
// Unparseable values decode to the zero time instead of failing the record.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON parses any of the known layouts
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

// MarshalJSON writes RFC3339, or null for the zero time
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// Employee is a staff member as served by the remote backend. The local
// process only ever holds read-through copies.
type Employee struct {
	ID         ID        `json:"id"`
	Code       string    `json:"code"`
	FullName   string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Role       Role      `json:"role"`
	Department string    `json:"department,omitempty"`
	Position   string    `json:"position,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  Timestamp `json:"created_at"`
	UpdatedAt  Timestamp `json:"updated_at"`
}

// IsActive reports whether the employee is active and not terminated
func (e Employee) IsActive() bool {
	return e.NormalizedStatus() == StatusActive
}

// IsTerminated reports whether the employee has left
func (e Employee) IsTerminated() bool {
	return e.NormalizedStatus() == StatusTerminated
}

// NormalizedStatus lowercases the status and defaults an empty value to active
func (e Employee) NormalizedStatus() Status {
	s := Status(strings.ToLower(strings.TrimSpace(string(e.Status))))
	if s == "" {
		return StatusActive
	}
	return s
}

// NormalizedRole lowercases the role and defaults unknown values to employee
func (e Employee) NormalizedRole() Role {
	r := Role(strings.ToLower(strings.TrimSpace(string(e.Role))))
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return r
	}
	return RoleEmployee
}

// Ref is the minimal payload needed to identify an employee, used by delete
// events when the backend returns no body.
type Ref struct {
	ID ID `json:"id"`
}
