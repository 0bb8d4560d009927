package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccountStatus mirrors the employment status of the owning employee
type AccountStatus string

const (
	AccountStatusActive     AccountStatus = "active"
	AccountStatusInactive   AccountStatus = "inactive"
	AccountStatusTerminated AccountStatus = "terminated"
)

// HashCost is the bcrypt cost used for new credentials. Tests lower it.
var HashCost = 12

// accountNamespace scopes the name-based account ids
var accountNamespace = uuid.MustParse("8c0d7f5e-3b1a-5c2e-9f47-1d6a2b9e4c30")

// AccountIDFor returns the id of the account owned by employeeID. Every
// execution context derives the same id for the same employee.
func AccountIDFor(employeeID string) uuid.UUID {
	return uuid.NewSHA1(accountNamespace, []byte("employee:"+employeeID))
}

// SystemAccountIDFor returns the id of the system account named username
func SystemAccountIDFor(username string) uuid.UUID {
	return uuid.NewSHA1(accountNamespace, []byte("system:"+NormalizeUsername(username)))
}

// Account is a login account derived from an Employee. Accounts without an
// owning employee are system accounts and are never touched by reconciliation.
type Account struct {
	shared.BaseEntity
	EmployeeID         *string       `json:"employee_id"`
	Username           string        `json:"username"`
	PasswordHash       string        `json:"password_hash"`
	FullName           string        `json:"full_name"`
	Email              string        `json:"email"`
	Department         string        `json:"department"`
	Position           string        `json:"position"`
	Role               string        `json:"role"`
	Status             AccountStatus `json:"status"`
	MustChangePassword bool          `json:"must_change_password"`
	PasswordChangedAt  *time.Time    `json:"password_changed_at,omitempty"`
	LastLoginAt        *time.Time    `json:"last_login_at,omitempty"`
}

// Profile is the set of account fields that must equal the owning employee's
type Profile struct {
	FullName   string
	Email      string
	Department string
	Position   string
	Role       string
	Status     AccountStatus
}

// ProfileOf computes the desired account profile for an employee
func ProfileOf(e roster.Employee) Profile {
	return Profile{
		FullName:   strings.TrimSpace(e.FullName),
		Email:      strings.ToLower(strings.TrimSpace(e.Email)),
		Department: strings.TrimSpace(e.Department),
		Position:   strings.TrimSpace(e.Position),
		Role:       string(e.NormalizedRole()),
		Status:     AccountStatus(e.NormalizedStatus()),
	}
}

// NewEmployeeAccount creates an account linked to an employee with an initial
// credential the user must change on first login.
func NewEmployeeAccount(e roster.Employee, username, credential string) (*Account, error) {
	hash, err := hashCredential(credential)
	if err != nil {
		return nil, err
	}
	return NewEmployeeAccountWithHash(e, username, hash)
}

// NewEmployeeAccountWithHash is NewEmployeeAccount for a credential hashed
// beforehand with HashCredential.
func NewEmployeeAccountWithHash(e roster.Employee, username, hash string) (*Account, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, shared.NewDomainError("INVALID_USERNAME", "Username cannot be empty")
	}
	if hash == "" {
		return nil, shared.NewDomainError(shared.ErrInvalidCredential.Code, "Credential hash cannot be empty")
	}

	employeeID := e.ID.String()
	now := time.Now().UTC()
	a := &Account{
		BaseEntity:         shared.NewBaseEntityWithID(AccountIDFor(employeeID)),
		EmployeeID:         &employeeID,
		Username:           username,
		PasswordHash:       hash,
		MustChangePassword: true,
		PasswordChangedAt:  &now,
	}
	a.ApplyProfile(ProfileOf(e))
	return a, nil
}

// NewSystemAccount creates an account with no owning employee
func NewSystemAccount(username, credential, role string) (*Account, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, shared.NewDomainError("INVALID_USERNAME", "Username cannot be empty")
	}
	hash, err := hashCredential(credential)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Account{
		BaseEntity:        shared.NewBaseEntityWithID(SystemAccountIDFor(username)),
		Username:          username,
		PasswordHash:      hash,
		FullName:          username,
		Role:              role,
		Status:            AccountStatusActive,
		PasswordChangedAt: &now,
	}, nil
}

// IsSystem reports whether the account has no owning employee
func (a *Account) IsSystem() bool {
	return a.EmployeeID == nil || *a.EmployeeID == ""
}

// OwnedBy reports whether the account belongs to the given employee
func (a *Account) OwnedBy(employeeID string) bool {
	return !a.IsSystem() && *a.EmployeeID == employeeID
}

// Profile returns the current profile fields
func (a *Account) Profile() Profile {
	return Profile{
		FullName:   a.FullName,
		Email:      a.Email,
		Department: a.Department,
		Position:   a.Position,
		Role:       a.Role,
		Status:     a.Status,
	}
}

// ApplyProfile copies the profile onto the account. It returns false and
// leaves the account untouched when nothing differs.
func (a *Account) ApplyProfile(p Profile) bool {
	if a.Profile() == p {
		return false
	}
	a.FullName = p.FullName
	a.Email = p.Email
	a.Department = p.Department
	a.Position = p.Position
	a.Role = p.Role
	a.Status = p.Status
	a.Touch()
	return true
}

// Rename changes the username
func (a *Account) Rename(username string) {
	a.Username = NormalizeUsername(username)
	a.Touch()
}

// CanLogin returns true if the account is active
func (a *Account) CanLogin() bool {
	return a.Status == AccountStatusActive
}

// VerifyCredential verifies if the provided credential matches
func (a *Account) VerifyCredential(credential string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(credential))
	return err == nil
}

// ChangeCredential replaces the credential after checking the old one and
// clears the must-change flag.
func (a *Account) ChangeCredential(oldCredential, newCredential string) error {
	if !a.VerifyCredential(oldCredential) {
		return shared.ErrCredentialMismatch
	}
	if err := a.setCredential(newCredential); err != nil {
		return err
	}
	a.MustChangePassword = false
	return nil
}

// ResetCredential sets a new credential without checking the old one
func (a *Account) ResetCredential(newCredential string, forceChange bool) error {
	if err := a.setCredential(newCredential); err != nil {
		return err
	}
	a.MustChangePassword = forceChange
	return nil
}

// RecordLogin records a successful login
func (a *Account) RecordLogin() {
	now := time.Now().UTC()
	a.LastLoginAt = &now
}

func (a *Account) setCredential(credential string) error {
	hash, err := hashCredential(credential)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	a.PasswordHash = hash
	a.PasswordChangedAt = &now
	a.Touch()
	return nil
}

// Clone returns a deep copy
func (a *Account) Clone() *Account {
	c := *a
	if a.EmployeeID != nil {
		id := *a.EmployeeID
		c.EmployeeID = &id
	}
	if a.PasswordChangedAt != nil {
		t := *a.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// AccountView is the public representation of an account, without credential material
type AccountView struct {
	ID                 string        `json:"id"`
	EmployeeID         *string       `json:"employee_id"`
	Username           string        `json:"username"`
	FullName           string        `json:"full_name"`
	Email              string        `json:"email"`
	Department         string        `json:"department"`
	Position           string        `json:"position"`
	Role               string        `json:"role"`
	Status             AccountStatus `json:"status"`
	MustChangePassword bool          `json:"must_change_password"`
	System             bool          `json:"system"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	LastLoginAt        *time.Time    `json:"last_login_at,omitempty"`
}

// View returns the public representation
func (a *Account) View() AccountView {
	c := a.Clone()
	return AccountView{
		ID:                 c.ID.String(),
		EmployeeID:         c.EmployeeID,
		Username:           c.Username,
		FullName:           c.FullName,
		Email:              c.Email,
		Department:         c.Department,
		Position:           c.Position,
		Role:               c.Role,
		Status:             c.Status,
		MustChangePassword: c.MustChangePassword,
		System:             c.IsSystem(),
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
		LastLoginAt:        c.LastLoginAt,
	}
}

// HashCredential validates and hashes a credential with HashCost
func HashCredential(credential string) (string, error) {
	return hashCredential(credential)
}

func hashCredential(credential string) (string, error) {
	if err := ValidateCredential(credential); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), HashCost)
	if err != nil {
		return "", shared.NewDomainError("CREDENTIAL_HASH_ERROR", "Failed to hash credential")
	}
	return string(hash), nil
}

var (
	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit  = regexp.MustCompile(`[0-9]`)
)

// ValidateCredential checks length and composition rules
func ValidateCredential(credential string) error {
	if credential == "" {
		return shared.NewDomainError(shared.ErrInvalidCredential.Code, "Password cannot be empty")
	}
	if len(credential) < 8 {
		return shared.NewDomainError(shared.ErrInvalidCredential.Code, "Password must be at least 8 characters")
	}
	if len(credential) > 72 {
		return shared.NewDomainError(shared.ErrInvalidCredential.Code, "Password cannot exceed 72 characters")
	}
	if !hasLetter.MatchString(credential) || !hasDigit.MatchString(credential) {
		return shared.NewDomainError(shared.ErrInvalidCredential.Code, "Password must contain at least one letter and one number")
	}
	return nil
}
