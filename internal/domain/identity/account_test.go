package identity

import (
	"errors"
	"testing"

	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEmployee() roster.Employee {
	return roster.Employee{
		ID:         "42",
		Code:       "JDoe",
		FullName:   "Jane Doe",
		Email:      "Jane.Doe@Example.com",
		Role:       roster.RoleManager,
		Department: "Kitchen",
		Position:   "Chef",
		Status:     roster.StatusActive,
	}
}

func TestNewEmployeeAccount(t *testing.T) {
	t.Run("links the employee and copies the profile", func(t *testing.T) {
		emp := sampleEmployee()
		acc, err := NewEmployeeAccount(emp, "JDoe", "Welcome123")

		require.NoError(t, err)
		require.NotNil(t, acc.EmployeeID)
		assert.Equal(t, "42", *acc.EmployeeID)
		assert.Equal(t, "jdoe", acc.Username)
		assert.True(t, acc.MustChangePassword)
		assert.False(t, acc.IsSystem())
		assert.Equal(t, ProfileOf(emp), acc.Profile())
		assert.Equal(t, "jane.doe@example.com", acc.Email)
		assert.True(t, acc.VerifyCredential("Welcome123"))
	})

	t.Run("rejects an empty username", func(t *testing.T) {
		_, err := NewEmployeeAccount(sampleEmployee(), "", "Welcome123")
		assert.Error(t, err)
	})

	t.Run("rejects a weak default credential", func(t *testing.T) {
		_, err := NewEmployeeAccount(sampleEmployee(), "jdoe", "short")
		assert.True(t, errors.Is(err, shared.ErrInvalidCredential))
	})

	t.Run("accepts a precomputed hash", func(t *testing.T) {
		hash, err := HashCredential("Welcome123")
		require.NoError(t, err)

		a, err := NewEmployeeAccountWithHash(sampleEmployee(), "jdoe", hash)
		require.NoError(t, err)
		b, err := NewEmployeeAccountWithHash(roster.Employee{ID: "43", Code: "asmith"}, "asmith", hash)
		require.NoError(t, err)

		assert.True(t, a.VerifyCredential("Welcome123"))
		assert.True(t, b.VerifyCredential("Welcome123"))
		assert.NotEqual(t, a.ID, b.ID)

		_, err = NewEmployeeAccountWithHash(sampleEmployee(), "jdoe", "")
		assert.True(t, errors.Is(err, shared.ErrInvalidCredential))
	})
}

func TestAccountIDFor(t *testing.T) {
	hash, err := HashCredential("Welcome123")
	require.NoError(t, err)

	first, err := NewEmployeeAccountWithHash(sampleEmployee(), "jdoe", hash)
	require.NoError(t, err)
	second, err := NewEmployeeAccountWithHash(sampleEmployee(), "jane.doe", hash)
	require.NoError(t, err)

	assert.Equal(t, AccountIDFor("42"), first.ID)
	assert.Equal(t, first.ID, second.ID, "the owning employee alone decides the id")
	assert.NotEqual(t, AccountIDFor("42"), AccountIDFor("43"))
	assert.NotEqual(t, AccountIDFor("root"), SystemAccountIDFor("root"))
	assert.Equal(t, SystemAccountIDFor("root"), SystemAccountIDFor(" ROOT "))
}

func TestNewSystemAccount(t *testing.T) {
	acc, err := NewSystemAccount("Admin", "Admin12345", "admin")

	require.NoError(t, err)
	assert.Equal(t, SystemAccountIDFor("admin"), acc.ID)
	assert.True(t, acc.IsSystem())
	assert.Equal(t, "admin", acc.Username)
	assert.True(t, acc.CanLogin())
	assert.False(t, acc.MustChangePassword)
}

func TestAccount_ApplyProfile(t *testing.T) {
	acc, err := NewEmployeeAccount(sampleEmployee(), "jdoe", "Welcome123")
	require.NoError(t, err)
	before := acc.UpdatedAt

	t.Run("reports no change for an identical profile", func(t *testing.T) {
		assert.False(t, acc.ApplyProfile(acc.Profile()))
		assert.Equal(t, before, acc.UpdatedAt)
	})

	t.Run("copies changed fields", func(t *testing.T) {
		emp := sampleEmployee()
		emp.Department = "Front of house"
		emp.Status = roster.StatusInactive

		assert.True(t, acc.ApplyProfile(ProfileOf(emp)))
		assert.Equal(t, "Front of house", acc.Department)
		assert.Equal(t, AccountStatusInactive, acc.Status)
		assert.False(t, acc.CanLogin())
	})
}

func TestAccount_ChangeCredential(t *testing.T) {
	t.Run("fails with the wrong old credential and keeps the hash", func(t *testing.T) {
		acc, err := NewEmployeeAccount(sampleEmployee(), "jdoe", "Welcome123")
		require.NoError(t, err)
		hash := acc.PasswordHash

		err = acc.ChangeCredential("nope12345", "Changed123")

		assert.True(t, errors.Is(err, shared.ErrCredentialMismatch))
		assert.Equal(t, hash, acc.PasswordHash)
		assert.True(t, acc.MustChangePassword)
	})

	t.Run("clears the must-change flag on success", func(t *testing.T) {
		acc, err := NewEmployeeAccount(sampleEmployee(), "jdoe", "Welcome123")
		require.NoError(t, err)

		require.NoError(t, acc.ChangeCredential("Welcome123", "Changed123"))

		assert.False(t, acc.MustChangePassword)
		assert.True(t, acc.VerifyCredential("Changed123"))
		assert.False(t, acc.VerifyCredential("Welcome123"))
	})

	t.Run("validates the new credential", func(t *testing.T) {
		acc, err := NewEmployeeAccount(sampleEmployee(), "jdoe", "Welcome123")
		require.NoError(t, err)

		err = acc.ChangeCredential("Welcome123", "lettersonly")
		assert.True(t, errors.Is(err, shared.ErrInvalidCredential))
		assert.True(t, acc.VerifyCredential("Welcome123"))
	})
}

func TestAccount_ResetCredential(t *testing.T) {
	acc, err := NewEmployeeAccount(sampleEmployee(), "jdoe", "Welcome123")
	require.NoError(t, err)

	require.NoError(t, acc.ResetCredential("Reset12345", false))
	assert.False(t, acc.MustChangePassword)
	assert.True(t, acc.VerifyCredential("Reset12345"))

	require.NoError(t, acc.ResetCredential("Reset67890", true))
	assert.True(t, acc.MustChangePassword)
}

func TestAccount_CloneAndView(t *testing.T) {
	acc, err := NewEmployeeAccount(sampleEmployee(), "jdoe", "Welcome123")
	require.NoError(t, err)

	clone := acc.Clone()
	*clone.EmployeeID = "other"
	assert.Equal(t, "42", *acc.EmployeeID)

	view := acc.View()
	assert.Equal(t, "jdoe", view.Username)
	assert.False(t, view.System)
	assert.Equal(t, acc.ID.String(), view.ID)
}

func TestValidateCredential(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		wantErr    bool
	}{
		{"valid", "Password123", false},
		{"empty", "", true},
		{"too short", "Pass1", true},
		{"no digit", "Password", true},
		{"no letter", "12345678", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredential(tt.credential)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
