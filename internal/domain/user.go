package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleCustomer:
		return Role(s), nil
	default:
		return "", NewInvalidArgument("unknown role %q", s)
	}
}

// User is an account. Users referenced by orders are anonymized instead of deleted.
type User struct {
	Record
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	Address      string `json:"address"`
	PasswordHash string `json:"-"`
	Deleted      bool   `json:"deleted"`
}

// NormalizeEmail is the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewUser(name, email string, role Role, address, passwordHash string) (*User, error) {
	u := &User{
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		Role:         role,
		Address:      address,
		PasswordHash: passwordHash,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) Validate() error {
	if u.Name == "" {
		return NewInvalidArgument("user name is required")
	}
	if !strings.Contains(u.Email, "@") {
		return NewInvalidArgument("invalid email %q", u.Email)
	}
	if _, err := ParseRole(string(u.Role)); err != nil {
		return err
	}
	return nil
}

// Anonymize strips personal data while keeping the record for order history.
func (u *User) Anonymize() {
	u.Name = "Deleted user"
	u.Email = fmt.Sprintf("deleted+%s@users.invalid", u.ID)
	u.Address = ""
	u.PasswordHash = ""
	u.Deleted = true
}

func (u *User) Clone() *User {
	c := *u
	return &c
}

// Principal is an already-authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanActFor reports whether p may act on resources owned by userID.
func (p Principal) CanActFor(userID uuid.UUID) bool {
	return p.IsAdmin() || (p.UserID != uuid.Nil && p.UserID == userID)
}
