package identity

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/triolingo/backend/core"
)

// Password bounds, in bytes. bcrypt rejects passwords longer than PasswordMaxLen.
const (
	PasswordMinLen = 6
	PasswordMaxLen = 72
)

// Identity is what a verified bearer credential tells about its holder.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Account is the identity provider's credential record.
type Account struct {
	UID          string
	Email        string // lower-cased, unique
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time // UTC
	UpdatedAt    time.Time // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

func (a Account) Identity() Identity {
	return Identity{UID: a.UID, Email: a.Email, Name: a.Name}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (c Claims) Identity() Identity {
	return Identity{UID: c.Subject, Email: c.Email, Name: c.Name}
}

type (
	// Repository stores Accounts.
	Repository interface {
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccountByEmail(ctx context.Context, email string) (Account, error)
		UpdateAccountPassword(ctx context.Context, uid string, hash []byte, updatedAt time.Time) error
	}

	// Revoker keeps the IDs of tokens that must no longer be accepted.
	Revoker interface {
		Revoke(ctx context.Context, tokenID string, until time.Time) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}

	// Verifier turns a bearer credential into an Identity.
	Verifier interface {
		Verify(ctx context.Context, token string) (Identity, error)
	}
)

// Credentials are submitted on login.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Clean() {
	c.Email = core.CleanString(c.Email, true /* lower */)
}

// NewAccount contains information needed to register an Account.
type NewAccount struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name"`
}

func (na *NewAccount) Clean() {
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Name = core.CleanString(na.Name)
}
