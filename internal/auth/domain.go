package auth

import "context"

// Account carries the credential fields of a profile.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
}

// Repository provides credential lookups.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
}
