package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore is the subset of the database the authenticator needs
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*database.UserRecord, error)
	SaveUser(ctx context.Context, u *database.UserRecord) (int64, error)
}

// Authenticator checks operator credentials and issues tokens
type Authenticator struct {
	users      UserStore
	jwtManager *JWTManager
}

// NewAuthenticator creates an authenticator backed by the users table
func NewAuthenticator(users UserStore, jwtManager *JWTManager) *Authenticator {
	return &Authenticator{users: users, jwtManager: jwtManager}
}

// Authenticate validates credentials and returns a JWT token and its expiry (unix seconds)
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (string, int64, error) {
	u, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", 0, err
	}
	if u == nil {
		return "", 0, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(u.ID, u.Username, u.Role)
	if err != nil {
		return "", 0, err
	}

	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a JWT token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
// password may already be a bcrypt hash.
func (a *Authenticator) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	existing, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	hash := password
	if !isBcryptHash(password) {
		if hash, err = HashPassword(password); err != nil {
			return false, fmt.Errorf("failed to hash admin password: %w", err)
		}
	}

	_, err = a.users.SaveUser(ctx, &database.UserRecord{
		Username:     username,
		PasswordHash: hash,
		FullName:     username,
		Role:         "ADMIN",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && s[0] == '$'
}

// HashPassword creates a bcrypt hash of a password (utility function)
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
