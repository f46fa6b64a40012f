package auth

import (
	"context"
	"time"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

type TokenManager interface {
	Generate(subject, room string, now time.Time) (string, error)
	Verify(token string) (subject, room string, err error)
}

type AuthService interface {
	Login(ctx context.Context, password string) (string, error)
	VerifyToken(token string) (string, error)
	GenerateToken(subject string) (string, error)
}
