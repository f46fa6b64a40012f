// Package auth guards the control API of a player node. There is a single
// operator per node, identified by a password whose argon2id hash comes
// from the environment.
package auth

import (
	"context"
	"fmt"
	"time"
)

const OperatorSubject = "operator"

type service struct {
	passwordHash string
	room         string
	hasher       PasswordHasher
	tokens       TokenManager
	now          func() time.Time
}

// NewService binds tokens to room so a token issued by another node's
// operator does not work here.
func NewService(passwordHash, room string, hasher PasswordHasher, tokens TokenManager) *service {
	return &service{
		passwordHash: passwordHash,
		room:         room,
		hasher:       hasher,
		tokens:       tokens,
		now:          time.Now,
	}
}

func (s *service) Login(ctx context.Context, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	match, err := s.hasher.Compare(s.passwordHash, password)
	if err != nil {
		return "", err
	}
	if !match {
		return "", ErrIncorrectPassword
	}
	return s.GenerateToken(OperatorSubject)
}

// VerifyToken returns the subject of a valid token issued for this room.
func (s *service) VerifyToken(token string) (string, error) {
	subject, room, err := s.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	if room != s.room {
		return "", fmt.Errorf("%w: %s", ErrWrongRoom, room)
	}
	return subject, nil
}

func (s *service) GenerateToken(subject string) (string, error) {
	return s.tokens.Generate(subject, s.room, s.now())
}
