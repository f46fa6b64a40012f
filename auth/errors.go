package auth

import "errors"

var (
	ErrIncorrectPassword = errors.New("incorrect-password")
	ErrWrongRoom         = errors.New("token-for-another-room")
)
