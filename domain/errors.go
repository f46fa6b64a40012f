package domain

import "errors"

var (
	UnexpectedDatabaseError = errors.New("database-error")
	ErrRecordNotFound       = errors.New("record-not-found")
)

var HashingError = errors.New("hashing-error")

var (
	UnexpectedTokenGenerationError   = errors.New("token-generation-error")
	UnexpectedTokenVerificationError = errors.New("token-verification-error")
	ErrInvalidSigningMethod          = errors.New("invalid-signing-method")
	ErrExpiredToken                  = errors.New("expired-token")
	ErrInvalidTokenSignature         = errors.New("invalid-token-signature")
	ErrCorruptedToken                = errors.New("corrupted-token")
)

var (
	ErrLostKeys    = errors.New("lost-offchain-keys")
	ErrNotInRoom   = errors.New("player-not-in-room")
	ErrRoomInvalid = errors.New("invalid-room-config")
)
