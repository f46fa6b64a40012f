package crypto

import (
	"errors"
	"fmt"

	"sectf/domain"

	"github.com/alexedwards/argon2id"
)

var ErrWeakHashParams = errors.New("weak-hash-params")

// Argon2idParams is the cost the operator picks for the control API password.
type Argon2idParams struct {
	Iterations uint32
	// MemoryKiB is the memory cost in kibibytes.
	MemoryKiB   uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Iterations:  3,
	MemoryKiB:   64 * 1024,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func (p Argon2idParams) validate() error {
	switch {
	case p.Iterations == 0:
		return fmt.Errorf("%w: iterations", domain.HashingError)
	case p.Parallelism == 0:
		return fmt.Errorf("%w: parallelism", domain.HashingError)
	case p.MemoryKiB < 8*uint32(p.Parallelism):
		return fmt.Errorf("%w: memory below 8 KiB per lane", domain.HashingError)
	case p.SaltLength < 8:
		return fmt.Errorf("%w: salt length %d", domain.HashingError, p.SaltLength)
	case p.KeyLength < 16:
		return fmt.Errorf("%w: key length %d", domain.HashingError, p.KeyLength)
	}
	return nil
}

// weaker reports whether p costs less than floor on any axis.
func (p Argon2idParams) weaker(floor Argon2idParams) bool {
	return p.Iterations < floor.Iterations ||
		p.MemoryKiB < floor.MemoryKiB ||
		p.KeyLength < floor.KeyLength ||
		p.SaltLength < floor.SaltLength
}

// Argon2idHasher guards the operator password of the control API.
type Argon2idHasher struct {
	params Argon2idParams
}

func NewArgon2idHasher(params Argon2idParams) (*Argon2idHasher, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash encodes password in the PHC string form, with the parameters inline.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, &argon2id.Params{
		Memory:      h.params.MemoryKiB,
		Iterations:  h.params.Iterations,
		Parallelism: h.params.Parallelism,
		SaltLength:  h.params.SaltLength,
		KeyLength:   h.params.KeyLength,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.HashingError, err)
	}
	return hash, nil
}

// Compare verifies password against hash using the parameters stored in
// hash, not the hasher's own.
func (h *Argon2idHasher) Compare(hash, password string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.HashingError, err)
	}
	return match, nil
}

// CheckHash parses a stored hash. It returns ErrWeakHashParams when the hash
// is well formed but was made with a lower cost than the hasher's.
func (h *Argon2idHasher) CheckHash(hash string) error {
	params, salt, key, err := argon2id.DecodeHash(hash)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.HashingError, err)
	}
	stored := Argon2idParams{
		Iterations:  params.Iterations,
		MemoryKiB:   params.Memory,
		Parallelism: params.Parallelism,
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}
	if stored.weaker(h.params) {
		return fmt.Errorf("%w: m=%d,t=%d salt=%d key=%d", ErrWeakHashParams,
			stored.MemoryKiB, stored.Iterations, stored.SaltLength, stored.KeyLength)
	}
	return nil
}
