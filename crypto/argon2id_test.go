package crypto_test

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"sectf/crypto"
	"sectf/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheap = crypto.Argon2idParams{Iterations: 1, MemoryKiB: 15 * 1024, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newHasher(t *testing.T, params crypto.Argon2idParams) *crypto.Argon2idHasher {
	t.Helper()
	hasher, err := crypto.NewArgon2idHasher(params)
	require.NoError(t, err)
	return hasher
}

func TestHash(t *testing.T) {
	hasher := newHasher(t, cheap)

	hash, err := hasher.Hash("operator-password")

	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id"), "Hash should start with argon2id prefix")
}

func TestCompare(t *testing.T) {
	hasher := newHasher(t, cheap)
	password := "elevator_operator_1"

	hash, _ := hasher.Hash(password)

	match, err := hasher.Compare(hash, password)
	assert.NoError(t, err)
	assert.True(t, match, "Password should match")

	match, err = hasher.Compare(hash, "wrong_password")
	assert.NoError(t, err)
	assert.False(t, match, "Password should not match")

	match, err = hasher.Compare("invalid-hash-string", password)
	assert.ErrorIs(t, err, domain.HashingError)
	assert.False(t, match)
}

func TestHasherParams(t *testing.T) {
	params := crypto.Argon2idParams{Iterations: 2, MemoryKiB: 12 * 1024, Parallelism: 2, SaltLength: 16, KeyLength: 32}
	hasher := newHasher(t, params)

	hash, err := hasher.Hash("test_param_check")
	assert.NoError(t, err)

	// $argon2id$v=19$m=12288,t=2,p=2$salt$key
	parts := strings.Split(hash, "$")
	assert.Len(t, parts, 6)
	assert.Equal(t, fmt.Sprintf("m=%d,t=%d,p=%d", params.MemoryKiB, params.Iterations, params.Parallelism), parts[3])

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	assert.NoError(t, err)
	assert.Len(t, salt, int(params.SaltLength))

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	assert.NoError(t, err)
	assert.Len(t, key, int(params.KeyLength))
}

func TestNewArgon2idHasherRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*crypto.Argon2idParams)
	}{
		{"no iterations", func(p *crypto.Argon2idParams) { p.Iterations = 0 }},
		{"no parallelism", func(p *crypto.Argon2idParams) { p.Parallelism = 0 }},
		{"memory below lanes", func(p *crypto.Argon2idParams) { p.Parallelism = 4; p.MemoryKiB = 16 }},
		{"short salt", func(p *crypto.Argon2idParams) { p.SaltLength = 4 }},
		{"short key", func(p *crypto.Argon2idParams) { p.KeyLength = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := crypto.DefaultArgon2idParams
			tt.modify(&params)
			hasher, err := crypto.NewArgon2idHasher(params)
			assert.ErrorIs(t, err, domain.HashingError)
			assert.Nil(t, hasher)
		})
	}
}

func TestCheckHash(t *testing.T) {
	hasher := newHasher(t, cheap)
	hash, err := hasher.Hash("operator-password")
	require.NoError(t, err)
	assert.NoError(t, hasher.CheckHash(hash))

	stronger := newHasher(t, crypto.Argon2idParams{Iterations: 2, MemoryKiB: 15 * 1024, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	assert.ErrorIs(t, stronger.CheckHash(hash), crypto.ErrWeakHashParams)

	// A stronger stored hash still verifies under a cheaper hasher.
	strong, err := stronger.Hash("operator-password")
	require.NoError(t, err)
	assert.NoError(t, hasher.CheckHash(strong))
	match, err := hasher.Compare(strong, "operator-password")
	require.NoError(t, err)
	assert.True(t, match)

	assert.ErrorIs(t, hasher.CheckHash("$argon2id$v=19$broken"), domain.HashingError)
}
