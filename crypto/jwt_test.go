package crypto_test

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"sectf/crypto"
	"sectf/domain"

	"github.com/stretchr/testify/assert"
)

const testSecret = "supersupersecretkey don't share it with anyone"

func TestGenerate(t *testing.T) {
	manager := crypto.NewJWTManager(testSecret, time.Hour)
	now := time.Now()
	token, err := manager.Generate("operator", "42", now)
	assert.NoError(t, err)

	parts := strings.Split(token, ".")
	head, _ := base64.RawURLEncoding.DecodeString(parts[0])
	body, _ := base64.RawURLEncoding.DecodeString(parts[1])
	signature, _ := base64.RawURLEncoding.DecodeString(parts[2])

	assert.JSONEq(t, `{"alg": "HS256","typ": "JWT"}`, string(head))
	assert.JSONEq(t, fmt.Sprintf(`{"sub": "operator", "room": "42", "exp": %d, "iat": %d}`,
		now.Add(time.Hour).Unix(), now.Unix()), string(body))
	assert.Len(t, signature, 256/8)
}

func TestVerify(t *testing.T) {
	manager := crypto.NewJWTManager(testSecret, 2*time.Hour)

	now := time.Now()

	token, _ := manager.Generate("operator", "42", now.Add(-3*time.Hour))
	_, _, err := manager.Verify(token)
	assert.ErrorIs(t, err, domain.ErrExpiredToken)

	token, _ = manager.Generate("operator", "42", now.Add(-time.Hour))
	subject, room, err := manager.Verify(token)
	assert.NoError(t, err)
	assert.Equal(t, "operator", subject)
	assert.Equal(t, "42", room)

	_, _, err = manager.Verify(token + "lol")
	assert.ErrorIs(t, err, domain.ErrInvalidTokenSignature)

	parts := strings.Split(token, ".")
	es512 := "eyJhbGciOiJFUzUxMiIsInR5cCI6IkpXVCJ9" + "." + parts[1] + "." + parts[2]
	_, _, err = manager.Verify(es512)
	assert.ErrorIs(t, err, domain.ErrInvalidSigningMethod)

	none := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0" + "." + parts[1] + "."
	_, _, err = manager.Verify(none)
	assert.ErrorIs(t, err, domain.ErrInvalidSigningMethod)

	_, _, err = manager.Verify("stemretmretm")
	assert.ErrorIs(t, err, domain.ErrCorruptedToken)
}
