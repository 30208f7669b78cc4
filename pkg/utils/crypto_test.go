package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecryptRoundTrip(t *testing.T) {
	encrypted, err := Encrypt([]byte("access-token-value"), testKey)
	require.NoError(t, err)
	assert.NotEqual(t, "access-token-value", encrypted)

	plaintext, err := Decrypt(encrypted, testKey)
	require.NoError(t, err)
	assert.Equal(t, "access-token-value", plaintext)
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	first, err := Encrypt([]byte("same input"), testKey)
	require.NoError(t, err)
	second, err := Encrypt([]byte("same input"), testKey)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptWrongKey(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret"), testKey)
	require.NoError(t, err)

	otherKey := []byte("ffffffffffffffffffffffffffffffff")
	_, err = Decrypt(encrypted, otherKey)
	assert.Error(t, err)
}

func TestDecryptTooShort(t *testing.T) {
	_, err := Decrypt("YWJj", testKey)
	assert.Error(t, err)
}

func TestEncryptInvalidKeySize(t *testing.T) {
	_, err := Encrypt([]byte("data"), []byte("short"))
	assert.Error(t, err)
}
