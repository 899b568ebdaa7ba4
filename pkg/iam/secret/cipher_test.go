package secret_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifesto-gateway/core/pkg/iam/secret"
)

func testKey() []byte {
	return []byte("01234567890123456789012345678901")
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := secret.NewCipher(testKey())
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("sk-live-abc123")
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "sk-live-abc123")

	plaintext, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-abc123", plaintext)
}

func TestCipher_RejectsWrongKey(t *testing.T) {
	c1, err := secret.NewCipher(testKey())
	require.NoError(t, err)
	c2, err := secret.NewCipher([]byte("98765432109876543210987654321098"))
	require.NoError(t, err)

	ciphertext, err := c1.Encrypt("secret-value")
	require.NoError(t, err)

	_, err = c2.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestCipher_RejectsTamperedCiphertext(t *testing.T) {
	c, err := secret.NewCipher(testKey())
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("secret-value")
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = c.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestCipher_RejectsWrongKeySize(t *testing.T) {
	_, err := secret.NewCipher([]byte("too-short"))
	assert.Error(t, err)
}
