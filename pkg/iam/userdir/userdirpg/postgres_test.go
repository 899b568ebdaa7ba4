package userdirpg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordVerifies(t *testing.T) {
	hash, err := HashPassword("Correct123!")
	require.NoError(t, err)
	assert.NotEqual(t, "Correct123!", hash)

	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Correct123!")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	a, err := HashPassword("Correct123!")
	require.NoError(t, err)
	b, err := HashPassword("Correct123!")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
