package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	t.Parallel()

	hashed, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hashed)

	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(hashed), []byte("correct horse battery staple")))
	assert.Error(t, bcrypt.CompareHashAndPassword(
		[]byte(hashed), []byte("incorrect horse")))
}

func TestHashPasswordSalted(t *testing.T) {
	t.Parallel()

	first, err := HashPassword("hunter2")
	require.NoError(t, err)

	second, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
