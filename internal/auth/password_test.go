package auth

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherUsesConfiguredCost(t *testing.T) {
	h := NewBcryptHasher(DefaultBcryptCost)
	hash, err := h.Hash("secret123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 10, cost)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret123")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret124")))
}

func TestNewBcryptHasherFallsBackOnInvalidCost(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(0).Cost)
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(99).Cost)
	assert.Equal(t, bcrypt.MinCost, NewBcryptHasher(bcrypt.MinCost).Cost)
}

func TestNumericCodeGeneratorRange(t *testing.T) {
	var gen NumericCodeGenerator
	for i := 0; i < 500; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 100000)
		require.LessOrEqual(t, n, 999999)
	}
}
