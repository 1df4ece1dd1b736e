package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("should normalize case and whitespace", func(t *testing.T) {
		a, err := Parse("  0xABCdef  ")
		require.NoError(t, err)
		assert.Equal(t, Address("0xabcdef"), a)
	})

	t.Run("should reject empty and spaced input", func(t *testing.T) {
		_, err := Parse("   ")
		assert.Error(t, err)
		_, err = Parse("0xab cd")
		assert.Error(t, err)
		_, err = Parse("a/b")
		assert.Error(t, err)
	})

	t.Run("should treat empty and zero identity as null", func(t *testing.T) {
		assert.True(t, Address("").IsNull())
		assert.True(t, MustParse("0x0000000000000000000000000000000000000000").IsNull())
		assert.False(t, MustParse("0x01").IsNull())
	})

	t.Run("should panic on invalid constants", func(t *testing.T) {
		assert.Panics(t, func() { MustParse("") })
	})
}
