package delegation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

var (
	holder = address.MustParse("0x1")
	second = address.MustParse("0x2")
	del    = address.MustParse("0xd")
)

func balances(m map[address.Address]int64) func(address.Address) decimal.Amount {
	return func(a address.Address) decimal.Amount { return decimal.FromUnits(m[a]) }
}

func TestDelegate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("should reject self and null delegates", func(t *testing.T) {
		r := NewRegistry()
		assert.ErrorIs(t, r.Delegate(holder, holder, now), apperr.ErrInvalidDelegate)
		assert.ErrorIs(t, r.Delegate(holder, address.Null, now), apperr.ErrInvalidDelegate)
	})

	t.Run("should move weight to the delegate", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Delegate(holder, del, now))
		bal := balances(map[address.Address]int64{holder: 10, del: 5})

		assert.True(t, r.Weight(holder, bal).IsZero())
		assert.True(t, r.Weight(del, bal).Equal(decimal.FromUnits(15)))
		assert.Equal(t, []address.Address{holder}, r.DelegatorsOf(del))
	})

	t.Run("should not follow chains", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Delegate(holder, second, now))
		require.NoError(t, r.Delegate(second, del, now))
		bal := balances(map[address.Address]int64{holder: 10, second: 20, del: 1})

		assert.True(t, r.Weight(del, bal).Equal(decimal.FromUnits(21)))
		assert.True(t, r.Weight(second, bal).IsZero())
	})

	t.Run("should replace an earlier delegation", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Delegate(holder, second, now))
		require.NoError(t, r.Delegate(holder, del, now.Add(time.Hour)))

		assert.Empty(t, r.DelegatorsOf(second))
		d, ok := r.DelegateOf(holder)
		require.True(t, ok)
		assert.Equal(t, del, d.Delegate)
		assert.Equal(t, now.Add(time.Hour), d.Since)
	})
}

func TestUndelegate(t *testing.T) {
	t.Run("should restore own weight", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Delegate(holder, del, time.Now()))
		prev, err := r.Undelegate(holder)
		require.NoError(t, err)
		assert.Equal(t, del, prev)

		bal := balances(map[address.Address]int64{holder: 10})
		assert.True(t, r.Weight(holder, bal).Equal(decimal.FromUnits(10)))
		assert.True(t, r.Weight(del, bal).IsZero())
	})

	t.Run("should fail without a delegation", func(t *testing.T) {
		_, err := NewRegistry().Undelegate(holder)
		assert.ErrorIs(t, err, apperr.ErrNotDelegated)
	})
}
