package asset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(Info{
		Name:         "Corner Bakery Units",
		Symbol:       "CBU",
		AssetName:    "Corner Bakery",
		Location:     "Lisbon",
		Valuation:    decimal.FromUnits(200000),
		TokenizedBps: 5000,
	}, time.Unix(0, 0))
	require.NoError(t, err)
	return r
}

func TestRegistry(t *testing.T) {
	t.Run("should reject tokenized share above 100%", func(t *testing.T) {
		_, err := NewRegistry(Info{Name: "x", Symbol: "X", TokenizedBps: 10001}, time.Now())
		assert.ErrorIs(t, err, apperr.ErrInvalidParams)
	})

	t.Run("should verify with a hash", func(t *testing.T) {
		r := newRegistry(t)
		assert.ErrorIs(t, r.Verify("  ", time.Now()), apperr.ErrInvalidHash)
		assert.False(t, r.Info.Verified)

		require.NoError(t, r.Verify("QmDeed", time.Now()))
		assert.True(t, r.Info.Verified)
		assert.Equal(t, "QmDeed", r.Info.VerificationHash)
	})

	t.Run("should apply partial updates", func(t *testing.T) {
		r := newRegistry(t)
		v := decimal.FromUnits(250000)
		require.NoError(t, r.Apply(Update{Description: "two ovens", Valuation: &v}, time.Now()))

		assert.Equal(t, "Lisbon", r.Info.Location)
		assert.Equal(t, "two ovens", r.Info.Description)
		assert.True(t, r.Info.Valuation.Equal(v))
	})

	t.Run("should price a unit from the tokenized valuation", func(t *testing.T) {
		r := newRegistry(t)
		v, err := r.UnitValue(decimal.FromUnits(1000))
		require.NoError(t, err)
		assert.True(t, v.Equal(decimal.FromUnits(100)), "got %s", v)

		_, err = r.UnitValue(decimal.Zero())
		assert.ErrorIs(t, err, apperr.ErrZeroSupply)
	})
}
