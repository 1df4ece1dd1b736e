package decimal

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountCreation(t *testing.T) {
	t.Run("should parse human amounts into base units", func(t *testing.T) {
		a, err := Parse("0.002")
		require.NoError(t, err)
		assert.Equal(t, "2000000000000000", a.RawString())
		assert.Equal(t, "0.002", a.String())
	})

	t.Run("should create whole units", func(t *testing.T) {
		assert.Equal(t, "1000000000000000000000", FromUnits(1000).RawString())
		assert.Equal(t, "1000", FromUnits(1000).String())
	})

	t.Run("should reject amounts finer than the scale", func(t *testing.T) {
		_, err := Parse("0.0000000000000000001")
		assert.ErrorIs(t, err, ErrTooPrecise)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		_, err := Parse("ten")
		assert.Error(t, err)
		_, err = ParseRaw("1.5")
		assert.Error(t, err)
	})
}

func TestScaledArithmetic(t *testing.T) {
	t.Run("should rescale products back to the ledger scale", func(t *testing.T) {
		cost, err := FromUnits(10).MulScaled(MustParse("0.002"))
		require.NoError(t, err)
		assert.True(t, cost.Equal(MustParse("0.02")), "got %s", cost)
	})

	t.Run("should truncate when dividing", func(t *testing.T) {
		per, err := FromUnits(100).DivScaled(FromUnits(1000))
		require.NoError(t, err)
		assert.Equal(t, "0.1", per.String())

		per, err = FromUnits(1).DivScaled(FromUnits(3))
		require.NoError(t, err)
		assert.Equal(t, "0."+strings.Repeat("3", 18), per.String())
	})

	t.Run("should truncate negative values toward zero", func(t *testing.T) {
		q, err := FromRaw(big.NewInt(-7)).MulScaled(MustParse("0.5"))
		require.NoError(t, err)
		assert.Equal(t, "-3", q.RawString())
	})

	t.Run("should fail on division by zero", func(t *testing.T) {
		_, err := FromUnits(1).DivScaled(Zero())
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("should fail when intermediate exceeds 256 bits", func(t *testing.T) {
		huge := FromRaw(new(big.Int).Lsh(big.NewInt(1), 200))
		_, err := huge.MulScaled(huge)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("should apply basis points", func(t *testing.T) {
		assert.True(t, FromUnits(1000).MulBps(100).Equal(FromUnits(10)))
		assert.True(t, FromRaw(big.NewInt(99)).MulBps(100).IsZero())
	})
}

func TestAmountComparison(t *testing.T) {
	t.Run("should compare amounts", func(t *testing.T) {
		a := FromUnits(1)
		b := FromUnits(2)
		assert.True(t, a.LessThan(b))
		assert.True(t, b.GreaterThan(a))
		assert.Equal(t, -1, a.Cmp(b))
		assert.True(t, a.Sub(b).IsNegative())
		assert.True(t, Min(a, b).Equal(a))
	})
}

func TestAmountJSON(t *testing.T) {
	t.Run("should encode human units as a string", func(t *testing.T) {
		data, err := json.Marshal(MustParse("1.5"))
		require.NoError(t, err)
		assert.Equal(t, `"1.5"`, string(data))

		var back Amount
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, back.Equal(MustParse("1.5")))
	})

	t.Run("should round trip the smallest base unit exactly", func(t *testing.T) {
		one := FromRaw(big.NewInt(1))
		data, err := json.Marshal(one)
		require.NoError(t, err)
		assert.Equal(t, `"0.000000000000000001"`, string(data))

		var back Amount
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, back.Equal(one))
	})

	t.Run("should accept bare numbers and reject excess precision", func(t *testing.T) {
		var a Amount
		require.NoError(t, json.Unmarshal([]byte(`25`), &a))
		assert.True(t, a.Equal(FromUnits(25)))
		assert.Error(t, json.Unmarshal([]byte(`"0.0000000000000000001"`), &a))
	})
}
