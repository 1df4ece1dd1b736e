package dividends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/internal/ledger"
	"github.com/terminal-bench/assetdao/internal/reports"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

var (
	holder = address.MustParse("0x40")
	other  = address.MustParse("0x07")
	late   = address.MustParse("0x1a7e")
	now    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func approved(id uint64) reports.Report {
	return reports.Report{ID: id, Approved: true, NetProfit: decimal.FromUnits(100)}
}

func TestOpen(t *testing.T) {
	t.Run("should split the pool per unit", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(1000), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(1000)))
		e := NewEngine(1)

		d, err := e.Open(approved(1), decimal.FromUnits(100), l, now)
		require.NoError(t, err)
		assert.Equal(t, "0.1", d.PerUnit.String())
		assert.True(t, d.Dust.IsZero())
		assert.True(t, d.SnapshotSupply.Equal(decimal.FromUnits(1000)))
	})

	t.Run("should require an approved report", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(10), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(1)))
		_, err := NewEngine(1).Open(reports.Report{ID: 1}, decimal.FromUnits(1), l, now)
		assert.ErrorIs(t, err, apperr.ErrReportNotApproved)
	})

	t.Run("should open once per report", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(10), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(1)))
		e := NewEngine(1)
		_, err := e.Open(approved(7), decimal.FromUnits(1), l, now)
		require.NoError(t, err)
		_, err = e.Open(approved(7), decimal.FromUnits(1), l, now)
		assert.ErrorIs(t, err, apperr.ErrAlreadyDistributed)
		assert.Len(t, e.All(), 1)
	})

	t.Run("should fail on zero supply without taking a checkpoint", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(10), decimal.Zero())
		_, err := NewEngine(1).Open(approved(1), decimal.FromUnits(1), l, now)
		assert.ErrorIs(t, err, apperr.ErrZeroSupply)
		assert.Zero(t, l.Checkpoint)
	})

	t.Run("should keep the rounding remainder as dust", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(10), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(3)))
		e := NewEngine(1)

		d, err := e.Open(approved(1), decimal.FromUnits(1), l, now)
		require.NoError(t, err)

		product, err := d.PerUnit.MulScaled(d.SnapshotSupply)
		require.NoError(t, err)
		assert.False(t, product.GreaterThan(d.Total))
		assert.True(t, d.Dust.Equal(d.Total.Sub(product)))
		assert.True(t, d.Dust.IsPositive())
		assert.True(t, d.Dust.Raw().Cmp(d.SnapshotSupply.Raw()) < 0)

		dust, err := e.WithdrawDust()
		require.NoError(t, err)
		assert.True(t, dust.Equal(d.Dust))
		_, err = e.WithdrawDust()
		assert.ErrorIs(t, err, apperr.ErrNothingToWithdraw)
	})
}

func TestClaim(t *testing.T) {
	t.Run("should pay once and reject the repeat", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(1000), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(1000)))
		e := NewEngine(1)
		d, err := e.Open(approved(1), decimal.FromUnits(100), l, now)
		require.NoError(t, err)

		paid, err := e.Claim(d.ID, holder, l)
		require.NoError(t, err)
		assert.True(t, paid.Equal(decimal.FromUnits(100)))

		_, err = e.Claim(d.ID, holder, l)
		assert.ErrorIs(t, err, apperr.ErrAlreadyClaimed)
	})

	t.Run("should use balances as of opening", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(1000), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(600)))
		require.NoError(t, l.Mint(other, decimal.FromUnits(400)))
		e := NewEngine(1)
		d, err := e.Open(approved(1), decimal.FromUnits(100), l, now)
		require.NoError(t, err)

		require.NoError(t, l.Transfer(holder, other, decimal.FromUnits(600)))

		a, err := e.Claim(d.ID, holder, l)
		require.NoError(t, err)
		b, err := e.Claim(d.ID, other, l)
		require.NoError(t, err)

		assert.True(t, a.Equal(decimal.FromUnits(60)))
		assert.True(t, b.Equal(decimal.FromUnits(40)))
		got, err := e.Get(d.ID)
		require.NoError(t, err)
		assert.False(t, got.ClaimedTotal.GreaterThan(got.Payable))
	})

	t.Run("should mark zero entitlements claimed", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(10), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(1)))
		e := NewEngine(1)
		d, err := e.Open(approved(1), decimal.FromUnits(1), l, now)
		require.NoError(t, err)
		require.NoError(t, l.Mint(late, decimal.FromUnits(5)))

		paid, err := e.Claim(d.ID, late, l)
		require.NoError(t, err)
		assert.True(t, paid.IsZero())
		_, err = e.Claim(d.ID, late, l)
		assert.ErrorIs(t, err, apperr.ErrAlreadyClaimed)
	})

	t.Run("should account every base unit as paid or dust", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(10), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.MustParse("1.5")))
		require.NoError(t, l.Mint(other, decimal.MustParse("1.5")))
		e := NewEngine(1)
		d, err := e.Open(approved(1), decimal.FromUnits(1), l, now)
		require.NoError(t, err)

		a, err := e.Claim(d.ID, holder, l)
		require.NoError(t, err)
		b, err := e.Claim(d.ID, other, l)
		require.NoError(t, err)

		paid := a.Add(b)
		assert.True(t, paid.Equal(d.Payable))
		assert.True(t, paid.Add(d.Dust).Equal(d.Total))
		assert.Equal(t, "2", d.Dust.RawString())
		assert.True(t, e.Dust.Equal(d.Dust))
	})

	t.Run("should fail for unknown distributions", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(10), decimal.Zero())
		_, err := NewEngine(1).Claim(9, holder, l)
		assert.ErrorIs(t, err, apperr.ErrDistributionNotFound)
	})
}

func TestClaimAll(t *testing.T) {
	t.Run("should settle every pending distribution in one call", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(1000), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(500)))
		require.NoError(t, l.Mint(other, decimal.FromUnits(500)))
		e := NewEngine(1)

		first, err := e.Open(approved(1), decimal.FromUnits(100), l, now)
		require.NoError(t, err)
		_, err = e.Open(approved(2), decimal.FromUnits(50), l, now)
		require.NoError(t, err)
		_, err = e.Claim(first.ID, holder, l)
		require.NoError(t, err)

		pending, err := e.Unclaimed(holder, l)
		require.NoError(t, err)
		assert.True(t, pending.Equal(decimal.FromUnits(25)))

		total, claims, err := e.ClaimAll(holder, l)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.FromUnits(25)))
		assert.Len(t, claims, 1)

		left, err := e.Unclaimed(holder, l)
		require.NoError(t, err)
		assert.True(t, left.IsZero())

		total, _, err = e.ClaimAll(other, l)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.FromUnits(75)))
	})

	t.Run("should only visit distributions after the cursor", func(t *testing.T) {
		l := ledger.New(decimal.FromUnits(1000), decimal.Zero())
		require.NoError(t, l.Mint(holder, decimal.FromUnits(1000)))
		e := NewEngine(1)
		_, err := e.Open(approved(1), decimal.FromUnits(10), l, now)
		require.NoError(t, err)
		_, _, err = e.ClaimAll(holder, l)
		require.NoError(t, err)
		assert.Equal(t, 1, e.Cursors[holder])

		d, err := e.Open(approved(2), decimal.FromUnits(20), l, now)
		require.NoError(t, err)
		total, claims, err := e.ClaimAll(holder, l)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.FromUnits(20)))
		require.Len(t, claims, 1)
		assert.Equal(t, d.ID, claims[0].DistributionID)
	})
}
