package dividends

import (
	"fmt"
	"maps"
	"time"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/internal/reports"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Balances is the slice of the unit ledger the engine reads entitlements from.
type Balances interface {
	Supply() decimal.Amount
	Holders() []address.Address
	BalanceOf(holder address.Address) decimal.Amount
	TakeCheckpoint() uint64
	BalanceAt(holder address.Address, checkpoint uint64) (decimal.Amount, error)
}

// Distribution is one payout pool opened from an approved report
type Distribution struct {
	ID             uint64                   `json:"id"`
	ReportID       uint64                   `json:"report_id"`
	Total          decimal.Amount           `json:"total"`
	SnapshotSupply decimal.Amount           `json:"snapshot_supply"`
	Checkpoint     uint64                   `json:"checkpoint"`
	PerUnit        decimal.Amount           `json:"per_unit"`
	Payable        decimal.Amount           `json:"payable"`
	Dust           decimal.Amount           `json:"dust"`
	ClaimedTotal   decimal.Amount           `json:"claimed_total"`
	Claimed        map[address.Address]bool `json:"claimed"`
	CreatedAt      time.Time                `json:"created_at"`
}

// Claim is a single paid-out entitlement
type Claim struct {
	DistributionID uint64         `json:"distribution_id"`
	Amount         decimal.Amount `json:"amount"`
}

// Engine tracks distributions and per-holder claims.
type Engine struct {
	Distributions map[uint64]*Distribution `json:"distributions"`
	IDs           []uint64                 `json:"ids"`
	NextID        uint64                   `json:"next_id"`
	ByReport      map[uint64]uint64        `json:"by_report"`
	// Cursors index into IDs: everything before a holder's cursor is settled.
	Cursors map[address.Address]int `json:"cursors"`
	// Dust is the undistributable remainder owed to the owner.
	Dust decimal.Amount `json:"dust"`
}

// NewEngine creates an engine whose first distribution id is base
func NewEngine(base uint64) *Engine {
	if base == 0 {
		base = 1
	}
	return &Engine{
		Distributions: make(map[uint64]*Distribution),
		NextID:        base,
		ByReport:      make(map[uint64]uint64),
		Cursors:       make(map[address.Address]int),
		Dust:          decimal.Zero(),
	}
}

// Ensure allocates maps left nil by decoding
func (e *Engine) Ensure() {
	if e.Distributions == nil {
		e.Distributions = make(map[uint64]*Distribution)
	}
	if e.ByReport == nil {
		e.ByReport = make(map[uint64]uint64)
	}
	if e.Cursors == nil {
		e.Cursors = make(map[address.Address]int)
	}
	for _, d := range e.Distributions {
		if d.Claimed == nil {
			d.Claimed = make(map[address.Address]bool)
		}
	}
}

// Open creates a distribution of total for an approved report, fixing every
// holder's entitlement weight at a fresh ledger checkpoint.
func (e *Engine) Open(rep reports.Report, total decimal.Amount, bal Balances, now time.Time) (Distribution, error) {
	if !rep.Approved {
		return Distribution{}, apperr.ErrReportNotApproved
	}
	if _, ok := e.ByReport[rep.ID]; ok {
		return Distribution{}, apperr.ErrAlreadyDistributed
	}
	if !total.IsPositive() {
		return Distribution{}, apperr.ErrInvalidAmount
	}
	supply := bal.Supply()
	if supply.IsZero() {
		return Distribution{}, apperr.ErrZeroSupply
	}
	perUnit, err := total.DivScaled(supply)
	if err != nil {
		return Distribution{}, fmt.Errorf("per unit amount: %w", apperr.ErrOverflow)
	}
	// Claims floor per holder, so payable is the sum of those floors and
	// everything else of total is dust. Current balances are what the
	// checkpoint below will freeze.
	payable := decimal.Zero()
	for _, h := range bal.Holders() {
		amt, err := bal.BalanceOf(h).MulScaled(perUnit)
		if err != nil {
			return Distribution{}, fmt.Errorf("payable amount: %w", apperr.ErrOverflow)
		}
		payable = payable.Add(amt)
	}

	d := &Distribution{
		ID:             e.NextID,
		ReportID:       rep.ID,
		Total:          total,
		SnapshotSupply: supply,
		Checkpoint:     bal.TakeCheckpoint(),
		PerUnit:        perUnit,
		Payable:        payable,
		Dust:           total.Sub(payable),
		ClaimedTotal:   decimal.Zero(),
		Claimed:        make(map[address.Address]bool),
		CreatedAt:      now,
	}
	e.Distributions[d.ID] = d
	e.IDs = append(e.IDs, d.ID)
	e.ByReport[rep.ID] = d.ID
	e.NextID++
	e.Dust = e.Dust.Add(d.Dust)

	return d.copy(), nil
}

// Entitlement returns what holder is owed from distribution id, claimed or not.
func (e *Engine) Entitlement(id uint64, holder address.Address, bal Balances) (decimal.Amount, error) {
	d, ok := e.Distributions[id]
	if !ok {
		return decimal.Amount{}, apperr.ErrDistributionNotFound
	}
	return d.entitlement(holder, bal)
}

func (d *Distribution) entitlement(holder address.Address, bal Balances) (decimal.Amount, error) {
	weight, err := bal.BalanceAt(holder, d.Checkpoint)
	if err != nil {
		return decimal.Amount{}, fmt.Errorf("distribution %d: %w", d.ID, err)
	}
	amt, err := weight.MulScaled(d.PerUnit)
	if err != nil {
		return decimal.Amount{}, fmt.Errorf("distribution %d: %w", d.ID, apperr.ErrOverflow)
	}
	return amt, nil
}

// Claim pays holder's entitlement from one distribution. A zero entitlement
// still marks the pair claimed.
func (e *Engine) Claim(id uint64, holder address.Address, bal Balances) (decimal.Amount, error) {
	d, ok := e.Distributions[id]
	if !ok {
		return decimal.Amount{}, apperr.ErrDistributionNotFound
	}
	if d.Claimed[holder] {
		return decimal.Amount{}, apperr.ErrAlreadyClaimed
	}
	amt, err := d.entitlement(holder, bal)
	if err != nil {
		return decimal.Amount{}, err
	}
	d.Claimed[holder] = true
	d.ClaimedTotal = d.ClaimedTotal.Add(amt)
	return amt, nil
}

// ClaimAll settles every unclaimed distribution from holder's cursor
// forward and moves the cursor to the end.
func (e *Engine) ClaimAll(holder address.Address, bal Balances) (decimal.Amount, []Claim, error) {
	pending, err := e.pending(holder, bal)
	if err != nil {
		return decimal.Amount{}, nil, err
	}

	total := decimal.Zero()
	for _, c := range pending {
		d := e.Distributions[c.DistributionID]
		d.Claimed[holder] = true
		d.ClaimedTotal = d.ClaimedTotal.Add(c.Amount)
		total = total.Add(c.Amount)
	}
	e.Cursors[holder] = len(e.IDs)
	return total, pending, nil
}

// Unclaimed sums holder's entitlements not yet claimed.
func (e *Engine) Unclaimed(holder address.Address, bal Balances) (decimal.Amount, error) {
	pending, err := e.pending(holder, bal)
	if err != nil {
		return decimal.Amount{}, err
	}
	total := decimal.Zero()
	for _, c := range pending {
		total = total.Add(c.Amount)
	}
	return total, nil
}

func (e *Engine) pending(holder address.Address, bal Balances) ([]Claim, error) {
	var out []Claim
	for _, id := range e.IDs[e.Cursors[holder]:] {
		d := e.Distributions[id]
		if d.Claimed[holder] {
			continue
		}
		amt, err := d.entitlement(holder, bal)
		if err != nil {
			return nil, err
		}
		out = append(out, Claim{DistributionID: id, Amount: amt})
	}
	return out, nil
}

// WithdrawDust hands the accumulated rounding remainder to the caller.
func (e *Engine) WithdrawDust() (decimal.Amount, error) {
	if !e.Dust.IsPositive() {
		return decimal.Amount{}, apperr.ErrNothingToWithdraw
	}
	amt := e.Dust
	e.Dust = decimal.Zero()
	return amt, nil
}

// Get returns a copy of distribution id
func (e *Engine) Get(id uint64) (Distribution, error) {
	d, ok := e.Distributions[id]
	if !ok {
		return Distribution{}, apperr.ErrDistributionNotFound
	}
	return d.copy(), nil
}

// ForReport returns the distribution opened for report id, if any
func (e *Engine) ForReport(reportID uint64) (uint64, bool) {
	id, ok := e.ByReport[reportID]
	return id, ok
}

// All returns distribution ids in creation order
func (e *Engine) All() []uint64 {
	return append([]uint64(nil), e.IDs...)
}

func (d *Distribution) copy() Distribution {
	c := *d
	c.Claimed = maps.Clone(d.Claimed)
	return c
}
