package reports

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Period is the month a report covers
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Valid reports whether the period names a real month
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 1970 && p.Year <= 9999
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Report is a periodic financial statement for the asset
type Report struct {
	ID          uint64          `json:"id"`
	Period      Period          `json:"period"`
	Revenue     decimal.Amount  `json:"revenue"`
	Expenses    decimal.Amount  `json:"expenses"`
	NetProfit   decimal.Amount  `json:"net_profit"`
	Hash        string          `json:"hash"`
	Submitter   address.Address `json:"submitter"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Approved    bool            `json:"approved"`
	ApprovedAt  time.Time       `json:"approved_at,omitempty"`
}

// IsLoss reports whether expenses exceeded revenue
func (r Report) IsLoss() bool {
	return r.NetProfit.IsNegative()
}

// Register stores submitted reports and the authorized reporter set.
type Register struct {
	Reports   map[uint64]*Report       `json:"reports"`
	IDs       []uint64                 `json:"ids"`
	NextID    uint64                   `json:"next_id"`
	Reporters map[address.Address]bool `json:"reporters"`
}

// NewRegister creates a register whose first report id is base
func NewRegister(base uint64) *Register {
	if base == 0 {
		base = 1
	}
	return &Register{
		Reports:   make(map[uint64]*Report),
		NextID:    base,
		Reporters: make(map[address.Address]bool),
	}
}

// Ensure allocates maps left nil by decoding
func (r *Register) Ensure() {
	if r.Reports == nil {
		r.Reports = make(map[uint64]*Report)
	}
	if r.Reporters == nil {
		r.Reporters = make(map[address.Address]bool)
	}
}

// Authorize adds a reporter
func (r *Register) Authorize(reporter address.Address) error {
	if reporter.IsNull() {
		return apperr.ErrInvalidAddress
	}
	r.Reporters[reporter] = true
	return nil
}

// Revoke removes a reporter
func (r *Register) Revoke(reporter address.Address) error {
	if reporter.IsNull() {
		return apperr.ErrInvalidAddress
	}
	delete(r.Reporters, reporter)
	return nil
}

// IsReporter reports whether addr may submit reports
func (r *Register) IsReporter(addr address.Address) bool {
	return r.Reporters[addr]
}

// ReporterList returns the authorized reporters, sorted
func (r *Register) ReporterList() []address.Address {
	out := make([]address.Address, 0, len(r.Reporters))
	for a := range r.Reporters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Submit records a new unapproved report. A negative net profit is kept as is.
func (r *Register) Submit(caller address.Address, period Period, revenue, expenses decimal.Amount, hash string, now time.Time) (Report, error) {
	if !r.IsReporter(caller) {
		return Report{}, apperr.ErrUnauthorized
	}
	if !period.Valid() {
		return Report{}, apperr.ErrInvalidPeriod
	}
	if revenue.IsNegative() || expenses.IsNegative() {
		return Report{}, apperr.ErrInvalidAmount
	}
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return Report{}, apperr.ErrInvalidHash
	}

	rep := &Report{
		ID:          r.NextID,
		Period:      period,
		Revenue:     revenue,
		Expenses:    expenses,
		NetProfit:   revenue.Sub(expenses),
		Hash:        hash,
		Submitter:   caller,
		SubmittedAt: now,
	}
	r.Reports[rep.ID] = rep
	r.IDs = append(r.IDs, rep.ID)
	r.NextID++
	return *rep, nil
}

// Approve marks a report approved. Approval is one-way.
func (r *Register) Approve(id uint64, now time.Time) (Report, error) {
	rep, ok := r.Reports[id]
	if !ok {
		return Report{}, apperr.ErrReportNotFound
	}
	if rep.Approved {
		return Report{}, apperr.ErrAlreadyApproved
	}
	rep.Approved = true
	rep.ApprovedAt = now
	return *rep, nil
}

// Get returns a copy of report id
func (r *Register) Get(id uint64) (Report, error) {
	rep, ok := r.Reports[id]
	if !ok {
		return Report{}, apperr.ErrReportNotFound
	}
	return *rep, nil
}

// All returns every report id in submission order
func (r *Register) All() []uint64 {
	return append([]uint64(nil), r.IDs...)
}

// Pending returns ids of reports still awaiting approval
func (r *Register) Pending() []uint64 {
	var out []uint64
	for _, id := range r.IDs {
		if !r.Reports[id].Approved {
			out = append(out, id)
		}
	}
	return out
}
