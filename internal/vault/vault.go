package vault

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/assetdao/internal/admin"
	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/internal/asset"
	"github.com/terminal-bench/assetdao/internal/audit"
	"github.com/terminal-bench/assetdao/internal/delegation"
	"github.com/terminal-bench/assetdao/internal/dividends"
	"github.com/terminal-bench/assetdao/internal/governance"
	"github.com/terminal-bench/assetdao/internal/ledger"
	"github.com/terminal-bench/assetdao/internal/reports"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Allocation credits units to a holder at genesis
type Allocation struct {
	Holder address.Address
	Units  decimal.Amount
}

// Genesis is the initial state of a vault
type Genesis struct {
	Owner       address.Address
	Asset       asset.Info
	Cap         decimal.Amount
	UnitPrice   decimal.Amount
	Allocations []Allocation
	Reporters   []address.Address
	Governance  governance.Params

	ReportBase       uint64
	DistributionBase uint64
	ProposalBase     uint64
}

// Result pairs an operation's value with the audit entry it appended
type Result[T any] struct {
	Value T           `json:"value"`
	Entry audit.Entry `json:"entry"`
}

// Option configures a Vault
type Option func(*Vault)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(v *Vault) { v.logger = logger.With().Str("component", "vault").Logger() }
}

// WithJournalSize sets how many audit entries stay in memory
func WithJournalSize(n int) Option {
	return func(v *Vault) { v.journal = audit.NewJournal(n) }
}

// Vault owns every component's state behind a single lock. Each write
// operation validates fully before mutating, so a failed call leaves the
// state untouched, and a successful one appends exactly one audit entry.
type Vault struct {
	mu      sync.RWMutex
	now     func() time.Time
	logger  zerolog.Logger
	journal *audit.Journal

	ledger     *ledger.Ledger
	delegation *delegation.Registry
	asset      *asset.Registry
	reports    *reports.Register
	dividends  *dividends.Engine
	governance *governance.Engine
	admin      *admin.Controller
}

func newVault(opts []Option) *Vault {
	v := &Vault{
		now:    time.Now,
		logger: zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.journal == nil {
		v.journal = audit.NewJournal(audit.DefaultRetention)
	}
	return v
}

// New builds a vault from genesis
func New(g Genesis, opts ...Option) (*Vault, error) {
	v := newVault(opts)
	now := v.now()

	ctl, err := admin.NewController(g.Owner)
	if err != nil {
		return nil, fmt.Errorf("genesis owner: %w", err)
	}
	if !g.Cap.IsPositive() {
		return nil, fmt.Errorf("genesis cap: %w", apperr.ErrInvalidAmount)
	}
	if g.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("genesis unit price: %w", apperr.ErrInvalidAmount)
	}
	reg, err := asset.NewRegistry(g.Asset, now)
	if err != nil {
		return nil, fmt.Errorf("genesis asset: %w", err)
	}
	gov, err := governance.NewEngine(g.ProposalBase, g.Governance)
	if err != nil {
		return nil, fmt.Errorf("genesis governance: %w", err)
	}

	l := ledger.New(g.Cap, g.UnitPrice)
	for _, a := range g.Allocations {
		if err := l.Mint(a.Holder, a.Units); err != nil {
			return nil, fmt.Errorf("genesis allocation to %s: %w", a.Holder, err)
		}
	}

	rep := reports.NewRegister(g.ReportBase)
	if err := rep.Authorize(g.Owner); err != nil {
		return nil, err
	}
	for _, r := range g.Reporters {
		if err := rep.Authorize(r); err != nil {
			return nil, fmt.Errorf("genesis reporter %q: %w", r, err)
		}
	}

	v.admin = ctl
	v.ledger = l
	v.asset = reg
	v.reports = rep
	v.governance = gov
	v.delegation = delegation.NewRegistry()
	v.dividends = dividends.NewEngine(g.DistributionBase)

	v.logger.Info().
		Str("owner", g.Owner.String()).
		Str("cap", g.Cap.String()).
		Str("supply", l.Supply().String()).
		Msg("vault initialized from genesis")

	return v, nil
}

// Journal exposes the audit journal for subscribers
func (v *Vault) Journal() *audit.Journal {
	return v.journal
}

// Now returns the vault clock reading
func (v *Vault) Now() time.Time {
	return v.now()
}

// commit appends the audit entry for a successful operation. Callers hold the write lock.
func (v *Vault) commit(kind audit.Kind, actor address.Address, at time.Time, attrs map[string]string) audit.Entry {
	e := v.journal.Append(kind, actor, at, attrs)
	v.logger.Info().
		Int64("seq", e.Seq).
		Str("kind", string(kind)).
		Str("actor", actor.String()).
		Msg("operation committed")
	return e
}

func (v *Vault) reject(op string, caller address.Address, err error) error {
	v.logger.Debug().
		Str("op", op).
		Str("caller", caller.String()).
		Str("code", apperr.CodeOf(err)).
		Msg("operation rejected")
	return err
}

// holderOp runs the common guard for holder-facing writes: the vault must not be paused.
func (v *Vault) holderOp() error {
	return v.admin.RequireActive()
}
