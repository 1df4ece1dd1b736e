package governance

import (
	"maps"
	"time"

	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Vote is one recorded ballot
type Vote struct {
	Choice Choice         `json:"choice"`
	Weight decimal.Amount `json:"weight"`
	Reason string         `json:"reason,omitempty"`
	At     time.Time      `json:"at"`
}

// Proposal is a governance motion and its running tally
type Proposal struct {
	ID          uint64          `json:"id"`
	Type        ProposalType    `json:"type"`
	Urgency     Urgency         `json:"urgency"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Hash        string          `json:"hash,omitempty"`
	Creator     address.Address `json:"creator"`
	CreatedAt   time.Time       `json:"created_at"`
	Deadline    time.Time       `json:"deadline"`

	// Vote weights are read at Checkpoint; quorum is measured against SnapshotSupply.
	Checkpoint     uint64         `json:"checkpoint"`
	SnapshotSupply decimal.Amount `json:"snapshot_supply"`
	QuorumBps      int64          `json:"quorum_bps"`

	For     decimal.Amount           `json:"for"`
	Against decimal.Amount           `json:"against"`
	Abstain decimal.Amount           `json:"abstain"`
	Votes   map[address.Address]Vote `json:"votes"`
	Counted map[address.Address]bool `json:"counted"`

	Executed    bool      `json:"executed"`
	Passed      bool      `json:"passed"`
	ExecutedAt  time.Time `json:"executed_at,omitempty"`
	Cancelled   bool      `json:"cancelled"`
	CancelledAt time.Time `json:"cancelled_at,omitempty"`
	Action      *Action   `json:"action,omitempty"`
}

// Turnout is the total weight cast
func (p *Proposal) Turnout() decimal.Amount {
	return p.For.Add(p.Against).Add(p.Abstain)
}

// Quorum is the turnout required for the result to bind
func (p *Proposal) Quorum() decimal.Amount {
	return p.SnapshotSupply.MulBps(p.QuorumBps)
}

func (p *Proposal) passes() bool {
	return p.For.GreaterThan(p.Against) && !p.Turnout().LessThan(p.Quorum())
}

// Status derives the lifecycle stage at now
func (p *Proposal) Status(now time.Time) Status {
	switch {
	case p.Cancelled:
		return StatusCancelled
	case p.Executed && p.Passed:
		return StatusExecuted
	case p.Executed:
		return StatusDefeated
	case now.Before(p.Deadline):
		return StatusActive
	case p.passes():
		return StatusSucceeded
	default:
		return StatusDefeated
	}
}

func (p *Proposal) copy() Proposal {
	c := *p
	c.Votes = maps.Clone(p.Votes)
	c.Counted = maps.Clone(p.Counted)
	if p.Action != nil {
		a := *p.Action
		c.Action = &a
	}
	return c
}
