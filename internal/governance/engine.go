package governance

import (
	"fmt"
	"strings"
	"time"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/internal/delegation"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 10000
)

// Ledger is the slice of the unit ledger governance weighs votes with.
type Ledger interface {
	Supply() decimal.Amount
	BalanceOf(holder address.Address) decimal.Amount
	TakeCheckpoint() uint64
	BalanceAt(holder address.Address, checkpoint uint64) (decimal.Amount, error)
}

// Params are the tunable governance thresholds, in basis points of supply.
type Params struct {
	ThresholdBps int64 `json:"threshold_bps" mapstructure:"threshold_bps" yaml:"threshold_bps"`
	QuorumBps    int64 `json:"quorum_bps" mapstructure:"quorum_bps" yaml:"quorum_bps"`
}

// DefaultParams is a 1% proposal threshold and a 10% quorum
func DefaultParams() Params {
	return Params{ThresholdBps: 100, QuorumBps: 1000}
}

// Validate checks both values are within 0..10000
func (p Params) Validate() error {
	if p.ThresholdBps < 0 || p.ThresholdBps > 10000 || p.QuorumBps < 0 || p.QuorumBps > 10000 {
		return apperr.ErrInvalidParams
	}
	return nil
}

// Draft is what a creator supplies for a new proposal
type Draft struct {
	Type        ProposalType `json:"type"`
	Urgency     Urgency      `json:"urgency"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Hash        string       `json:"hash,omitempty"`
	Action      *Action      `json:"action,omitempty"`
}

func (d Draft) validate() error {
	title := strings.TrimSpace(d.Title)
	if title == "" || len(title) > maxTitleLen || len(d.Description) > maxDescriptionLen {
		return apperr.ErrInvalidProposal
	}
	if !d.Type.Valid() || !d.Urgency.Valid() {
		return apperr.ErrInvalidProposal
	}
	if d.Action != nil {
		return d.Action.Validate()
	}
	return nil
}

// Outcome is the result of tallying a closed proposal
type Outcome struct {
	Passed        bool           `json:"passed"`
	For           decimal.Amount `json:"for"`
	Against       decimal.Amount `json:"against"`
	Abstain       decimal.Amount `json:"abstain"`
	Turnout       decimal.Amount `json:"turnout"`
	Quorum        decimal.Amount `json:"quorum"`
	QuorumReached bool           `json:"quorum_reached"`
}

// Engine owns proposals and their tallies.
type Engine struct {
	Proposals map[uint64]*Proposal `json:"proposals"`
	IDs       []uint64             `json:"ids"`
	NextID    uint64               `json:"next_id"`
	Params    Params               `json:"params"`
}

// NewEngine creates an engine whose first proposal id is base
func NewEngine(base uint64, params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if base == 0 {
		base = 1
	}
	return &Engine{
		Proposals: make(map[uint64]*Proposal),
		NextID:    base,
		Params:    params,
	}, nil
}

// Ensure allocates maps left nil by decoding
func (e *Engine) Ensure() {
	if e.Proposals == nil {
		e.Proposals = make(map[uint64]*Proposal)
	}
	for _, p := range e.Proposals {
		if p.Votes == nil {
			p.Votes = make(map[address.Address]Vote)
		}
		if p.Counted == nil {
			p.Counted = make(map[address.Address]bool)
		}
	}
}

// SetParams replaces the thresholds. Open proposals keep the quorum they
// were created with.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.Params = p
	return nil
}

// Threshold is the live weight needed to create a proposal
func (e *Engine) Threshold(l Ledger) decimal.Amount {
	return l.Supply().MulBps(e.Params.ThresholdBps)
}

// VotingPower is addr's live single-hop weight.
func (e *Engine) VotingPower(addr address.Address, l Ledger, reg *delegation.Registry) decimal.Amount {
	return reg.Weight(addr, l.BalanceOf)
}

// Create opens a proposal for a creator whose live weight meets the threshold.
func (e *Engine) Create(creator address.Address, d Draft, l Ledger, reg *delegation.Registry, now time.Time) (Proposal, error) {
	if err := d.validate(); err != nil {
		return Proposal{}, err
	}
	weight := e.VotingPower(creator, l, reg)
	if !weight.IsPositive() || weight.LessThan(e.Threshold(l)) {
		return Proposal{}, apperr.ErrBelowThreshold
	}

	var action *Action
	if d.Action != nil {
		a := *d.Action
		action = &a
	}
	p := &Proposal{
		ID:             e.NextID,
		Type:           d.Type,
		Urgency:        d.Urgency,
		Title:          strings.TrimSpace(d.Title),
		Description:    d.Description,
		Hash:           strings.TrimSpace(d.Hash),
		Creator:        creator,
		CreatedAt:      now,
		Deadline:       now.Add(d.Urgency.Period()),
		Checkpoint:     l.TakeCheckpoint(),
		SnapshotSupply: l.Supply(),
		QuorumBps:      e.Params.QuorumBps,
		For:            decimal.Zero(),
		Against:        decimal.Zero(),
		Abstain:        decimal.Zero(),
		Votes:          make(map[address.Address]Vote),
		Counted:        make(map[address.Address]bool),
		Action:         action,
	}
	e.Proposals[p.ID] = p
	e.IDs = append(e.IDs, p.ID)
	e.NextID++
	return p.copy(), nil
}

// Vote records voter's ballot. The weight is voter's balance at the
// proposal checkpoint plus that of its direct delegators, skipping any
// holder whose balance already counted on this proposal.
func (e *Engine) Vote(voter address.Address, id uint64, choice Choice, reason string, l Ledger, reg *delegation.Registry, now time.Time) (Vote, error) {
	p, ok := e.Proposals[id]
	if !ok {
		return Vote{}, apperr.ErrProposalNotFound
	}
	if p.Cancelled {
		return Vote{}, apperr.ErrProposalCancelled
	}
	if !now.Before(p.Deadline) {
		return Vote{}, apperr.ErrVotingClosed
	}
	if !choice.Valid() {
		return Vote{}, apperr.ErrInvalidChoice
	}
	if _, voted := p.Votes[voter]; voted {
		return Vote{}, apperr.ErrAlreadyVoted
	}
	if reg.HasDelegated(voter) {
		return Vote{}, apperr.ErrNoVotingPower
	}

	weight := decimal.Zero()
	var counted []address.Address
	for _, h := range append([]address.Address{voter}, reg.DelegatorsOf(voter)...) {
		if p.Counted[h] {
			continue
		}
		b, err := l.BalanceAt(h, p.Checkpoint)
		if err != nil {
			return Vote{}, fmt.Errorf("proposal %d weight: %w", id, err)
		}
		weight = weight.Add(b)
		counted = append(counted, h)
	}
	if !weight.IsPositive() {
		return Vote{}, apperr.ErrNoVotingPower
	}

	for _, h := range counted {
		p.Counted[h] = true
	}
	switch choice {
	case ChoiceFor:
		p.For = p.For.Add(weight)
	case ChoiceAgainst:
		p.Against = p.Against.Add(weight)
	case ChoiceAbstain:
		p.Abstain = p.Abstain.Add(weight)
	}
	v := Vote{Choice: choice, Weight: weight, Reason: reason, At: now}
	p.Votes[voter] = v
	return v, nil
}

// Tally checks id can be executed at now and computes its outcome.
// It does not change state.
func (e *Engine) Tally(id uint64, now time.Time) (Outcome, error) {
	p, ok := e.Proposals[id]
	if !ok {
		return Outcome{}, apperr.ErrProposalNotFound
	}
	if p.Cancelled {
		return Outcome{}, apperr.ErrProposalCancelled
	}
	if p.Executed {
		return Outcome{}, apperr.ErrAlreadyExecuted
	}
	if now.Before(p.Deadline) {
		return Outcome{}, apperr.ErrVotingOpen
	}
	turnout := p.Turnout()
	quorum := p.Quorum()
	return Outcome{
		Passed:        p.passes(),
		For:           p.For,
		Against:       p.Against,
		Abstain:       p.Abstain,
		Turnout:       turnout,
		Quorum:        quorum,
		QuorumReached: !turnout.LessThan(quorum),
	}, nil
}

// MarkExecuted closes id with the tallied outcome
func (e *Engine) MarkExecuted(id uint64, o Outcome, now time.Time) (Proposal, error) {
	if _, err := e.Tally(id, now); err != nil {
		return Proposal{}, err
	}
	p := e.Proposals[id]
	p.Executed = true
	p.Passed = o.Passed
	p.ExecutedAt = now
	return p.copy(), nil
}

// Cancel ends an active proposal. Only the creator or an admin may cancel.
func (e *Engine) Cancel(caller address.Address, id uint64, isAdmin bool, now time.Time) (Proposal, error) {
	p, ok := e.Proposals[id]
	if !ok {
		return Proposal{}, apperr.ErrProposalNotFound
	}
	if caller != p.Creator && !isAdmin {
		return Proposal{}, apperr.ErrUnauthorized
	}
	if p.Cancelled {
		return Proposal{}, apperr.ErrProposalCancelled
	}
	if p.Executed {
		return Proposal{}, apperr.ErrAlreadyExecuted
	}
	if !now.Before(p.Deadline) {
		return Proposal{}, apperr.ErrVotingClosed
	}
	p.Cancelled = true
	p.CancelledAt = now
	return p.copy(), nil
}

// Get returns a copy of proposal id
func (e *Engine) Get(id uint64) (Proposal, error) {
	p, ok := e.Proposals[id]
	if !ok {
		return Proposal{}, apperr.ErrProposalNotFound
	}
	return p.copy(), nil
}

// All returns every proposal id in creation order
func (e *Engine) All() []uint64 {
	return append([]uint64(nil), e.IDs...)
}

// ActiveIDs returns ids still open for voting at now
func (e *Engine) ActiveIDs(now time.Time) []uint64 {
	var out []uint64
	for _, id := range e.IDs {
		if e.Proposals[id].Status(now) == StatusActive {
			out = append(out, id)
		}
	}
	return out
}

// HasVoted reports whether voter cast a ballot on id
func (e *Engine) HasVoted(id uint64, voter address.Address) (bool, error) {
	p, ok := e.Proposals[id]
	if !ok {
		return false, apperr.ErrProposalNotFound
	}
	_, voted := p.Votes[voter]
	return voted, nil
}

// VoteOf returns voter's ballot on id
func (e *Engine) VoteOf(id uint64, voter address.Address) (Vote, bool, error) {
	p, ok := e.Proposals[id]
	if !ok {
		return Vote{}, false, apperr.ErrProposalNotFound
	}
	v, voted := p.Votes[voter]
	return v, voted, nil
}
