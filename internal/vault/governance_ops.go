package vault

import (
	"strconv"

	"github.com/terminal-bench/assetdao/internal/audit"
	"github.com/terminal-bench/assetdao/internal/delegation"
	"github.com/terminal-bench/assetdao/internal/governance"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// ProposalView is a proposal together with its status at read time
type ProposalView struct {
	governance.Proposal
	Status governance.Status `json:"status"`
}

// Delegate gives caller's voting weight to another holder
func (v *Vault) Delegate(caller, to address.Address) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return audit.Entry{}, v.reject("delegate", caller, err)
	}
	now := v.now()
	if err := v.delegation.Delegate(caller, to, now); err != nil {
		return audit.Entry{}, v.reject("delegate", caller, err)
	}
	return v.commit(audit.KindDelegated, caller, now, map[string]string{"delegate": to.String()}), nil
}

// Undelegate returns caller's voting weight to caller
func (v *Vault) Undelegate(caller address.Address) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return audit.Entry{}, v.reject("undelegate", caller, err)
	}
	prev, err := v.delegation.Undelegate(caller)
	if err != nil {
		return audit.Entry{}, v.reject("undelegate", caller, err)
	}
	return v.commit(audit.KindUndelegated, caller, v.now(), map[string]string{"delegate": prev.String()}), nil
}

// CreateProposal opens a proposal for a caller meeting the threshold
func (v *Vault) CreateProposal(caller address.Address, d governance.Draft) (Result[governance.Proposal], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return Result[governance.Proposal]{}, v.reject("create_proposal", caller, err)
	}
	p, err := v.governance.Create(caller, d, v.ledger, v.delegation, v.now())
	if err != nil {
		return Result[governance.Proposal]{}, v.reject("create_proposal", caller, err)
	}
	attrs := map[string]string{
		"proposal": strconv.FormatUint(p.ID, 10),
		"type":     p.Type.String(),
		"urgency":  p.Urgency.String(),
		"deadline": p.Deadline.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if p.Action != nil {
		attrs["action"] = string(p.Action.Kind)
	}
	e := v.commit(audit.KindProposalCreated, caller, p.CreatedAt, attrs)
	return Result[governance.Proposal]{Value: p, Entry: e}, nil
}

// Vote casts caller's ballot on a proposal
func (v *Vault) Vote(caller address.Address, id uint64, choice governance.Choice, reason string) (Result[governance.Vote], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return Result[governance.Vote]{}, v.reject("vote", caller, err)
	}
	vote, err := v.governance.Vote(caller, id, choice, reason, v.ledger, v.delegation, v.now())
	if err != nil {
		return Result[governance.Vote]{}, v.reject("vote", caller, err)
	}
	e := v.commit(audit.KindVoteCast, caller, vote.At, map[string]string{
		"proposal": strconv.FormatUint(id, 10),
		"choice":   vote.Choice.String(),
		"weight":   vote.Weight.String(),
	})
	return Result[governance.Vote]{Value: vote, Entry: e}, nil
}

// ExecuteProposal settles a proposal after its deadline. When it passed and
// carries an action, the action runs first; if the action fails the call
// fails and nothing changes. A proposal whose action is unpause may execute
// while paused.
func (v *Vault) ExecuteProposal(caller address.Address, id uint64) (Result[governance.Proposal], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.executeGuard(id); err != nil {
		return Result[governance.Proposal]{}, v.reject("execute_proposal", caller, err)
	}
	now := v.now()
	outcome, err := v.governance.Tally(id, now)
	if err != nil {
		return Result[governance.Proposal]{}, v.reject("execute_proposal", caller, err)
	}

	p, _ := v.governance.Get(id)
	attrs := map[string]string{
		"proposal": strconv.FormatUint(id, 10),
		"passed":   strconv.FormatBool(outcome.Passed),
		"for":      outcome.For.String(),
		"against":  outcome.Against.String(),
		"abstain":  outcome.Abstain.String(),
		"quorum":   outcome.Quorum.String(),
	}
	if outcome.Passed && p.Action != nil {
		effects, err := v.applyAction(*p.Action)
		if err != nil {
			return Result[governance.Proposal]{}, v.reject("execute_proposal", caller, err)
		}
		attrs["action"] = string(p.Action.Kind)
		for k, val := range effects {
			attrs[k] = val
		}
	}

	done, err := v.governance.MarkExecuted(id, outcome, now)
	if err != nil {
		return Result[governance.Proposal]{}, v.reject("execute_proposal", caller, err)
	}
	e := v.commit(audit.KindProposalExecuted, caller, now, attrs)
	return Result[governance.Proposal]{Value: done, Entry: e}, nil
}

func (v *Vault) executeGuard(id uint64) error {
	if !v.admin.Paused {
		return nil
	}
	if p, err := v.governance.Get(id); err == nil && p.Action != nil && p.Action.Kind == governance.ActionUnpause {
		return nil
	}
	return v.admin.RequireActive()
}

// CancelProposal ends an active proposal; creator or owner only
func (v *Vault) CancelProposal(caller address.Address, id uint64) (Result[governance.Proposal], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	p, err := v.governance.Cancel(caller, id, v.admin.IsOwner(caller), now)
	if err != nil {
		return Result[governance.Proposal]{}, v.reject("cancel_proposal", caller, err)
	}
	e := v.commit(audit.KindProposalCancelled, caller, now, map[string]string{"proposal": strconv.FormatUint(id, 10)})
	return Result[governance.Proposal]{Value: p, Entry: e}, nil
}

// Proposal returns proposal id with its current status
func (v *Vault) Proposal(id uint64) (ProposalView, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, err := v.governance.Get(id)
	if err != nil {
		return ProposalView{}, err
	}
	return ProposalView{Proposal: p, Status: p.Status(v.now())}, nil
}

// ProposalIDs returns all proposal ids in creation order
func (v *Vault) ProposalIDs() []uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.governance.All()
}

// ActiveProposals returns ids still open for voting
func (v *Vault) ActiveProposals() []uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.governance.ActiveIDs(v.now())
}

// HasVoted reports whether voter cast a ballot on id
func (v *Vault) HasVoted(id uint64, voter address.Address) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.governance.HasVoted(id, voter)
}

// VoteOf returns voter's ballot on id
func (v *Vault) VoteOf(id uint64, voter address.Address) (governance.Vote, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.governance.VoteOf(id, voter)
}

// VotingPower returns addr's live resolved weight
func (v *Vault) VotingPower(addr address.Address) decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.governance.VotingPower(addr, v.ledger, v.delegation)
}

// ProposalThreshold returns the live weight needed to create a proposal
func (v *Vault) ProposalThreshold() decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.governance.Threshold(v.ledger)
}

// GovernanceParams returns the current thresholds
func (v *Vault) GovernanceParams() governance.Params {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.governance.Params
}

// DelegationOf returns addr's current delegation, if any
func (v *Vault) DelegationOf(addr address.Address) (delegation.Delegation, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.delegation.DelegateOf(addr)
}

// DelegatorsOf returns the holders that delegated directly to addr
func (v *Vault) DelegatorsOf(addr address.Address) []address.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.delegation.DelegatorsOf(addr)
}
