package vault

import (
	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/internal/governance"
)

// applyAction performs a passed proposal's effect. Every branch checks all
// of its preconditions before touching state, so an error leaves the vault
// unchanged. It returns attributes describing the effect for the audit entry.
func (v *Vault) applyAction(a governance.Action) (map[string]string, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	now := v.now()

	switch a.Kind {
	case governance.ActionSetUnitPrice:
		if err := v.ledger.SetUnitPrice(a.Amount); err != nil {
			return nil, err
		}
		return map[string]string{"price": a.Amount.String()}, nil

	case governance.ActionIssueUnits:
		if err := v.ledger.Mint(a.Target, a.Amount); err != nil {
			return nil, err
		}
		return map[string]string{"to": a.Target.String(), "amount": a.Amount.String()}, nil

	case governance.ActionAuthorizeReporter:
		if err := v.reports.Authorize(a.Target); err != nil {
			return nil, err
		}
		return map[string]string{"reporter": a.Target.String()}, nil

	case governance.ActionRevokeReporter:
		if err := v.reports.Revoke(a.Target); err != nil {
			return nil, err
		}
		return map[string]string{"reporter": a.Target.String()}, nil

	case governance.ActionVerifyAsset:
		if err := v.asset.Verify(a.Hash, now); err != nil {
			return nil, err
		}
		return map[string]string{"hash": a.Hash}, nil

	case governance.ActionPause:
		if err := v.admin.Pause(now); err != nil {
			return nil, err
		}
		return nil, nil

	case governance.ActionUnpause:
		if err := v.admin.Unpause(); err != nil {
			return nil, err
		}
		return nil, nil

	case governance.ActionOpenDistribution:
		if a.Amount.GreaterThan(v.ledger.Treasury) {
			return nil, apperr.ErrInsufficientTreasury
		}
		d, err := v.openDistribution(a.ReportID, a.Amount)
		if err != nil {
			return nil, err
		}
		// Cannot fail: the treasury was checked above and Open does not touch it.
		_ = v.ledger.WithdrawTreasury(a.Amount)
		return distributionAttrs(d, "treasury"), nil

	case governance.ActionTreasuryGrant:
		if err := v.ledger.WithdrawTreasury(a.Amount); err != nil {
			return nil, err
		}
		return map[string]string{"to": a.Target.String(), "amount": a.Amount.String()}, nil

	case governance.ActionSetGovernanceParams:
		p := governance.Params{ThresholdBps: a.ThresholdBps, QuorumBps: a.QuorumBps}
		if err := v.governance.SetParams(p); err != nil {
			return nil, err
		}
		return paramsAttrs(p), nil
	}
	return nil, apperr.ErrInvalidAction
}
