package governance

import (
	"strings"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// ActionKind names the effect a passed proposal applies on execution
type ActionKind string

const (
	ActionSetUnitPrice        ActionKind = "set_unit_price"
	ActionIssueUnits          ActionKind = "issue_units"
	ActionAuthorizeReporter   ActionKind = "authorize_reporter"
	ActionRevokeReporter      ActionKind = "revoke_reporter"
	ActionVerifyAsset         ActionKind = "verify_asset"
	ActionPause               ActionKind = "pause"
	ActionUnpause             ActionKind = "unpause"
	ActionOpenDistribution    ActionKind = "open_distribution"
	ActionTreasuryGrant       ActionKind = "treasury_grant"
	ActionSetGovernanceParams ActionKind = "set_governance_params"
)

// Action is the optional payload of a proposal. Which fields matter
// depends on Kind.
type Action struct {
	Kind         ActionKind      `json:"kind"`
	Target       address.Address `json:"target,omitempty"`
	Amount       decimal.Amount  `json:"amount"`
	Hash         string          `json:"hash,omitempty"`
	ReportID     uint64          `json:"report_id,omitempty"`
	ThresholdBps int64           `json:"threshold_bps,omitempty"`
	QuorumBps    int64           `json:"quorum_bps,omitempty"`
}

// Validate checks the fields Kind needs
func (a Action) Validate() error {
	switch a.Kind {
	case ActionSetUnitPrice:
		if a.Amount.IsNegative() {
			return apperr.ErrInvalidAction
		}
	case ActionIssueUnits, ActionTreasuryGrant:
		if a.Target.IsNull() || !a.Amount.IsPositive() {
			return apperr.ErrInvalidAction
		}
	case ActionAuthorizeReporter, ActionRevokeReporter:
		if a.Target.IsNull() {
			return apperr.ErrInvalidAction
		}
	case ActionVerifyAsset:
		if strings.TrimSpace(a.Hash) == "" {
			return apperr.ErrInvalidAction
		}
	case ActionPause, ActionUnpause:
	case ActionOpenDistribution:
		if a.ReportID == 0 || !a.Amount.IsPositive() {
			return apperr.ErrInvalidAction
		}
	case ActionSetGovernanceParams:
		if err := (Params{ThresholdBps: a.ThresholdBps, QuorumBps: a.QuorumBps}).Validate(); err != nil {
			return apperr.ErrInvalidAction
		}
	default:
		return apperr.ErrInvalidAction
	}
	return nil
}
