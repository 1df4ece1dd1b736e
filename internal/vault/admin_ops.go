package vault

import (
	"strconv"

	"github.com/terminal-bench/assetdao/internal/asset"
	"github.com/terminal-bench/assetdao/internal/audit"
	"github.com/terminal-bench/assetdao/internal/dividends"
	"github.com/terminal-bench/assetdao/internal/governance"
	"github.com/terminal-bench/assetdao/internal/reports"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// AuthorizeReporter lets reporter submit financial reports
func (v *Vault) AuthorizeReporter(caller, reporter address.Address) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("authorize_reporter", caller, err)
	}
	if err := v.reports.Authorize(reporter); err != nil {
		return audit.Entry{}, v.reject("authorize_reporter", caller, err)
	}
	return v.commit(audit.KindReporterAuthorized, caller, v.now(), map[string]string{"reporter": reporter.String()}), nil
}

// RevokeReporter removes reporter from the authorized set
func (v *Vault) RevokeReporter(caller, reporter address.Address) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("revoke_reporter", caller, err)
	}
	if err := v.reports.Revoke(reporter); err != nil {
		return audit.Entry{}, v.reject("revoke_reporter", caller, err)
	}
	return v.commit(audit.KindReporterRevoked, caller, v.now(), map[string]string{"reporter": reporter.String()}), nil
}

// SubmitReport records a financial report from an authorized reporter
func (v *Vault) SubmitReport(caller address.Address, period reports.Period, revenue, expenses decimal.Amount, hash string) (Result[reports.Report], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	rep, err := v.reports.Submit(caller, period, revenue, expenses, hash, now)
	if err != nil {
		return Result[reports.Report]{}, v.reject("submit_report", caller, err)
	}
	e := v.commit(audit.KindReportSubmitted, caller, now, map[string]string{
		"report":     strconv.FormatUint(rep.ID, 10),
		"period":     rep.Period.String(),
		"net_profit": rep.NetProfit.String(),
		"loss":       strconv.FormatBool(rep.IsLoss()),
	})
	return Result[reports.Report]{Value: rep, Entry: e}, nil
}

// ApproveReport approves a submitted report
func (v *Vault) ApproveReport(caller address.Address, id uint64) (Result[reports.Report], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return Result[reports.Report]{}, v.reject("approve_report", caller, err)
	}
	now := v.now()
	rep, err := v.reports.Approve(id, now)
	if err != nil {
		return Result[reports.Report]{}, v.reject("approve_report", caller, err)
	}
	e := v.commit(audit.KindReportApproved, caller, now, map[string]string{"report": strconv.FormatUint(id, 10)})
	return Result[reports.Report]{Value: rep, Entry: e}, nil
}

// OpenDistribution opens a payout pool of total, deposited by the owner
// with this call, for an approved report.
func (v *Vault) OpenDistribution(caller address.Address, reportID uint64, total decimal.Amount) (Result[dividends.Distribution], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return Result[dividends.Distribution]{}, v.reject("open_distribution", caller, err)
	}
	d, err := v.openDistribution(reportID, total)
	if err != nil {
		return Result[dividends.Distribution]{}, v.reject("open_distribution", caller, err)
	}
	e := v.commit(audit.KindDistributionOpened, caller, d.CreatedAt, distributionAttrs(d, "deposit"))
	return Result[dividends.Distribution]{Value: d, Entry: e}, nil
}

func (v *Vault) openDistribution(reportID uint64, total decimal.Amount) (dividends.Distribution, error) {
	rep, err := v.reports.Get(reportID)
	if err != nil {
		return dividends.Distribution{}, err
	}
	return v.dividends.Open(rep, total, v.ledger, v.now())
}

func distributionAttrs(d dividends.Distribution, source string) map[string]string {
	return map[string]string{
		"distribution": strconv.FormatUint(d.ID, 10),
		"report":       strconv.FormatUint(d.ReportID, 10),
		"total":        d.Total.String(),
		"per_unit":     d.PerUnit.String(),
		"dust":         d.Dust.String(),
		"source":       source,
	}
}

// Claim pays caller's entitlement from one distribution
func (v *Vault) Claim(caller address.Address, distributionID uint64) (Result[decimal.Amount], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return Result[decimal.Amount]{}, v.reject("claim", caller, err)
	}
	amt, err := v.dividends.Claim(distributionID, caller, v.ledger)
	if err != nil {
		return Result[decimal.Amount]{}, v.reject("claim", caller, err)
	}
	e := v.commit(audit.KindDividendClaimed, caller, v.now(), map[string]string{
		"distribution": strconv.FormatUint(distributionID, 10),
		"amount":       amt.String(),
	})
	return Result[decimal.Amount]{Value: amt, Entry: e}, nil
}

// ClaimAll pays every unclaimed entitlement of caller in one payout
func (v *Vault) ClaimAll(caller address.Address) (Result[decimal.Amount], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return Result[decimal.Amount]{}, v.reject("claim_all", caller, err)
	}
	total, claims, err := v.dividends.ClaimAll(caller, v.ledger)
	if err != nil {
		return Result[decimal.Amount]{}, v.reject("claim_all", caller, err)
	}
	e := v.commit(audit.KindDividendsClaimedAll, caller, v.now(), map[string]string{
		"amount":        total.String(),
		"distributions": strconv.Itoa(len(claims)),
	})
	return Result[decimal.Amount]{Value: total, Entry: e}, nil
}

// WithdrawDust pays accumulated rounding remainders to the owner
func (v *Vault) WithdrawDust(caller address.Address) (Result[decimal.Amount], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return Result[decimal.Amount]{}, v.reject("withdraw_dust", caller, err)
	}
	amt, err := v.dividends.WithdrawDust()
	if err != nil {
		return Result[decimal.Amount]{}, v.reject("withdraw_dust", caller, err)
	}
	e := v.commit(audit.KindDustWithdrawn, caller, v.now(), map[string]string{"amount": amt.String()})
	return Result[decimal.Amount]{Value: amt, Entry: e}, nil
}

// UpdateAsset changes the mutable asset metadata
func (v *Vault) UpdateAsset(caller address.Address, u asset.Update) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("update_asset", caller, err)
	}
	now := v.now()
	if err := v.asset.Apply(u, now); err != nil {
		return audit.Entry{}, v.reject("update_asset", caller, err)
	}
	attrs := map[string]string{}
	if u.Location != "" {
		attrs["location"] = u.Location
	}
	if u.Valuation != nil {
		attrs["valuation"] = u.Valuation.String()
	}
	return v.commit(audit.KindAssetUpdated, caller, now, attrs), nil
}

// VerifyAsset marks the asset verified against a document hash
func (v *Vault) VerifyAsset(caller address.Address, hash string) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("verify_asset", caller, err)
	}
	now := v.now()
	if err := v.asset.Verify(hash, now); err != nil {
		return audit.Entry{}, v.reject("verify_asset", caller, err)
	}
	return v.commit(audit.KindAssetVerified, caller, now, map[string]string{"hash": hash}), nil
}

// Pause stops holder-facing writes
func (v *Vault) Pause(caller address.Address) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("pause", caller, err)
	}
	now := v.now()
	if err := v.admin.Pause(now); err != nil {
		return audit.Entry{}, v.reject("pause", caller, err)
	}
	v.logger.Warn().Str("caller", caller.String()).Msg("vault paused")
	return v.commit(audit.KindPaused, caller, now, nil), nil
}

// Unpause resumes holder-facing writes
func (v *Vault) Unpause(caller address.Address) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("unpause", caller, err)
	}
	if err := v.admin.Unpause(); err != nil {
		return audit.Entry{}, v.reject("unpause", caller, err)
	}
	return v.commit(audit.KindUnpaused, caller, v.now(), nil), nil
}

// TransferOwnership hands the owner role to next. The new owner is also
// made a reporter, matching the genesis owner.
func (v *Vault) TransferOwnership(caller, next address.Address) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("transfer_ownership", caller, err)
	}
	// the controller rejects a null owner before changing anything, and
	// the register accepts every address the controller does
	if err := v.admin.TransferOwnership(next); err != nil {
		return audit.Entry{}, v.reject("transfer_ownership", caller, err)
	}
	if err := v.reports.Authorize(next); err != nil {
		return audit.Entry{}, v.reject("transfer_ownership", caller, err)
	}
	return v.commit(audit.KindOwnershipTransferred, caller, v.now(), map[string]string{"owner": next.String()}), nil
}

// SetGovernanceParams replaces the proposal threshold and quorum
func (v *Vault) SetGovernanceParams(caller address.Address, p governance.Params) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("set_governance_params", caller, err)
	}
	if err := v.governance.SetParams(p); err != nil {
		return audit.Entry{}, v.reject("set_governance_params", caller, err)
	}
	return v.commit(audit.KindParamsUpdated, caller, v.now(), paramsAttrs(p)), nil
}

func paramsAttrs(p governance.Params) map[string]string {
	return map[string]string{
		"threshold_bps": strconv.FormatInt(p.ThresholdBps, 10),
		"quorum_bps":    strconv.FormatInt(p.QuorumBps, 10),
	}
}

// AssetInfo returns the asset metadata
func (v *Vault) AssetInfo() asset.Info {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.asset.Info
}

// UnitValue returns the tokenized valuation per unit of supply
func (v *Vault) UnitValue() (decimal.Amount, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.asset.UnitValue(v.ledger.Supply())
}

// Owner returns the current owner
func (v *Vault) Owner() address.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.admin.Owner
}

// Paused reports whether holder-facing writes are stopped
func (v *Vault) Paused() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.admin.Paused
}

// Report returns report id
func (v *Vault) Report(id uint64) (reports.Report, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reports.Get(id)
}

// ReportIDs returns all report ids in submission order
func (v *Vault) ReportIDs() []uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reports.All()
}

// PendingReports returns ids of unapproved reports
func (v *Vault) PendingReports() []uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reports.Pending()
}

// IsReporter reports whether addr may submit reports
func (v *Vault) IsReporter(addr address.Address) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reports.IsReporter(addr)
}

// Reporters lists the authorized reporters
func (v *Vault) Reporters() []address.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reports.ReporterList()
}

// Distribution returns distribution id
func (v *Vault) Distribution(id uint64) (dividends.Distribution, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dividends.Get(id)
}

// DistributionIDs returns all distribution ids in creation order
func (v *Vault) DistributionIDs() []uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dividends.All()
}

// Entitlement returns holder's share of distribution id
func (v *Vault) Entitlement(id uint64, holder address.Address) (decimal.Amount, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dividends.Entitlement(id, holder, v.ledger)
}

// Unclaimed sums holder's unclaimed entitlements
func (v *Vault) Unclaimed(holder address.Address) (decimal.Amount, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dividends.Unclaimed(holder, v.ledger)
}

// Dust returns the rounding remainder awaiting withdrawal
func (v *Vault) Dust() decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dividends.Dust
}
