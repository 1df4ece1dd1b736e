package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/terminal-bench/assetdao/internal/asset"
	"github.com/terminal-bench/assetdao/internal/governance"
	"github.com/terminal-bench/assetdao/internal/reports"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Request types. Amounts are human-unit decimal strings.

type TransferRequest struct {
	To     string         `json:"to" binding:"required"`
	Amount decimal.Amount `json:"amount"`
}

type TransferFromRequest struct {
	From   string         `json:"from" binding:"required"`
	To     string         `json:"to" binding:"required"`
	Amount decimal.Amount `json:"amount"`
}

type ApproveRequest struct {
	Spender string         `json:"spender" binding:"required"`
	Amount  decimal.Amount `json:"amount"`
}

type BuyRequest struct {
	Units   decimal.Amount `json:"units"`
	Payment decimal.Amount `json:"payment"`
}

type DelegateRequest struct {
	To string `json:"to" binding:"required"`
}

type SubmitReportRequest struct {
	Month    int            `json:"month"`
	Year     int            `json:"year"`
	Revenue  decimal.Amount `json:"revenue"`
	Expenses decimal.Amount `json:"expenses"`
	Hash     string         `json:"hash"`
}

type OpenDistributionRequest struct {
	ReportID uint64         `json:"report_id"`
	Total    decimal.Amount `json:"total"`
}

type VoteRequest struct {
	Choice governance.Choice `json:"choice"`
	Reason string            `json:"reason"`
}

type UpdateAssetRequest struct {
	Location    string          `json:"location"`
	Description string          `json:"description"`
	Valuation   *decimal.Amount `json:"valuation"`
}

type HashRequest struct {
	Hash string `json:"hash"`
}

type IssueRequest struct {
	To     string         `json:"to" binding:"required"`
	Amount decimal.Amount `json:"amount"`
}

type PriceRequest struct {
	Price decimal.Amount `json:"price"`
}

type AmountRequest struct {
	Amount decimal.Amount `json:"amount"`
}

type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

// Helpers

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func addrParam(c *gin.Context, name string) (address.Address, bool) {
	return parseAddr(c, c.Param(name), name)
}

func parseAddr(c *gin.Context, s, field string) (address.Address, bool) {
	addr, err := address.Parse(s)
	if err != nil {
		badRequest(c, "invalid "+field)
		return "", false
	}
	return addr, true
}

// Ledger reads

func (g *Gateway) getLedger(c *gin.Context) {
	c.JSON(http.StatusOK, g.vault.LedgerView())
}

func (g *Gateway) getQuote(c *gin.Context) {
	units, err := decimal.Parse(c.Query("units"))
	if err != nil {
		badRequest(c, "invalid units")
		return
	}
	cost, err := g.vault.Quote(units)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"units": units, "cost": cost})
}

func (g *Gateway) listHolders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"holders": g.vault.Holders()})
}

func (g *Gateway) getHolder(c *gin.Context) {
	addr, ok := addrParam(c, "addr")
	if !ok {
		return
	}
	body := gin.H{
		"address":      addr,
		"balance":      g.vault.BalanceOf(addr),
		"voting_power": g.vault.VotingPower(addr),
		"delegators":   g.vault.DelegatorsOf(addr),
		"is_reporter":  g.vault.IsReporter(addr),
	}
	if d, ok := g.vault.DelegationOf(addr); ok {
		body["delegation"] = d
	}
	if unclaimed, err := g.vault.Unclaimed(addr); err == nil {
		body["unclaimed"] = unclaimed
	}
	c.JSON(http.StatusOK, body)
}

func (g *Gateway) getAllowance(c *gin.Context) {
	owner, ok := addrParam(c, "owner")
	if !ok {
		return
	}
	spender, ok := addrParam(c, "spender")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner, "spender": spender, "allowance": g.vault.Allowance(owner, spender)})
}

// Ledger writes

func (g *Gateway) transfer(c *gin.Context) {
	var req TransferRequest
	if !bind(c, &req) {
		return
	}
	to, ok := parseAddr(c, req.To, "to")
	if !ok {
		return
	}
	e, err := g.vault.Transfer(caller(c), to, req.Amount)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) transferFrom(c *gin.Context) {
	var req TransferFromRequest
	if !bind(c, &req) {
		return
	}
	from, ok := parseAddr(c, req.From, "from")
	if !ok {
		return
	}
	to, ok := parseAddr(c, req.To, "to")
	if !ok {
		return
	}
	e, err := g.vault.TransferFrom(caller(c), from, to, req.Amount)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) approve(c *gin.Context) {
	var req ApproveRequest
	if !bind(c, &req) {
		return
	}
	spender, ok := parseAddr(c, req.Spender, "spender")
	if !ok {
		return
	}
	e, err := g.vault.Approve(caller(c), spender, req.Amount)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) buy(c *gin.Context) {
	var req BuyRequest
	if !bind(c, &req) {
		return
	}
	res, err := g.vault.Buy(caller(c), req.Units, req.Payment)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Delegation

func (g *Gateway) delegate(c *gin.Context) {
	var req DelegateRequest
	if !bind(c, &req) {
		return
	}
	to, ok := parseAddr(c, req.To, "to")
	if !ok {
		return
	}
	e, err := g.vault.Delegate(caller(c), to)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) undelegate(c *gin.Context) {
	e, err := g.vault.Undelegate(caller(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

// Reports

func (g *Gateway) listReports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ids": g.vault.ReportIDs()})
}

func (g *Gateway) listPendingReports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ids": g.vault.PendingReports()})
}

func (g *Gateway) listReporters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reporters": g.vault.Reporters()})
}

func (g *Gateway) getReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := g.vault.Report(id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (g *Gateway) submitReport(c *gin.Context) {
	var req SubmitReportRequest
	if !bind(c, &req) {
		return
	}
	period := reports.Period{Month: req.Month, Year: req.Year}
	res, err := g.vault.SubmitReport(caller(c), period, req.Revenue, req.Expenses, req.Hash)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) approveReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := g.vault.ApproveReport(caller(c), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Distributions

func (g *Gateway) listDistributions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ids": g.vault.DistributionIDs(), "dust": g.vault.Dust()})
}

func (g *Gateway) getDistribution(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	d, err := g.vault.Distribution(id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (g *Gateway) getEntitlement(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	addr, ok := addrParam(c, "addr")
	if !ok {
		return
	}
	amount, err := g.vault.Entitlement(id, addr)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution_id": id, "holder": addr, "entitlement": amount})
}

func (g *Gateway) openDistribution(c *gin.Context) {
	var req OpenDistributionRequest
	if !bind(c, &req) {
		return
	}
	res, err := g.vault.OpenDistribution(caller(c), req.ReportID, req.Total)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) claim(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := g.vault.Claim(caller(c), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) claimAll(c *gin.Context) {
	res, err := g.vault.ClaimAll(caller(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) withdrawDust(c *gin.Context) {
	res, err := g.vault.WithdrawDust(caller(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Governance

func (g *Gateway) listProposals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ids": g.vault.ProposalIDs()})
}

func (g *Gateway) listActiveProposals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ids": g.vault.ActiveProposals()})
}

func (g *Gateway) getProposal(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := g.vault.Proposal(id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (g *Gateway) getVote(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	addr, ok := addrParam(c, "addr")
	if !ok {
		return
	}
	v, voted, err := g.vault.VoteOf(id, addr)
	if err != nil {
		g.fail(c, err)
		return
	}
	body := gin.H{"proposal_id": id, "voter": addr, "has_voted": voted}
	if voted {
		body["vote"] = v
	}
	c.JSON(http.StatusOK, body)
}

func (g *Gateway) getGovernance(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"params":    g.vault.GovernanceParams(),
		"threshold": g.vault.ProposalThreshold(),
	})
}

func (g *Gateway) createProposal(c *gin.Context) {
	var req governance.Draft
	if !bind(c, &req) {
		return
	}
	res, err := g.vault.CreateProposal(caller(c), req)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) vote(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req VoteRequest
	if !bind(c, &req) {
		return
	}
	res, err := g.vault.Vote(caller(c), id, req.Choice, req.Reason)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) executeProposal(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := g.vault.ExecuteProposal(caller(c), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) cancelProposal(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := g.vault.CancelProposal(caller(c), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) setGovernanceParams(c *gin.Context) {
	var req governance.Params
	if !bind(c, &req) {
		return
	}
	e, err := g.vault.SetGovernanceParams(caller(c), req)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

// Asset

func (g *Gateway) getAsset(c *gin.Context) {
	c.JSON(http.StatusOK, g.vault.AssetInfo())
}

func (g *Gateway) getUnitValue(c *gin.Context) {
	v, err := g.vault.UnitValue()
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unit_value": v})
}

func (g *Gateway) updateAsset(c *gin.Context) {
	var req UpdateAssetRequest
	if !bind(c, &req) {
		return
	}
	e, err := g.vault.UpdateAsset(caller(c), asset.Update{
		Location:    req.Location,
		Description: req.Description,
		Valuation:   req.Valuation,
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) verifyAsset(c *gin.Context) {
	var req HashRequest
	if !bind(c, &req) {
		return
	}
	e, err := g.vault.VerifyAsset(caller(c), req.Hash)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

// Admin

func (g *Gateway) getAdmin(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"owner": g.vault.Owner(), "paused": g.vault.Paused()})
}

func (g *Gateway) issue(c *gin.Context) {
	var req IssueRequest
	if !bind(c, &req) {
		return
	}
	to, ok := parseAddr(c, req.To, "to")
	if !ok {
		return
	}
	e, err := g.vault.Issue(caller(c), to, req.Amount)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) setPrice(c *gin.Context) {
	var req PriceRequest
	if !bind(c, &req) {
		return
	}
	e, err := g.vault.SetUnitPrice(caller(c), req.Price)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) withdrawTreasury(c *gin.Context) {
	var req AmountRequest
	if !bind(c, &req) {
		return
	}
	e, err := g.vault.WithdrawTreasury(caller(c), req.Amount)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) authorizeReporter(c *gin.Context) {
	var req AddressRequest
	if !bind(c, &req) {
		return
	}
	addr, ok := parseAddr(c, req.Address, "address")
	if !ok {
		return
	}
	e, err := g.vault.AuthorizeReporter(caller(c), addr)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) revokeReporter(c *gin.Context) {
	addr, ok := addrParam(c, "addr")
	if !ok {
		return
	}
	e, err := g.vault.RevokeReporter(caller(c), addr)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) pause(c *gin.Context) {
	e, err := g.vault.Pause(caller(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) unpause(c *gin.Context) {
	e, err := g.vault.Unpause(caller(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (g *Gateway) transferOwnership(c *gin.Context) {
	var req AddressRequest
	if !bind(c, &req) {
		return
	}
	next, ok := parseAddr(c, req.Address, "address")
	if !ok {
		return
	}
	e, err := g.vault.TransferOwnership(caller(c), next)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

// Audit

func (g *Gateway) listAudit(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		badRequest(c, "since must be a non-negative integer")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		badRequest(c, "limit must be between 1 and 1000")
		return
	}
	entries := g.vault.Journal().Since(since)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "last_seq": g.vault.Journal().LastSeq()})
}
