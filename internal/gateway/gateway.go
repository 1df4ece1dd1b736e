package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/assetdao/internal/auth"
	"github.com/terminal-bench/assetdao/internal/leader"
	"github.com/terminal-bench/assetdao/internal/vault"
	"github.com/terminal-bench/assetdao/pkg/address"
)

const (
	ctxCaller        = "caller"
	ctxCorrelationID = "correlation_id"

	headerCorrelationID = "X-Correlation-ID"
	headerIdempotency   = "Idempotency-Key"
)

// Gateway is the HTTP front of a vault
type Gateway struct {
	router      *gin.Engine
	vault       *vault.Vault
	auth        *auth.Service
	elector     leader.Elector
	idempotency IdempotencyStore
	hub         *Hub
	rateLimiter *RateLimiter
	cfg         Config
	health      func() map[string]string
	logger      zerolog.Logger
}

// RateLimiter implements a sliding-window limit per client key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

// Config holds gateway configuration
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
	CORSOrigins     []string
	IdempotencyTTL  time.Duration
}

// Deps are the collaborators a gateway serves. Elector, Idempotency and
// Health may be nil.
type Deps struct {
	Vault       *vault.Vault
	Auth        *auth.Service
	Elector     leader.Elector
	Idempotency IdempotencyStore
	Hub         *Hub
	Health      func() map[string]string
	Logger      zerolog.Logger
}

// NewGateway creates a new API gateway
func NewGateway(cfg Config, deps Deps) *Gateway {
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 120
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	logger := deps.Logger.With().Str("component", "gateway").Logger()
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Vault.Journal(), logger)
	}

	g := &Gateway{
		router:      gin.New(),
		vault:       deps.Vault,
		auth:        deps.Auth,
		elector:     deps.Elector,
		idempotency: deps.Idempotency,
		hub:         hub,
		rateLimiter: NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		cfg:         cfg,
		health:      deps.Health,
		logger:      logger,
	}

	g.setupRoutes()
	return g
}

// Handler exposes the router for tests and custom servers
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Hub returns the WebSocket hub so the relay can broadcast into it
func (g *Gateway) Hub() *Hub {
	return g.hub
}

func (g *Gateway) setupRoutes() {
	g.router.Use(gin.Recovery())
	g.router.Use(g.corsMiddleware())
	g.router.Use(g.tracingMiddleware())
	g.router.Use(g.loggingMiddleware())
	g.router.Use(g.rateLimitMiddleware())

	g.router.GET("/health", g.healthCheck)

	v1 := g.router.Group("/api/v1")
	{
		// Reads are public
		v1.GET("/asset", g.getAsset)
		v1.GET("/asset/unit-value", g.getUnitValue)
		v1.GET("/ledger", g.getLedger)
		v1.GET("/ledger/quote", g.getQuote)
		v1.GET("/holders", g.listHolders)
		v1.GET("/holders/:addr", g.getHolder)
		v1.GET("/allowances/:owner/:spender", g.getAllowance)
		v1.GET("/reports", g.listReports)
		v1.GET("/reports/pending", g.listPendingReports)
		v1.GET("/reports/:id", g.getReport)
		v1.GET("/reporters", g.listReporters)
		v1.GET("/distributions", g.listDistributions)
		v1.GET("/distributions/:id", g.getDistribution)
		v1.GET("/distributions/:id/entitlements/:addr", g.getEntitlement)
		v1.GET("/proposals", g.listProposals)
		v1.GET("/proposals/active", g.listActiveProposals)
		v1.GET("/proposals/:id", g.getProposal)
		v1.GET("/proposals/:id/votes/:addr", g.getVote)
		v1.GET("/governance", g.getGovernance)
		v1.GET("/admin", g.getAdmin)
		v1.GET("/audit", g.listAudit)
		v1.GET("/events/ws", g.hub.Serve)

		w := v1.Group("", g.authMiddleware(), g.leaderMiddleware(), g.idempotencyMiddleware())
		{
			w.POST("/transfers", g.transfer)
			w.POST("/transfers/from", g.transferFrom)
			w.POST("/approvals", g.approve)
			w.POST("/purchases", g.buy)

			w.PUT("/delegation", g.delegate)
			w.DELETE("/delegation", g.undelegate)

			w.POST("/reports", g.submitReport)
			w.POST("/reports/:id/approve", g.approveReport)

			w.POST("/distributions", g.openDistribution)
			w.POST("/distributions/claim-all", g.claimAll)
			w.POST("/distributions/dust/withdraw", g.withdrawDust)
			w.POST("/distributions/:id/claim", g.claim)

			w.POST("/proposals", g.createProposal)
			w.POST("/proposals/:id/votes", g.vote)
			w.POST("/proposals/:id/execute", g.executeProposal)
			w.POST("/proposals/:id/cancel", g.cancelProposal)

			w.PATCH("/asset", g.updateAsset)
			w.POST("/asset/verify", g.verifyAsset)

			w.POST("/admin/issue", g.issue)
			w.PUT("/admin/price", g.setPrice)
			w.POST("/admin/treasury/withdraw", g.withdrawTreasury)
			w.POST("/admin/reporters", g.authorizeReporter)
			w.DELETE("/admin/reporters/:addr", g.revokeReporter)
			w.POST("/admin/pause", g.pause)
			w.POST("/admin/unpause", g.unpause)
			w.PUT("/admin/owner", g.transferOwnership)
			w.PUT("/governance", g.setGovernanceParams)
		}
	}
}

// Start serves until ctx is done, then shuts down gracefully
func (g *Gateway) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         g.cfg.Addr,
		Handler:      g.router,
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info().Str("addr", g.cfg.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sweep := time.NewTicker(g.cfg.RateLimitWindow)
	defer sweep.Stop()
	for running := true; running; {
		select {
		case err := <-errCh:
			return err
		case <-sweep.C:
			g.rateLimiter.Sweep()
		case <-ctx.Done():
			running = false
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.cfg.ShutdownTimeout)
	defer cancel()
	g.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	g.logger.Info().Msg("gateway stopped")
	return nil
}

// Middleware

func (g *Gateway) corsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", headerIdempotency, headerCorrelationID)
	cfg.ExposeHeaders = []string{headerCorrelationID}
	if len(g.cfg.CORSOrigins) == 0 || (len(g.cfg.CORSOrigins) == 1 && g.cfg.CORSOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = g.cfg.CORSOrigins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	return cors.New(cfg)
}

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing authorization", Code: "unauthenticated"})
			return
		}

		claims, err := g.auth.Verify(token)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, auth.ErrTokenExpired) {
				code = "token_expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "invalid token", Code: code})
			return
		}

		c.Set(ctxCaller, claims.Address)
		c.Next()
	}
}

// leaderMiddleware rejects writes on followers
func (g *Gateway) leaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.elector != nil && !g.elector.IsLeader() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{Error: "not leader", Code: "not_leader", Message: "writes are served by the leader replica"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Code: "rate_limited"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(headerCorrelationID)
		if _, err := uuid.Parse(correlationID); err != nil {
			correlationID = uuid.New().String()
		}

		c.Set(ctxCorrelationID, correlationID)
		c.Header(headerCorrelationID, correlationID)
		c.Next()
	}
}

func (g *Gateway) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := g.logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = g.logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("correlation_id", c.GetString(ctxCorrelationID)).
			Msg("request")
	}
}

// caller returns the authenticated address set by authMiddleware
func caller(c *gin.Context) address.Address {
	v, _ := c.Get(ctxCaller)
	addr, _ := v.(address.Address)
	return addr
}

// Handlers

func (g *Gateway) healthCheck(c *gin.Context) {
	body := gin.H{"status": "healthy", "paused": g.vault.Paused(), "seq": g.vault.Journal().LastSeq()}
	if g.elector != nil {
		body["leader"] = g.elector.IsLeader()
	}
	if g.health != nil {
		for k, v := range g.health() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

// NewRateLimiter creates a limiter allowing limit requests per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	requests := rl.requests[key]
	valid := requests[:0]
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// Sweep drops keys with no requests inside the window
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for key, reqs := range rl.requests {
		if len(reqs) == 0 || !reqs[len(reqs)-1].After(cutoff) {
			delete(rl.requests, key)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
