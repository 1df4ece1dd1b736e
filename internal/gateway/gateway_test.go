package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/internal/asset"
	"github.com/terminal-bench/assetdao/internal/auth"
	"github.com/terminal-bench/assetdao/internal/governance"
	"github.com/terminal-bench/assetdao/internal/leader"
	"github.com/terminal-bench/assetdao/internal/vault"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var (
	owner  = address.MustParse("0x0000000000000000000000000000000000000001")
	alice  = address.MustParse("0x00000000000000000000000000000000000000a1")
	bob    = address.MustParse("0x00000000000000000000000000000000000000b2")
	nobody = address.MustParse("0x00000000000000000000000000000000000000ee")
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memIdempotency is an in-memory IdempotencyStore
type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]*StoredResponse
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]*StoredResponse)}
}

func (m *memIdempotency) Begin(_ context.Context, key string, _ time.Duration) (*StoredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.keys[key]
	if !ok {
		m.keys[key] = nil
		return nil, nil
	}
	if resp == nil {
		return nil, ErrInFlight
	}
	return resp, nil
}

func (m *memIdempotency) Finish(_ context.Context, key string, resp StoredResponse, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = &resp
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fixture struct {
	gw    *Gateway
	vault *vault.Vault
	auth  *auth.Service
	idem  *memIdempotency
}

func setup(t *testing.T, cfg Config, elector leader.Elector) *fixture {
	t.Helper()
	v, err := vault.New(vault.Genesis{
		Owner: owner,
		Asset: asset.Info{
			Name:         "Harbour Cafe Units",
			Symbol:       "HCU",
			AssetName:    "Harbour Cafe",
			Location:     "Porto",
			Valuation:    decimal.FromUnits(100000),
			TokenizedBps: 4000,
		},
		Cap:       decimal.FromUnits(1000),
		UnitPrice: decimal.MustParse("0.002"),
		Allocations: []vault.Allocation{
			{Holder: alice, Units: decimal.FromUnits(600)},
			{Holder: bob, Units: decimal.FromUnits(100)},
		},
		Governance: governance.DefaultParams(),
	})
	require.NoError(t, err)

	svc, err := auth.NewService(testSecret, time.Hour)
	require.NoError(t, err)

	idem := newMemIdempotency()
	gw := NewGateway(cfg, Deps{
		Vault:       v,
		Auth:        svc,
		Elector:     elector,
		Idempotency: idem,
		Logger:      zerolog.Nop(),
	})
	return &fixture{gw: gw, vault: v, auth: svc, idem: idem}
}

func (f *fixture) token(t *testing.T, addr address.Address) string {
	t.Helper()
	tok, err := f.auth.Issue(addr)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (f *fixture) do(t *testing.T, method, path string, as address.Address, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", f.token(t, as))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.gw.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{apperr.ErrUnauthorized, http.StatusForbidden},
		{apperr.ErrPaused, http.StatusConflict},
		{apperr.ErrZeroSupply, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", apperr.ErrAlreadyVoted), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run("should map "+apperr.CodeOf(tc.err), func(t *testing.T) {
			assert.Equal(t, tc.want, StatusOf(tc.err))
		})
	}
}

func TestReads(t *testing.T) {
	f := setup(t, Config{}, nil)

	t.Run("should report health", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", decode(t, w)["status"])
		assert.NotEmpty(t, w.Header().Get(headerCorrelationID))
	})

	t.Run("should serve balances in human units", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/holders/"+alice.String(), "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "600", body["balance"])
		assert.Equal(t, "600", body["voting_power"])
	})

	t.Run("should quote a purchase", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/ledger/quote?units=10", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "0.02", decode(t, w)["cost"])
	})

	t.Run("should reject a malformed quote", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/ledger/quote?units=ten", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should reject a malformed address", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/holders/0xab%20cd", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should return 404 for an unknown report", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/reports/99", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should list the owner as a reporter", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/reporters", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), owner.String())
	})
}

func TestAuth(t *testing.T) {
	f := setup(t, Config{}, nil)
	body := TransferRequest{To: bob.String(), Amount: decimal.FromUnits(1)}

	t.Run("should reject writes without a token", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/transfers", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "unauthenticated", decode(t, w)["code"])
	})

	t.Run("should reject a token signed with another key", func(t *testing.T) {
		other, err := auth.NewService("ffffffffffffffffffffffffffffffff", time.Hour)
		require.NoError(t, err)
		tok, err := other.Issue(alice)
		require.NoError(t, err)
		w := f.do(t, http.MethodPost, "/api/v1/transfers", "", body, "Authorization", "Bearer "+tok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid_token", decode(t, w)["code"])
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		past, err := auth.NewService(testSecret, time.Minute)
		require.NoError(t, err)
		past.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
		tok, err := past.Issue(alice)
		require.NoError(t, err)
		w := f.do(t, http.MethodPost, "/api/v1/transfers", "", body, "Authorization", "Bearer "+tok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "token_expired", decode(t, w)["code"])
	})
}

func TestTransfer(t *testing.T) {
	f := setup(t, Config{}, nil)

	t.Run("should move units for the token holder", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, TransferRequest{To: bob.String(), Amount: decimal.MustParse("1.5")})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, f.vault.BalanceOf(bob).Equal(decimal.MustParse("101.5")))
		assert.True(t, f.vault.BalanceOf(alice).Equal(decimal.MustParse("598.5")))
	})

	t.Run("should map insufficient balance to 422", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/transfers", nobody, TransferRequest{To: bob.String(), Amount: decimal.FromUnits(1)})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "insufficient_balance", decode(t, w)["code"])
	})

	t.Run("should map admin-only calls to 403", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/admin/pause", alice, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("should map paused state to 409", func(t *testing.T) {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/admin/pause", owner, nil).Code)
		w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, TransferRequest{To: bob.String(), Amount: decimal.FromUnits(1)})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "paused", decode(t, w)["code"])
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/admin/unpause", owner, nil).Code)
	})

	t.Run("should reject a missing recipient", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, map[string]string{"amount": "1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLeaderGate(t *testing.T) {
	f := setup(t, Config{}, leader.Static(false))

	t.Run("should refuse writes on a follower", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, TransferRequest{To: bob.String(), Amount: decimal.FromUnits(1)})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "not_leader", decode(t, w)["code"])
		assert.True(t, f.vault.BalanceOf(bob).Equal(decimal.FromUnits(100)))
	})

	t.Run("should still serve reads", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/ledger", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		for _, k := range []string{"total_supply", "cap", "unit_price", "treasury", "paused"} {
			assert.Contains(t, body, k)
		}
		assert.Equal(t, false, body["paused"])
		assert.Equal(t, "700", body["total_supply"])
	})
}

func TestIdempotency(t *testing.T) {
	f := setup(t, Config{}, nil)
	body := TransferRequest{To: bob.String(), Amount: decimal.FromUnits(10)}

	t.Run("should apply a keyed write once and replay it", func(t *testing.T) {
		first := f.do(t, http.MethodPost, "/api/v1/transfers", alice, body, headerIdempotency, "k-1")
		require.Equal(t, http.StatusOK, first.Code)
		second := f.do(t, http.MethodPost, "/api/v1/transfers", alice, body, headerIdempotency, "k-1")
		require.Equal(t, http.StatusOK, second.Code)

		assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.True(t, f.vault.BalanceOf(bob).Equal(decimal.FromUnits(110)))
	})

	t.Run("should scope keys per caller", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/transfers", bob, TransferRequest{To: alice.String(), Amount: decimal.FromUnits(1)}, headerIdempotency, "k-1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
	})

	t.Run("should replay a domain failure", func(t *testing.T) {
		bad := TransferRequest{To: bob.String(), Amount: decimal.FromUnits(5000)}
		first := f.do(t, http.MethodPost, "/api/v1/transfers", alice, bad, headerIdempotency, "k-2")
		require.Equal(t, http.StatusUnprocessableEntity, first.Code)
		second := f.do(t, http.MethodPost, "/api/v1/transfers", alice, bad, headerIdempotency, "k-2")
		assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
		assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	})

	t.Run("should report a key still in flight", func(t *testing.T) {
		_, err := f.idem.Begin(context.Background(), alice.String()+":POST:/api/v1/transfers:k-3", time.Minute)
		require.NoError(t, err)
		w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, body, headerIdempotency, "k-3")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "request_in_flight", decode(t, w)["code"])
	})
}

func TestGovernanceFlow(t *testing.T) {
	f := setup(t, Config{}, nil)

	var id float64
	t.Run("should create a proposal", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/proposals", alice, map[string]interface{}{
			"type":        "operational",
			"urgency":     "high",
			"title":       "Extend opening hours",
			"description": "Open until midnight on weekends",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		value := decode(t, w)["value"].(map[string]interface{})
		id = value["id"].(float64)
		assert.Equal(t, "operational", value["type"])
	})

	t.Run("should reject a creator below the threshold", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/proposals", nobody, map[string]interface{}{
			"type": "operational", "urgency": "low", "title": "Noise",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	path := fmt.Sprintf("/api/v1/proposals/%d", int(id))

	t.Run("should count a vote with checkpoint weight", func(t *testing.T) {
		w := f.do(t, http.MethodPost, path+"/votes", bob, VoteRequest{Choice: governance.ChoiceFor, Reason: "more revenue"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		vote := decode(t, w)["value"].(map[string]interface{})
		assert.Equal(t, "100", vote["weight"])
		assert.Equal(t, "for", vote["choice"])
	})

	t.Run("should refuse a second vote", func(t *testing.T) {
		w := f.do(t, http.MethodPost, path+"/votes", bob, VoteRequest{Choice: governance.ChoiceAgainst})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "already_voted", decode(t, w)["code"])
	})

	t.Run("should expose the recorded vote", func(t *testing.T) {
		w := f.do(t, http.MethodGet, path+"/votes/"+bob.String(), "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode(t, w)["has_voted"])
	})

	t.Run("should show the proposal as active", func(t *testing.T) {
		w := f.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "active", body["status"])
		assert.Equal(t, "100", body["for"])
	})

	t.Run("should not execute before the deadline", func(t *testing.T) {
		w := f.do(t, http.MethodPost, path+"/execute", alice, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "voting_open", decode(t, w)["code"])
	})
}

func TestAuditFeed(t *testing.T) {
	f := setup(t, Config{}, nil)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/transfers", alice, TransferRequest{To: bob.String(), Amount: decimal.FromUnits(1)}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/approvals", alice, ApproveRequest{Spender: bob.String(), Amount: decimal.FromUnits(5)}).Code)

	t.Run("should list entries after a sequence", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/audit?since=1", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		entries := body["entries"].([]interface{})
		require.Len(t, entries, 1)
		assert.Equal(t, "units.approved", entries[0].(map[string]interface{})["kind"])
		assert.Equal(t, float64(2), body["last_seq"])
	})

	t.Run("should reject a negative sequence", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/audit?since=-1", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("should limit requests inside the window", func(t *testing.T) {
		rl := NewRateLimiter(2, time.Minute)
		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("should admit again after the window slides", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(1, time.Minute)
		rl.now = func() time.Time { return now }
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		now = now.Add(61 * time.Second)
		assert.True(t, rl.Allow("a"))
	})

	t.Run("should sweep idle keys", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(5, time.Minute)
		rl.now = func() time.Time { return now }
		rl.Allow("a")
		now = now.Add(2 * time.Minute)
		rl.Sweep()
		assert.Empty(t, rl.requests)
	})

	t.Run("should answer 429 through the router", func(t *testing.T) {
		f := setup(t, Config{RateLimitMax: 1, RateLimitWindow: time.Minute}, nil)
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil).Code)
		w := f.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "rate_limited", decode(t, w)["code"])
	})
}
