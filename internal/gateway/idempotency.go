package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// ErrInFlight means a request with the same key is still being handled
var ErrInFlight = errors.New("request with this idempotency key is in progress")

const pendingMarker = "pending"

// StoredResponse is a replayable write response
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore remembers write responses by client-supplied key
type IdempotencyStore interface {
	// Begin claims key. It returns the stored response when the key was
	// already completed, or ErrInFlight while another request holds it.
	Begin(ctx context.Context, key string, ttl time.Duration) (*StoredResponse, error)
	Finish(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisIdempotency keeps keys in Redis
type RedisIdempotency struct {
	client *redis.Client
	prefix string
}

// NewRedisIdempotency wraps client
func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client, prefix: "assetdao:idem:"}
}

// Begin implements IdempotencyStore
func (r *RedisIdempotency) Begin(ctx context.Context, key string, ttl time.Duration) (*StoredResponse, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency claim: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return r.Begin(ctx, key, ttl)
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if raw == pendingMarker {
		return nil, ErrInFlight
	}
	var resp StoredResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	return &resp, nil
}

// Finish implements IdempotencyStore
func (r *RedisIdempotency) Finish(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, data, ttl).Err()
}

// Release implements IdempotencyStore
func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// bodyWriter captures the response body alongside writing it
type bodyWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w bodyWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key from the same caller. Server errors are not stored, so
// they can be retried.
func (g *Gateway) idempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(headerIdempotency)
		if key == "" || g.idempotency == nil {
			c.Next()
			return
		}
		if len(key) > 128 {
			badRequest(c, "idempotency key too long")
			return
		}
		scoped := caller(c).String() + ":" + c.Request.Method + ":" + c.FullPath() + ":" + key
		ctx := c.Request.Context()

		stored, err := g.idempotency.Begin(ctx, scoped, g.cfg.IdempotencyTTL)
		switch {
		case errors.Is(err, ErrInFlight):
			c.AbortWithStatusJSON(http.StatusConflict, errorBody{Error: http.StatusText(http.StatusConflict), Code: "request_in_flight", Message: err.Error()})
			return
		case err != nil:
			// cache unavailable: serve without the guarantee
			g.logger.Warn().Err(err).Msg("idempotency store unavailable")
			c.Next()
			return
		case stored != nil:
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
			c.Abort()
			return
		}

		w := bodyWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = w
		c.Next()

		if w.Status() >= http.StatusInternalServerError {
			if err := g.idempotency.Release(context.WithoutCancel(ctx), scoped); err != nil {
				g.logger.Warn().Err(err).Msg("idempotency release failed")
			}
			return
		}
		body := w.buf.Bytes()
		if len(body) == 0 {
			body = []byte("null")
		}
		resp := StoredResponse{Status: w.Status(), Body: json.RawMessage(body)}
		if err := g.idempotency.Finish(context.WithoutCancel(ctx), scoped, resp, g.cfg.IdempotencyTTL); err != nil {
			g.logger.Warn().Err(err).Msg("idempotency store failed")
		}
	}
}
