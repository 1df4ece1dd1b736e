package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSink = errors.New("sink down")

func failing() error { return errSink }
func ok() error      { return nil }

func newTestBreaker(now *time.Time) *Breaker {
	return NewBreaker(Config{
		Name:        "test",
		MaxFailures: 3,
		Timeout:     time.Second,
		HalfOpenMax: 2,
		Clock:       func() time.Time { return *now },
	})
}

func TestBreakerClosed(t *testing.T) {
	now := time.Unix(0, 0)

	t.Run("should allow requests when closed", func(t *testing.T) {
		b := newTestBreaker(&now)
		assert.NoError(t, b.Execute(context.Background(), ok))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("should track failures and reset them on success", func(t *testing.T) {
		b := newTestBreaker(&now)
		assert.ErrorIs(t, b.Execute(context.Background(), failing), errSink)
		assert.Equal(t, 1, b.Failures())

		require.NoError(t, b.Execute(context.Background(), ok))
		assert.Equal(t, 0, b.Failures())
	})

	t.Run("should not count a cancelled context", func(t *testing.T) {
		b := newTestBreaker(&now)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := b.Execute(ctx, func() error { called = true; return nil })
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
		assert.Equal(t, 0, b.Failures())
	})
}

func TestBreakerOpen(t *testing.T) {
	t.Run("should open after max failures and reject until timeout", func(t *testing.T) {
		now := time.Unix(0, 0)
		b := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			_ = b.Execute(context.Background(), failing)
		}
		require.Equal(t, StateOpen, b.State())

		assert.ErrorIs(t, b.Execute(context.Background(), ok), ErrCircuitOpen)

		now = now.Add(2 * time.Second)
		assert.NoError(t, b.Execute(context.Background(), ok))
		assert.Equal(t, StateHalfOpen, b.State())

		assert.NoError(t, b.Execute(context.Background(), ok))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("should reopen on a half-open failure", func(t *testing.T) {
		now := time.Unix(0, 0)
		b := newTestBreaker(&now)
		for i := 0; i < 3; i++ {
			_ = b.Execute(context.Background(), failing)
		}
		now = now.Add(2 * time.Second)

		_ = b.Execute(context.Background(), failing)
		assert.Equal(t, StateOpen, b.State())
		assert.ErrorIs(t, b.Execute(context.Background(), ok), ErrCircuitOpen)
	})

	t.Run("should notify state changes", func(t *testing.T) {
		now := time.Unix(0, 0)
		var seen []State
		b := NewBreaker(Config{
			Name:          "nats",
			MaxFailures:   1,
			Timeout:       time.Second,
			Clock:         func() time.Time { return now },
			OnStateChange: func(name string, from, to State) { seen = append(seen, to) },
		})
		_ = b.Execute(context.Background(), failing)
		now = now.Add(2 * time.Second)
		require.NoError(t, b.Execute(context.Background(), ok))
		assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, seen)
	})
}

func TestBreakerGroup(t *testing.T) {
	t.Run("should keep one breaker per name", func(t *testing.T) {
		g := NewBreakerGroup(Config{MaxFailures: 1, Timeout: time.Minute})
		_ = g.Execute(context.Background(), "nats", failing)

		assert.Same(t, g.Get("nats"), g.Get("nats"))
		assert.Equal(t, "nats", g.Get("nats").Name())
		assert.NoError(t, g.Execute(context.Background(), "postgres", ok))

		states := g.States()
		assert.Equal(t, StateOpen, states["nats"])
		assert.Equal(t, StateClosed, states["postgres"])
	})
}
