package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/terminal-bench/assetdao/internal/relay"
	"github.com/terminal-bench/assetdao/pkg/circuit"
)

type stubBroker struct {
	connected  bool
	reconnects int
}

func (s stubBroker) IsConnected() bool { return s.connected }
func (s stubBroker) Reconnects() int   { return s.reconnects }

func TestHealthReport(t *testing.T) {
	stats := relay.Stats{Relayed: 12, Backfilled: 2}
	breakers := map[string]circuit.State{relay.SinkBroker: circuit.StateClosed}

	t.Run("should report broker reconnects", func(t *testing.T) {
		out := healthReport(stats, breakers, stubBroker{connected: true, reconnects: 3})
		assert.Equal(t, "true", out["nats"])
		assert.Equal(t, "3", out["nats_reconnects"])
		assert.Equal(t, "12", out["relayed"])
		assert.Equal(t, "2", out["backfilled"])
		assert.Equal(t, "0", out["lost"])
		assert.Equal(t, circuit.StateClosed.String(), out["breaker_nats"])
	})

	t.Run("should omit broker keys without a broker", func(t *testing.T) {
		out := healthReport(stats, nil, nil)
		assert.NotContains(t, out, "nats")
		assert.NotContains(t, out, "nats_reconnects")
	})
}
