package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/assetdao/internal/audit"
	"github.com/terminal-bench/assetdao/internal/metrics"
	"github.com/terminal-bench/assetdao/pkg/circuit"
	"github.com/terminal-bench/assetdao/pkg/messaging"
	"github.com/terminal-bench/assetdao/shared/events"
)

// Breaker names, one per downstream sink
const (
	SinkBroker = "nats"
	SinkStore  = "postgres"
)

// EntryStore persists audit entries
type EntryStore interface {
	AppendEntry(ctx context.Context, e audit.Entry) error
}

// Broadcaster fans envelopes out to live clients
type Broadcaster interface {
	Broadcast(env events.Envelope)
}

// Source is the journal the relay follows. Since backs up entries a full
// subscription channel missed.
type Source interface {
	Subscribe(buffer int) (<-chan audit.Entry, func())
	Since(seq int64) []audit.Entry
	LastSeq() int64
}

// Config holds relay configuration
type Config struct {
	Source        string         `mapstructure:"source"`
	Buffer        int            `mapstructure:"buffer"`
	SinkTimeout   time.Duration  `mapstructure:"sink_timeout"`
	BreakerConfig circuit.Config `mapstructure:"-"`
}

// Stats counts relay outcomes per sink
type Stats struct {
	Relayed         int64 `json:"relayed"`
	PublishFailures int64 `json:"publish_failures"`
	StoreFailures   int64 `json:"store_failures"`
	Backfilled      int64 `json:"backfilled"`
	Lost            int64 `json:"lost"`
}

// Relay forwards each committed audit entry to the broker, the store,
// metrics and WebSocket clients. A failing sink never blocks the others.
type Relay struct {
	cfg       Config
	publisher messaging.Publisher
	store     EntryStore
	recorder  metrics.Recorder
	hub       Broadcaster
	breakers  *circuit.BreakerGroup
	logger    zerolog.Logger

	relayed   atomic.Int64
	pubFails  atomic.Int64
	saveFails atomic.Int64
	backfill  atomic.Int64
	lost      atomic.Int64
}

// New builds a relay. Nil sinks are skipped.
func New(cfg Config, publisher messaging.Publisher, store EntryStore, recorder metrics.Recorder, hub Broadcaster, logger zerolog.Logger) *Relay {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "assetd"
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	logger = logger.With().Str("component", "relay").Logger()
	bc := cfg.BreakerConfig
	if bc.OnStateChange == nil {
		bc.OnStateChange = func(name string, from, to circuit.State) {
			logger.Warn().Str("sink", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state changed")
		}
	}
	return &Relay{
		cfg:       cfg,
		publisher: publisher,
		store:     store,
		recorder:  recorder,
		hub:       hub,
		breakers:  circuit.NewBreakerGroup(bc),
		logger:    logger,
	}
}

// Run follows src until ctx is done. A sequence gap on the channel is
// filled from src.Since before the entry that revealed it.
func (r *Relay) Run(ctx context.Context, src Source) error {
	// read before subscribing so anything appended in between shows up as a gap
	last := src.LastSeq()
	ch, cancel := src.Subscribe(r.cfg.Buffer)
	defer cancel()

	r.logger.Info().Int("buffer", r.cfg.Buffer).Int64("from", last).Msg("relay started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Int64("relayed", r.relayed.Load()).Msg("relay stopped")
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if e.Seq <= last {
				continue
			}
			if e.Seq > last+1 {
				r.backfillGap(ctx, src, last, e.Seq)
			}
			r.Handle(ctx, e)
			last = e.Seq
		}
	}
}

// backfillGap relays retained entries in (from, to). Entries already
// evicted from the journal are counted as lost.
func (r *Relay) backfillGap(ctx context.Context, src Source, from, to int64) {
	next, missing := from+1, int64(0)
	for _, m := range src.Since(from) {
		if m.Seq >= to {
			break
		}
		missing += m.Seq - next
		r.Handle(ctx, m)
		r.backfill.Add(1)
		next = m.Seq + 1
	}
	missing += to - next
	if missing > 0 {
		r.lost.Add(missing)
		r.logger.Error().Int64("from", from+1).Int64("to", to-1).Int64("lost", missing).Msg("audit entries evicted before they could be relayed")
		return
	}
	r.logger.Warn().Int64("from", from+1).Int64("to", to-1).Msg("relay buffer overflowed, backfilled from journal")
}

// Handle forwards one entry to every sink
func (r *Relay) Handle(ctx context.Context, e audit.Entry) {
	env, err := Envelope(e, r.cfg.Source)
	if err != nil {
		r.logger.Error().Err(err).Int64("seq", e.Seq).Msg("failed to build envelope")
		return
	}

	sinkCtx, cancel := context.WithTimeout(ctx, r.cfg.SinkTimeout)
	defer cancel()

	if err := r.breakers.Execute(sinkCtx, SinkBroker, func() error {
		return r.publisher.Publish(sinkCtx, messaging.Subject(string(e.Kind)), env)
	}); err != nil {
		r.pubFails.Add(1)
		r.logger.Warn().Err(err).Int64("seq", e.Seq).Msg("publish failed")
	}

	if r.store != nil {
		if err := r.breakers.Execute(sinkCtx, SinkStore, func() error {
			return r.store.AppendEntry(sinkCtx, e)
		}); err != nil {
			r.saveFails.Add(1)
			r.logger.Warn().Err(err).Int64("seq", e.Seq).Msg("store append failed")
		}
	}

	if err := r.recorder.Record(sinkCtx, e); err != nil {
		r.logger.Debug().Err(err).Int64("seq", e.Seq).Msg("metric dropped")
	}

	if r.hub != nil {
		r.hub.Broadcast(env)
	}
	r.relayed.Add(1)
}

// Stats returns counters since start
func (r *Relay) Stats() Stats {
	return Stats{
		Relayed:         r.relayed.Load(),
		PublishFailures: r.pubFails.Load(),
		StoreFailures:   r.saveFails.Load(),
		Backfilled:      r.backfill.Load(),
		Lost:            r.lost.Load(),
	}
}

// Breakers exposes sink breaker states for health checks
func (r *Relay) Breakers() map[string]circuit.State {
	return r.breakers.States()
}

// Envelope wraps an entry for the wire. The entry id is reused so
// consumers can deduplicate.
func Envelope(e audit.Entry, source string) (events.Envelope, error) {
	return events.NewEnvelope(e.ID, string(e.Kind), e.Seq, e.At, e.Actor.String(), source, e)
}
