package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/assetdao/internal/audit"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/circuit"
	"github.com/terminal-bench/assetdao/shared/events"
)

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakePublisher) Subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subjects...)
}

type fakeStore struct {
	mu   sync.Mutex
	seqs []int64
	err  error
}

func (f *fakeStore) AppendEntry(_ context.Context, e audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.seqs = append(f.seqs, e.Seq)
	return nil
}

type fakeHub struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (f *fakeHub) Broadcast(env events.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envs = append(f.envs, env)
}

func (f *fakeHub) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.envs)
}

var alice = address.MustParse("0xa11ce")

func TestHandle(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	j := audit.NewJournal(10)
	e := j.Append(audit.KindUnitsTransferred, alice, at, map[string]string{"amount": "1"})

	t.Run("should fan an entry out to every sink", func(t *testing.T) {
		pub, store, hub := &fakePublisher{}, &fakeStore{}, &fakeHub{}
		r := New(Config{}, pub, store, nil, hub, zerolog.Nop())

		r.Handle(context.Background(), e)

		assert.Equal(t, []string{"assetdao.units.transferred"}, pub.Subjects())
		assert.Equal(t, []int64{e.Seq}, store.seqs)
		require.Equal(t, 1, hub.Len())
		assert.Equal(t, e.ID, hub.envs[0].ID)
		assert.Equal(t, "0xa11ce", hub.envs[0].Metadata.Actor)
		assert.Equal(t, Stats{Relayed: 1}, r.Stats())
	})

	t.Run("should keep going when the broker fails", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("nats down")}
		store, hub := &fakeStore{}, &fakeHub{}
		r := New(Config{BreakerConfig: circuit.Config{MaxFailures: 2, Timeout: time.Minute}}, pub, store, nil, hub, zerolog.Nop())

		for i := 0; i < 3; i++ {
			r.Handle(context.Background(), e)
		}

		assert.Len(t, store.seqs, 3)
		assert.Equal(t, 3, hub.Len())
		assert.Equal(t, int64(3), r.Stats().PublishFailures)
		assert.Equal(t, circuit.StateOpen, r.Breakers()[SinkBroker])
	})

	t.Run("should count store failures", func(t *testing.T) {
		store := &fakeStore{err: errors.New("pg down")}
		r := New(Config{}, nil, store, nil, nil, zerolog.Nop())
		r.Handle(context.Background(), e)
		assert.Equal(t, int64(1), r.Stats().StoreFailures)
		assert.Equal(t, int64(1), r.Stats().Relayed)
	})
}

func TestEnvelope(t *testing.T) {
	t.Run("should embed the entry as data", func(t *testing.T) {
		j := audit.NewJournal(10)
		e := j.Append(audit.KindProposalCreated, alice, time.Unix(100, 0).UTC(), map[string]string{"proposal": "1"})

		env, err := Envelope(e, "test")
		require.NoError(t, err)
		assert.Equal(t, "proposal.created", env.Type)
		assert.Equal(t, e.Seq, env.Sequence)

		var back audit.Entry
		require.NoError(t, json.Unmarshal(env.Data, &back))
		assert.Equal(t, e.ID, back.ID)
		assert.Equal(t, "1", back.Attrs["proposal"])
	})
}

func TestRun(t *testing.T) {
	t.Run("should follow the journal until cancelled", func(t *testing.T) {
		j := audit.NewJournal(10)
		pub := &fakePublisher{}
		r := New(Config{Buffer: 8}, pub, nil, nil, nil, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx, j) }()

		require.Eventually(t, func() bool {
			j.Append(audit.KindPaused, alice, time.Now(), nil)
			return len(pub.Subjects()) > 0
		}, time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("relay did not stop")
		}
		assert.Contains(t, pub.Subjects(), "assetdao.admin.paused")
	})
}

// gappySource delivers only what the test pushes and serves Since from a journal
type gappySource struct {
	j  *audit.Journal
	ch chan audit.Entry
}

func (g *gappySource) Subscribe(int) (<-chan audit.Entry, func()) { return g.ch, func() {} }
func (g *gappySource) Since(seq int64) []audit.Entry              { return g.j.Since(seq) }
func (g *gappySource) LastSeq() int64                             { return 0 }

func TestRunBackfill(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("should fill a sequence gap from the journal in order", func(t *testing.T) {
		j := audit.NewJournal(10)
		var all []audit.Entry
		for i := 0; i < 5; i++ {
			all = append(all, j.Append(audit.KindUnitsIssued, alice, at, nil))
		}
		src := &gappySource{j: j, ch: make(chan audit.Entry, 3)}
		src.ch <- all[0]
		src.ch <- all[3]
		src.ch <- all[4]
		close(src.ch)

		store := &fakeStore{}
		r := New(Config{}, nil, store, nil, nil, zerolog.Nop())
		require.NoError(t, r.Run(context.Background(), src))

		assert.Equal(t, []int64{1, 2, 3, 4, 5}, store.seqs)
		assert.Equal(t, int64(2), r.Stats().Backfilled)
		assert.Equal(t, int64(5), r.Stats().Relayed)
		assert.Zero(t, r.Stats().Lost)
	})

	t.Run("should count entries evicted before backfill as lost", func(t *testing.T) {
		j := audit.NewJournal(2)
		var all []audit.Entry
		for i := 0; i < 5; i++ {
			all = append(all, j.Append(audit.KindUnitsIssued, alice, at, nil))
		}
		src := &gappySource{j: j, ch: make(chan audit.Entry, 1)}
		src.ch <- all[4]
		close(src.ch)

		store := &fakeStore{}
		r := New(Config{}, nil, store, nil, nil, zerolog.Nop())
		require.NoError(t, r.Run(context.Background(), src))

		assert.Equal(t, []int64{4, 5}, store.seqs)
		assert.Equal(t, int64(1), r.Stats().Backfilled)
		assert.Equal(t, int64(3), r.Stats().Lost)
	})
}
