package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/assetdao/internal/persistence"
)

// Snapshotter produces a serialized state and the journal seq it reflects
type Snapshotter interface {
	Snapshot() ([]byte, int64, error)
}

// SnapshotStore persists snapshots
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s persistence.Snapshot) error
	PruneSnapshots(ctx context.Context, keep int) (int64, error)
}

// Gate reports whether this replica should run write-side jobs
type Gate interface {
	IsLeader() bool
}

// Config holds schedule expressions (six fields, seconds first)
type Config struct {
	SnapshotCron string `mapstructure:"snapshot_cron"`
	PruneCron    string `mapstructure:"prune_cron"`
	KeepLatest   int    `mapstructure:"keep_latest"`
}

// Scheduler manages periodic snapshot and prune jobs.
type Scheduler struct {
	Cron   *cron.Cron
	cfg    Config
	vault  Snapshotter
	store  SnapshotStore
	gate   Gate
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	lastSeq int64
	saved   bool
}

// New creates a Scheduler. gate may be nil for single-replica deployments.
func New(cfg Config, vault Snapshotter, store SnapshotStore, gate Gate, logger zerolog.Logger) *Scheduler {
	if cfg.KeepLatest <= 0 {
		cfg.KeepLatest = 10
	}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		cfg:    cfg,
		vault:  vault,
		store:  store,
		gate:   gate,
		now:    time.Now,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterAll registers the snapshot and prune jobs.
func (s *Scheduler) RegisterAll(ctx context.Context) error {
	if s.cfg.SnapshotCron != "" {
		if _, err := s.Cron.AddFunc(s.cfg.SnapshotCron, func() { _ = s.SnapshotNow(ctx) }); err != nil {
			return fmt.Errorf("register snapshot job: %w", err)
		}
	}
	if s.cfg.PruneCron != "" {
		if _, err := s.Cron.AddFunc(s.cfg.PruneCron, func() { s.prune(ctx) }); err != nil {
			return fmt.Errorf("register prune job: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// SnapshotNow stores a snapshot unless nothing changed since the last one
// or this replica is not the leader.
func (s *Scheduler) SnapshotNow(ctx context.Context) error {
	if s.gate != nil && !s.gate.IsLeader() {
		return nil
	}

	data, seq, err := s.vault.Snapshot()
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot failed")
		return err
	}

	s.mu.Lock()
	unchanged := s.saved && seq == s.lastSeq
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug().Int64("seq", seq).Msg("snapshot skipped, no new entries")
		return nil
	}

	if err := s.store.SaveSnapshot(ctx, persistence.Snapshot{Seq: seq, TakenAt: s.now(), Data: data}); err != nil {
		s.logger.Error().Err(err).Int64("seq", seq).Msg("snapshot save failed")
		return err
	}

	s.mu.Lock()
	s.lastSeq, s.saved = seq, true
	s.mu.Unlock()
	s.logger.Info().Int64("seq", seq).Int("bytes", len(data)).Msg("snapshot saved")
	return nil
}

func (s *Scheduler) prune(ctx context.Context) {
	if s.gate != nil && !s.gate.IsLeader() {
		return
	}
	n, err := s.store.PruneSnapshots(ctx, s.cfg.KeepLatest)
	if err != nil {
		s.logger.Error().Err(err).Msg("prune failed")
		return
	}
	s.logger.Info().Int64("deleted", n).Int("kept", s.cfg.KeepLatest).Msg("snapshots pruned")
}
