package leader

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// Elector decides whether this replica may accept writes
type Elector interface {
	IsLeader() bool
	Run(ctx context.Context) error
}

// Config holds etcd election configuration
type Config struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Prefix      string        `mapstructure:"prefix"`
	TTL         time.Duration `mapstructure:"ttl"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Identity    string        `mapstructure:"identity"`
}

// Enabled reports whether an etcd cluster is configured
func (c Config) Enabled() bool { return len(c.Endpoints) > 0 }

// Static is an elector with a fixed answer, used for single-replica deployments
type Static bool

func (s Static) IsLeader() bool { return bool(s) }

// Run blocks until ctx is done
func (s Static) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Etcd campaigns for leadership under Prefix and re-campaigns whenever its
// session expires. Followers reject writes until they win.
type Etcd struct {
	cfg    Config
	client *clientv3.Client
	leader atomic.Bool
	onGain func()
	logger zerolog.Logger
}

// NewEtcd connects to etcd. onGain, if set, runs each time leadership is won
// and before IsLeader reports true.
func NewEtcd(cfg Config, onGain func(), logger zerolog.Logger) (*Etcd, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/assetdao/leader"
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &Etcd{
		cfg:    cfg,
		client: client,
		onGain: onGain,
		logger: logger.With().Str("component", "leader").Str("identity", cfg.Identity).Logger(),
	}, nil
}

// IsLeader reports current leadership
func (e *Etcd) IsLeader() bool { return e.leader.Load() }

// Run campaigns until ctx is done, then resigns and closes the client
func (e *Etcd) Run(ctx context.Context) error {
	defer e.client.Close()

	for {
		if err := e.campaign(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Warn().Err(err).Msg("election round failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (e *Etcd) campaign(ctx context.Context) error {
	sess, err := concurrency.NewSession(e.client,
		concurrency.WithTTL(int(e.cfg.TTL/time.Second)),
		concurrency.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer sess.Close()

	election := concurrency.NewElection(sess, e.cfg.Prefix)
	if err := election.Campaign(ctx, e.cfg.Identity); err != nil {
		return fmt.Errorf("campaign failed: %w", err)
	}

	if e.onGain != nil {
		e.onGain()
	}
	e.leader.Store(true)
	e.logger.Info().Msg("became leader")

	select {
	case <-ctx.Done():
		e.leader.Store(false)
		resignCtx, cancel := context.WithTimeout(context.Background(), e.cfg.DialTimeout)
		defer cancel()
		if err := election.Resign(resignCtx); err != nil {
			e.logger.Warn().Err(err).Msg("resign failed")
		}
		return nil
	case <-sess.Done():
		e.leader.Store(false)
		e.logger.Warn().Msg("lost leadership, session expired")
		return nil
	}
}
