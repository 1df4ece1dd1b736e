package metrics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/assetdao/internal/audit"
)

// Measurement is the InfluxDB measurement every committed operation lands in
const Measurement = "vault_operations"

// Recorder records one point per committed vault operation
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
	Close()
}

// Config holds InfluxDB configuration
type Config struct {
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	BatchSize     uint          `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Enabled reports whether enough is configured to reach a server
func (c Config) Enabled() bool {
	return c.URL != "" && c.Bucket != ""
}

var numericAttrs = []string{"amount", "units", "cost", "total", "weight", "price", "dust", "per_unit"}

// Point converts an audit entry to an InfluxDB point. Kind and actor are
// tags; selected numeric attributes become fields.
func Point(e audit.Entry) *write.Point {
	tags := map[string]string{
		"kind":  string(e.Kind),
		"actor": e.Actor.String(),
	}
	fields := map[string]interface{}{
		"seq": e.Seq,
	}
	for _, key := range numericAttrs {
		v, ok := e.Attrs[key]
		if !ok {
			continue
		}
		// lossy, points are for dashboards not accounting
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			fields[key] = f
		}
	}
	return influxdb2.NewPoint(Measurement, tags, fields, e.At)
}

// Influx writes points through the non-blocking write API
type Influx struct {
	client influxdb2.Client
	writer api.WriteAPI
	logger zerolog.Logger
	done   chan struct{}
	once   sync.Once
}

// NewInflux connects to InfluxDB and starts draining write errors to the log
func NewInflux(ctx context.Context, cfg Config, logger zerolog.Logger) (*Influx, error) {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval / time.Millisecond))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		client.Close()
		if err == nil {
			err = fmt.Errorf("ping failed")
		}
		return nil, fmt.Errorf("failed to reach influxdb: %w", err)
	}

	in := &Influx{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger: logger.With().Str("component", "metrics").Logger(),
		done:   make(chan struct{}),
	}
	go in.drainErrors()
	return in, nil
}

func (in *Influx) drainErrors() {
	errs := in.writer.Errors()
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			in.logger.Warn().Err(err).Msg("influx write failed")
		case <-in.done:
			return
		}
	}
}

// Record queues a point; it never blocks on the network
func (in *Influx) Record(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in.writer.WritePoint(Point(e))
	return nil
}

// Close flushes pending points and closes the client
func (in *Influx) Close() {
	in.once.Do(func() {
		in.writer.Flush()
		close(in.done)
		in.client.Close()
	})
}

// Noop discards every point
type Noop struct{}

func (Noop) Record(context.Context, audit.Entry) error { return nil }
func (Noop) Close()                                    {}
