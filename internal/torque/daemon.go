// Package torque runs rtctl's long-lived background jobs: watch
// directories feeding metafiles into the backend, download queue
// admission, and the Prometheus exporter.
package torque

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"rtctl/internal/config"
	"rtctl/internal/fields"
	"rtctl/internal/logging"
	"rtctl/internal/matching"
	"rtctl/internal/rpc"
	"rtctl/internal/rtorrent"
)

// Daemon owns the scheduler, the backend clients and the configured
// jobs. Build it with NewDaemon and drive it with Run.
type Daemon struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *Scheduler
	clients   map[string]*rtorrent.Client
	watchers  []*WatchJob
	exporters []*Exporter
}

// NewDaemon connects the backends referenced by the job table and
// builds every configured job. Construction fails fast on a bad
// expression or an unparseable connection URL; no RPC happens yet.
func NewDaemon(cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	logger = logging.Default(logger)
	sched, err := NewScheduler(logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger.With("component", "daemon"),
		scheduler: sched,
		clients:   make(map[string]*rtorrent.Client),
	}

	clock := clockwork.NewRealClock()
	registry := fields.NewRegistryWithClock(clock)
	parser := matching.NewParser(registry, matching.WithClock(clock))

	for _, job := range cfg.Daemon.Jobs {
		client, err := d.client(job.Connection, logger)
		if err != nil {
			d.closeClients()
			return nil, fmt.Errorf("job %q: %w", job.Name, err)
		}
		if err := d.addJob(job, client, parser, registry, clock, logger); err != nil {
			d.closeClients()
			return nil, fmt.Errorf("job %q: %w", job.Name, err)
		}
	}
	return d, nil
}

// client returns the shared client for a named connection, dialing on
// first use.
func (d *Daemon) client(name string, logger *slog.Logger) (*rtorrent.Client, error) {
	if c, ok := d.clients[name]; ok {
		return c, nil
	}
	conn, err := d.cfg.Connection(name)
	if err != nil {
		return nil, err
	}
	rpcClient, err := rpc.Dial(conn.URL, rpc.Config{
		Timeout:       conn.Timeout.Std(),
		SSHIdentity:   conn.SSHIdentity,
		SSHKnownHosts: conn.SSHKnownHosts,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connection %q: %w", name, err)
	}
	c := rtorrent.New(rpcClient, logger)
	d.clients[name] = c
	return c, nil
}

func (d *Daemon) addJob(job config.JobConfig, client *rtorrent.Client,
	parser *matching.Parser, registry *fields.Registry, clock clockwork.Clock,
	logger *slog.Logger) error {

	switch job.Type {
	case "watch":
		mode := rtorrent.LoadNormal
		if job.LoadMode == "start" {
			mode = rtorrent.LoadStart
		}
		w := NewWatchJob(client, job.Paths, mode, logger)
		d.watchers = append(d.watchers, w)
		return d.scheduler.AddJob(job.Name, job.Schedule, w.Tick)

	case "queue":
		q, err := NewQueueJob(client, parser, QueueConfig{
			DownloadingMax: job.DownloadingMax,
			StartAtOnce:    job.StartAtOnce,
			Intermission:   job.Intermission.Std(),
			Startable:      job.Startable,
		}, clock, logger)
		if err != nil {
			return err
		}
		return d.scheduler.AddJob(job.Name, job.Schedule, q.Tick)

	case "exporter":
		e := NewExporter(client, registry, job.Listen, logger)
		d.exporters = append(d.exporters, e)
		return d.scheduler.AddJob(job.Name, job.Schedule, e.Tick)

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// Run starts the scheduler, the filesystem watchers and the exporter
// endpoints, then blocks until ctx is cancelled or a job fails hard.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon starting",
		"jobs", len(d.cfg.Daemon.Jobs), "connections", len(d.clients))

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range d.watchers {
		w := w
		g.Go(func() error { return w.Start(ctx) })
	}
	for _, e := range d.exporters {
		e := e
		g.Go(func() error { return e.Serve(ctx) })
	}

	d.scheduler.Start(ctx)
	<-ctx.Done()

	if err := d.scheduler.Stop(); err != nil {
		d.logger.Warn("scheduler shutdown", "error", err)
	}
	err := g.Wait()
	d.closeClients()
	d.logger.Info("daemon stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *Daemon) closeClients() {
	for name, c := range d.clients {
		if err := c.Close(); err != nil {
			d.logger.Debug("close connection", "connection", name, "error", err)
		}
	}
}
