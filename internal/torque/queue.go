package torque

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"rtctl/internal/logging"
	"rtctl/internal/matching"
	"rtctl/internal/rtorrent"
)

// QueueConfig holds the admission-control knobs.
type QueueConfig struct {
	// DownloadingMax caps concurrently downloading items.
	DownloadingMax int
	// StartAtOnce caps starts per tick.
	StartAtOnce int
	// Intermission is the minimum gap between start bursts.
	Intermission time.Duration
	// Startable selects the items eligible for starting, as a filter
	// expression over the stopped portion of the main view.
	Startable string
}

// QueueJob implements download admission control: whenever fewer than
// DownloadingMax items are downloading, it starts up to StartAtOnce
// startable items, pacing individual start calls and spacing bursts by
// the intermission.
type QueueJob struct {
	client    *rtorrent.Client
	cfg       QueueConfig
	startable matching.Matcher
	clock     clockwork.Clock
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu        sync.Mutex
	lastBurst time.Time
}

// NewQueueJob parses the startable expression with the given parser and
// builds the job. The parse happens up front so a bad filter fails the
// daemon at startup, not on the first tick.
func NewQueueJob(client *rtorrent.Client, parser *matching.Parser, cfg QueueConfig, clock clockwork.Clock, logger *slog.Logger) (*QueueJob, error) {
	m, err := parser.Parse(cfg.Startable)
	if err != nil {
		return nil, fmt.Errorf("startable filter: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QueueJob{
		client:    client,
		cfg:       cfg,
		startable: m,
		clock:     clock,
		// One start call per second keeps the backend responsive while
		// a burst trickles in.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:  logging.Default(logger).With("component", "queue"),
	}, nil
}

// Tick runs one admission round.
func (q *QueueJob) Tick(ctx context.Context) error {
	downloading, err := q.client.View("leeching").Hashes(ctx)
	if err != nil {
		return fmt.Errorf("count downloading: %w", err)
	}
	slots := q.cfg.DownloadingMax - len(downloading)
	if slots <= 0 {
		q.logger.Debug("queue full", "downloading", len(downloading), "max", q.cfg.DownloadingMax)
		return nil
	}
	if slots > q.cfg.StartAtOnce {
		slots = q.cfg.StartAtOnce
	}

	q.mu.Lock()
	tooSoon := !q.lastBurst.IsZero() && q.clock.Now().Sub(q.lastBurst) < q.cfg.Intermission
	q.mu.Unlock()
	if tooSoon {
		q.logger.Debug("intermission in effect")
		return nil
	}

	caps, err := q.client.Caps(ctx)
	if err != nil {
		return err
	}
	plan := matching.Analyze(q.startable, caps)

	started := 0
	for it, err := range q.client.View("main").Items(ctx, plan, q.startable) {
		if err != nil {
			return fmt.Errorf("scan startable: %w", err)
		}
		if started >= slots {
			break
		}
		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := q.client.StartItem(ctx, it.Hash); err != nil {
			q.logger.Warn("start failed", "hash", it.Hash, "error", err)
			continue
		}
		q.logger.Info("item started", "hash", it.Hash)
		started++
	}

	if started > 0 {
		q.mu.Lock()
		q.lastBurst = q.clock.Now()
		q.mu.Unlock()
		q.logger.Info("start burst complete", "started", started, "downloading", len(downloading)+started)
	}
	return nil
}
