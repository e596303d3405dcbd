package torque

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"rtctl/internal/fields"
	"rtctl/internal/logging"
	"rtctl/internal/matching"
	"rtctl/internal/rtorrent"
)

// exportedViews are the item-count views the exporter reports on.
var exportedViews = []string{"main", "started", "stopped", "complete", "incomplete", "seeding", "leeching"}

// Exporter serves Prometheus metrics about one backend. Values are
// fetched at scrape time through a custom collector, so the endpoint
// always reflects the live engine state.
type Exporter struct {
	client   *rtorrent.Client
	registry *fields.Registry
	listen   string
	logger   *slog.Logger
}

// NewExporter builds an exporter listening on addr.
func NewExporter(client *rtorrent.Client, registry *fields.Registry, addr string, logger *slog.Logger) *Exporter {
	return &Exporter{
		client:   client,
		registry: registry,
		listen:   addr,
		logger:   logging.Default(logger).With("component", "exporter"),
	}
}

// Serve runs the HTTP endpoint until ctx is cancelled.
func (e *Exporter) Serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(&collector{exporter: e}); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              e.listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logger.Info("exporter listening", "addr", e.listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Tick verifies backend reachability so scheduler logs show exporter
// health alongside the other jobs.
func (e *Exporter) Tick(ctx context.Context) error {
	version, err := e.client.Version(ctx)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	e.logger.Debug("backend reachable", "version", version)
	return nil
}

// collector gathers engine stats on every scrape.
type collector struct {
	exporter *Exporter
}

var (
	upDesc = prometheus.NewDesc("rtctl_up",
		"Whether the rtorrent backend answered the scrape.", nil, nil)
	upRateDesc = prometheus.NewDesc("rtctl_global_upload_bytes_per_second",
		"Current total upload rate.", nil, nil)
	downRateDesc = prometheus.NewDesc("rtctl_global_download_bytes_per_second",
		"Current total download rate.", nil, nil)
	viewItemsDesc = prometheus.NewDesc("rtctl_view_items",
		"Number of items in a view.", []string{"view"}, nil)
	trackerItemsDesc = prometheus.NewDesc("rtctl_tracker_items",
		"Number of items per tracker domain.", []string{"tracker"}, nil)
)

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- upDesc
	ch <- upRateDesc
	ch <- downRateDesc
	ch <- viewItemsDesc
	ch <- trackerItemsDesc
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	e := c.exporter
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	up, err := e.client.GlobalUpRate(ctx)
	if err != nil {
		e.logger.Warn("scrape failed", "error", err)
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 0)
		return
	}
	down, err := e.client.GlobalDownRate(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(upRateDesc, prometheus.GaugeValue, float64(up))
	ch <- prometheus.MustNewConstMetric(downRateDesc, prometheus.GaugeValue, float64(down))

	for _, view := range exportedViews {
		hashes, err := e.client.View(view).Hashes(ctx)
		if err != nil {
			e.logger.Debug("view scrape failed", "view", view, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(viewItemsDesc, prometheus.GaugeValue,
			float64(len(hashes)), view)
	}

	c.collectTrackers(ctx, ch)
}

// collectTrackers counts main-view items per tracker domain, using the
// field registry's alias accessor over a prefetched item stream.
func (c *collector) collectTrackers(ctx context.Context, ch chan<- prometheus.Metric) {
	e := c.exporter
	alias, err := e.registry.Lookup("alias")
	if err != nil {
		return
	}

	plan := matching.Plan{RequiredFields: alias.Requires}
	counts := make(map[string]int)
	for it, err := range e.client.View("main").Items(ctx, plan, nil) {
		if err != nil {
			e.logger.Debug("tracker scrape failed", "error", err)
			return
		}
		val, err := alias.Accessor(it)
		if err != nil {
			continue
		}
		domain, _ := val.(string)
		if domain == "" {
			domain = "none"
		}
		counts[domain]++
	}
	for domain, n := range counts {
		ch <- prometheus.MustNewConstMetric(trackerItemsDesc, prometheus.GaugeValue,
			float64(n), domain)
	}
}
