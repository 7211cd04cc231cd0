package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/atikulmunna/eveflow/internal/aggregator"
	"github.com/atikulmunna/eveflow/internal/config"
	"github.com/atikulmunna/eveflow/internal/forward"
	"github.com/atikulmunna/eveflow/internal/hub"
	"github.com/atikulmunna/eveflow/internal/ingest"
	"github.com/atikulmunna/eveflow/internal/logging"
	"github.com/atikulmunna/eveflow/internal/metrics"
	"github.com/atikulmunna/eveflow/internal/normalizer"
	"github.com/atikulmunna/eveflow/internal/query"
	"github.com/atikulmunna/eveflow/internal/server"
	"github.com/atikulmunna/eveflow/internal/store"
	"github.com/atikulmunna/eveflow/internal/tailer"
	"github.com/atikulmunna/eveflow/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest the EVE log and serve the query and push API",
	Long: `Backfill every event already in the EVE log, then follow it for new
events. Records are kept in a bounded in-memory buffer, queryable over
HTTP and pushed to WebSocket subscribers as they arrive.

Examples:
  eveflow serve
  eveflow serve -f /var/log/suricata/eve.json --addr :8080
  EVEFLOW_NATS_URL=nats://localhost:4222 eveflow serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", "", "listen address (default :3001)")
	f.Int("capacity", 0, "number of records kept in memory (default 1000)")
	f.Bool("pprof", false, "serve runtime profiles under /debug/pprof/")
	f.String("nats-url", "", "forward live records to this NATS server")

	cobra.CheckErr(v.BindPFlag("server.addr", f.Lookup("addr")))
	cobra.CheckErr(v.BindPFlag("buffer.capacity", f.Lookup("capacity")))
	cobra.CheckErr(v.BindPFlag("server.pprof", f.Lookup("pprof")))
	cobra.CheckErr(v.BindPFlag("nats.url", f.Lookup("nats-url")))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	p, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}

	// Backfill runs to completion before anyone can connect.
	if err := p.backfill(ctx, log); err != nil {
		return err
	}

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { p.watch.Start(ctx) })
	run(func() {
		if err := p.tail.Tail(ctx, p.ingest); err != nil {
			log.Error("tailer stopped", zap.Error(err))
			cancel()
		}
	})

	if cfg.NATS.URL != "" {
		nc, err := forward.Dial(cfg.NATS.URL, log.Named("nats"))
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		defer func() { _ = nc.Drain() }()

		fwd := forward.New(nc, cfg.NATS.Subject, log.Named("forward"), func(error) {
			p.metrics.ForwardErrors.Inc()
		})
		run(func() { fwd.Run(ctx, p.hub) })
		log.Info("forwarding live records", zap.String("subject", cfg.NATS.Subject))
	}

	srv := server.New(p.hub, query.New(p.store), p.agg, server.Options{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		Pprof:       cfg.Server.Pprof,
		Metrics:     p.metrics.Handler(),
		Logger:      log.Named("server"),
	})
	srvErr := srv.Start(ctx)

	log.Info("shutting down")
	cancel()
	// Ends every subscription so WebSocket handlers return.
	p.hub.Close()
	wg.Wait()

	if srvErr != nil {
		return fmt.Errorf("server: %w", srvErr)
	}
	return nil
}

// pipeline is the wired ingestion path: tailer -> ingest -> store and hub.
type pipeline struct {
	path    string
	store   *store.Store
	hub     *hub.Hub
	watch   *watcher.Watcher
	tail    *tailer.Tailer
	ingest  *ingest.Ingestor
	agg     *aggregator.Aggregator
	metrics *metrics.Metrics
}

func newPipeline(cfg config.Config, log *zap.Logger) (*pipeline, error) {
	path, err := watcher.Resolve(cfg.EvePath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", tailer.ErrSourceMissing, path)
	}

	m := metrics.New()
	st := store.New(cfg.Buffer.Capacity)
	h := hub.New(st,
		hub.WithSnapshotSize(cfg.Hub.SnapshotSize),
		hub.WithQueueSize(cfg.Hub.QueueSize),
		hub.WithMaxMisses(cfg.Hub.MaxMisses),
		hub.WithLogger(log.Named("hub")),
		hub.WithDropHook(m.BroadcastDropped.Inc),
	)

	w, err := watcher.New(path, log.Named("watcher"))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	t := tailer.New(path,
		tailer.WithWatcher(w),
		tailer.WithPollInterval(cfg.Tail.PollInterval),
		tailer.WithLogger(log.Named("tailer")),
		tailer.WithErrorHook(func(error) { m.TailErrors.Inc() }),
	)
	cur := t.Cursor()

	agg := aggregator.New(aggregator.Probes{
		Buffered:    st.Len,
		Subscribers: h.Subscribers,
		Dropped:     h.Dropped,
		Phase:       func() string { return cur.Phase().String() },
		Offset:      cur.Offset,
	})
	m.RegisterGauges(metrics.Gauges{
		Buffered:    st.Len,
		Subscribers: h.Subscribers,
		Offset:      cur.Offset,
	})

	in := ingest.New(normalizer.New(), st, h, ingest.Hooks{
		Ingested: func(live bool) {
			agg.Ingested()
			m.RecordsIngested.WithLabelValues(phaseLabel(live)).Inc()
		},
		Rejected: func() {
			agg.Rejected()
			m.RecordsRejected.Inc()
		},
	}, log.Named("ingest"))

	return &pipeline{
		path:    path,
		store:   st,
		hub:     h,
		watch:   w,
		tail:    t,
		ingest:  in,
		agg:     agg,
		metrics: m,
	}, nil
}

// backfill loads the records already in the file. Tailer errors already
// name the phase and path, so they are returned as is.
func (p *pipeline) backfill(ctx context.Context, log *zap.Logger) error {
	if err := p.tail.Backfill(ctx, p.ingest); err != nil {
		return err
	}
	log.Info("buffer ready",
		zap.String("path", p.path),
		zap.Int("buffered", p.store.Len()),
		zap.Int("capacity", p.store.Cap()),
	)
	return nil
}

func phaseLabel(live bool) string {
	if live {
		return "live"
	}
	return "backfill"
}
