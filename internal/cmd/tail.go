package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atikulmunna/eveflow/internal/logging"
	"github.com/atikulmunna/eveflow/internal/model"
	"github.com/atikulmunna/eveflow/internal/normalizer"
	"github.com/atikulmunna/eveflow/internal/output"
	"github.com/atikulmunna/eveflow/internal/tailer"
	"github.com/atikulmunna/eveflow/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	outputFmt      string
	severityFilter string
	fromStart      bool
)

var tailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Print normalized EVE records to the terminal",
	Long: `Follow an EVE JSON log and print each new event as a normalized
record, colorized by severity or as JSON lines.

Examples:
  eveflow tail /var/log/suricata/eve.json
  eveflow tail --from-start --severity high,critical
  eveflow tail -o json | jq .sourceIp`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTail,
}

func init() {
	f := tailCmd.Flags()
	f.StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
	f.StringVarP(&severityFilter, "severity", "s", "", "only show these severities (comma-separated: low,medium,high,critical)")
	f.BoolVar(&fromStart, "from-start", false, "print events already in the file before following it")

	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.EvePath = args[0]
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, err := watcher.Resolve(cfg.EvePath)
	if err != nil {
		return err
	}
	w, err := watcher.New(path, log.Named("watcher"))
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	go w.Start(ctx)

	var renderer output.Renderer
	switch strings.ToLower(outputFmt) {
	case "json":
		renderer = output.NewJSONRenderer(cmd.OutOrStdout())
	default:
		renderer = output.NewTextRenderer(cmd.OutOrStdout())
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "eveflow following %s\n", path)

	t := tailer.New(path,
		tailer.WithWatcher(w),
		tailer.WithPollInterval(cfg.Tail.PollInterval),
		tailer.WithLogger(log.Named("tailer")),
	)
	return t.Run(ctx, printer(renderer, parseSeverities(severityFilter), fromStart, log))
}

// printer returns a sink that renders matching records. Backfilled lines
// are skipped unless backfill is set.
func printer(r output.Renderer, want map[model.Severity]bool, backfill bool, log *zap.Logger) tailer.SinkFunc {
	norm := normalizer.New()
	return func(line model.RawLine, live bool) {
		if !live && !backfill {
			return
		}
		rec, err := norm.Normalize(line.Text)
		if err != nil {
			log.Debug("skipping malformed line", zap.Int64("offset", line.Offset), zap.Error(err))
			return
		}
		if len(want) > 0 && !want[rec.Severity] {
			return
		}
		if err := r.Render(rec); err != nil {
			log.Warn("render failed", zap.Error(err))
		}
	}
}

func parseSeverities(s string) map[model.Severity]bool {
	set := make(map[model.Severity]bool)
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			set[model.Severity(part)] = true
		}
	}
	return set
}
