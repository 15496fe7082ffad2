package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/yegors/glidepath/internal/batch"
	"github.com/yegors/glidepath/internal/config"
	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/storage/backend"
	"github.com/yegors/glidepath/internal/storage/clickhouse"
	"github.com/yegors/glidepath/pkg/logger"
)

// Build flags
var version = ""

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCommand().ParseAndRun(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// globals are the flags shared by every subcommand
type globals struct {
	configPath string
	verbose    bool
}

func (g *globals) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "path to configuration file")
	fs.BoolVar(&g.verbose, "v", false, "debug logging")
}

func options() []ff.Option {
	return []ff.Option{ff.WithEnvVarPrefix("GLIDEPATH")}
}

func newCommand() *ffcli.Command {
	fs := flag.NewFlagSet("scorer", flag.ExitOnError)
	return &ffcli.Command{
		ShortUsage: "scorer <subcommand> [flags]",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			cmdBatch(),
			cmdFlight(),
			cmdConfig(),
			cmdSchema(),
			cmdSummary(),
			cmdVersion(),
		},
	}
}

// app holds what a scoring command opens
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	store  backend.Store
	mirror *clickhouse.Mirror
	scorer *batch.Scorer
}

func open(ctx context.Context, g globals) (*app, error) {
	cfg, err := config.LoadWithFallback(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Logging.Level
	if g.verbose {
		level = "debug"
	}
	lg, err := logger.New(logger.Config{
		Level:      level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := backend.Open(ctx, cfg.Storage, lg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: lg, store: store}

	a.mirror, err = backend.OpenMirror(ctx, cfg.Storage, lg)
	if err != nil {
		lg.Warn("ClickHouse mirror unavailable, scores stay local", logger.Error(err))
		a.mirror = nil
	}

	scoringConfig, err := batch.ScoringConfig(ctx, cfg.Scoring.Overrides, store, lg)
	if err != nil {
		a.close()
		return nil, err
	}

	var sinks []batch.ScoreSink
	if a.mirror != nil {
		sinks = append(sinks, a.mirror)
	}
	a.scorer = batch.NewScorer(cfg.Batch, store, scoring.NewEngine(scoringConfig), lg, sinks...)
	a.scorer.SetConfigLoader(batch.LiveConfig(cfg.Scoring.Overrides, store, lg))
	return a, nil
}

func (a *app) close() {
	if a.mirror != nil {
		a.mirror.Close()
	}
	a.store.Close()
	a.log.Sync()
}

func cmdBatch() *ffcli.Command {
	var g globals
	defaults := batch.DefaultConfig()
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	g.register(fs)
	days := fs.Int("days", defaults.Days, "look back this many days")
	limit := fs.Int("limit", defaults.Limit, "maximum flights to score")
	rescore := fs.Bool("rescore", false, "score flights that already have an attempt")
	callsign := fs.String("callsign", "", "only this callsign")
	minAlt := fs.Float64("min-alt", defaults.MaxMinAltitude, "skip flights whose lowest altitude is above this (ft)")
	workers := fs.Int("workers", 0, "parallel flights (0 uses the configured value)")
	all := fs.Bool("all", false, "include non-GA callsigns")

	return &ffcli.Command{
		Name:       "batch",
		ShortUsage: "scorer batch [flags]",
		ShortHelp:  "score candidate flights",
		FlagSet:    fs,
		Options:    options(),
		Exec: func(ctx context.Context, args []string) error {
			a, err := open(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			opts := a.cfg.Batch.Options()
			opts.Days = *days
			opts.Limit = *limit
			opts.Rescore = *rescore
			opts.Callsign = strings.ToUpper(strings.TrimSpace(*callsign))
			opts.MaxMinAltitude = *minAlt
			opts.GAOnly = a.cfg.Batch.GAOnly && !*all
			if *workers > 0 {
				opts.Workers = *workers
			}

			summary, err := a.scorer.Run(ctx, opts, func(o batch.Outcome) {
				for _, rec := range o.Scores {
					fmt.Printf("%-24s %-8s %-5s %-4s %3d%% %s\n",
						rec.Key, rec.Callsign, rec.Airport, rec.Runway, rec.Score.Percentage, rec.Score.Grade)
				}
			})
			if err != nil {
				return err
			}
			printSummary(summary)

			grades, err := a.store.GradeSummary(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\nStored scores: %d (avg %.1f%%)\n", grades.Total, grades.AvgPercent)
			for _, grade := range []string{"A", "B", "C", "D", "F"} {
				fmt.Printf("  %s: %d\n", grade, grades.Grades[grade])
			}
			return nil
		},
	}
}

func printSummary(s batch.Summary) {
	fmt.Printf("\nCandidates: %d  Scored: %d  Failed: %d  Legs: %d  Duration: %s\n",
		s.Candidates, s.Scored, s.Failed, s.Legs, s.Duration.Round(time.Millisecond))
	if s.Cancelled {
		fmt.Println("Run cancelled before every candidate was processed")
	}
	reasons := s.TopReasons()
	if len(reasons) == 0 {
		return
	}
	fmt.Println("\nTop failure reasons:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, r := range reasons {
		if i == 10 {
			break
		}
		fmt.Fprintf(w, "  %d\t%s\n", r.Count, r.Reason)
	}
	w.Flush()
}

func cmdFlight() *ffcli.Command {
	var g globals
	fs := flag.NewFlagSet("flight", flag.ExitOnError)
	g.register(fs)
	id := fs.String("id", "", "flight id")

	return &ffcli.Command{
		Name:       "flight",
		ShortUsage: "scorer flight -id <flight id>",
		ShortHelp:  "score one flight and print the result as JSON",
		FlagSet:    fs,
		Options:    options(),
		Exec: func(ctx context.Context, args []string) error {
			if *id == "" {
				return fmt.Errorf("missing -id")
			}
			a, err := open(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			out := a.scorer.ScoreFlight(ctx, *id)
			if out.Err != nil {
				return out.Err
			}
			return printJSON(out)
		},
	}
}

func cmdSchema() *ffcli.Command {
	var g globals
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	g.register(fs)
	defaultsOnly := fs.Bool("defaults", false, "ignore configured and stored overrides")

	return &ffcli.Command{
		Name:       "schema",
		ShortUsage: "scorer schema [flags]",
		ShortHelp:  "print the scoring schema in effect",
		FlagSet:    fs,
		Options:    options(),
		Exec: func(ctx context.Context, args []string) error {
			if *defaultsOnly {
				return printJSON(scoring.Schema(scoring.DefaultConfig()))
			}
			a, err := open(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			cfg, err := batch.ScoringConfig(ctx, a.cfg.Scoring.Overrides, a.store, a.log)
			if err != nil {
				return err
			}
			return printJSON(scoring.Schema(cfg))
		},
	}
}

func cmdConfig() *ffcli.Command {
	var g globals
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	g.register(fs)

	setFS := flag.NewFlagSet("set", flag.ExitOnError)
	g.register(setFS)
	set := &ffcli.Command{
		Name:       "set",
		ShortUsage: "scorer config set <key> <value>",
		ShortHelp:  "store a scoring threshold override",
		FlagSet:    setFS,
		Options:    options(),
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <key> <value>")
			}
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			a, err := open(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			if err := batch.SetOverride(ctx, a.store, args[0], value); err != nil {
				return err
			}
			fmt.Printf("%s = %g\n", args[0], value)
			return nil
		},
	}

	listFS := flag.NewFlagSet("list", flag.ExitOnError)
	g.register(listFS)
	list := &ffcli.Command{
		Name:       "list",
		ShortUsage: "scorer config list",
		ShortHelp:  "print the stored scoring overrides",
		FlagSet:    listFS,
		Options:    options(),
		Exec: func(ctx context.Context, args []string) error {
			a, err := open(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			overrides, err := a.store.ScoringOverrides(ctx)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(overrides))
			for k := range overrides {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%g\n", k, overrides[k])
			}
			return w.Flush()
		},
	}

	return &ffcli.Command{
		Name:        "config",
		ShortUsage:  "scorer config <set|list> [flags]",
		ShortHelp:   "manage stored scoring overrides",
		FlagSet:     fs,
		Subcommands: []*ffcli.Command{set, list},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

func cmdSummary() *ffcli.Command {
	var g globals
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	g.register(fs)

	return &ffcli.Command{
		Name:       "summary",
		ShortUsage: "scorer summary",
		ShortHelp:  "print the grade distribution of stored scores",
		FlagSet:    fs,
		Options:    options(),
		Exec: func(ctx context.Context, args []string) error {
			a, err := open(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			grades, err := a.store.GradeSummary(ctx)
			if err != nil {
				return err
			}
			return printJSON(grades)
		},
	}
}

func cmdVersion() *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "scorer version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if bi, ok := debug.ReadBuildInfo(); ok {
					v = bi.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			fmt.Printf("%s (scoring %s)\n", v, scoring.Version)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
