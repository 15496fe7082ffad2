package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/pkg/logger"
)

// Options select the flights of one batch run
type Options struct {
	Days           int
	Limit          int
	Rescore        bool
	Callsign       string
	MaxMinAltitude float64
	GAOnly         bool
	Workers        int
	FlightIDs      []string
}

// Options returns run options seeded from the configuration
func (c Config) Options() Options {
	return Options{
		Days:           c.Days,
		Limit:          c.Limit,
		MaxMinAltitude: c.MaxMinAltitude,
		GAOnly:         c.GAOnly,
		Workers:        c.Workers,
	}
}

// ReasonCount is one failure reason and how often it occurred
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Summary is the result of a batch run
type Summary struct {
	Candidates int            `json:"candidates"`
	Scored     int            `json:"scored"`
	Failed     int            `json:"failed"`
	Legs       int            `json:"legs_scored"`
	Reasons    map[string]int `json:"reasons"`
	Duration   time.Duration  `json:"duration"`
	Cancelled  bool           `json:"cancelled"`
}

// TopReasons returns failure reasons by descending count, then by name
func (s Summary) TopReasons() []ReasonCount {
	out := make([]ReasonCount, 0, len(s.Reasons))
	for r, n := range s.Reasons {
		out = append(out, ReasonCount{Reason: r, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// Run selects candidate flights and scores them with a bounded pool of
// workers. Cancellation is honoured between flights, never inside one. The
// optional callback sees every outcome as it completes.
func (s *Scorer) Run(ctx context.Context, opts Options, onOutcome func(Outcome)) (Summary, error) {
	start := s.now()
	summary := Summary{Reasons: map[string]int{}}

	filter := storage.DefaultCandidateFilter(start)
	if opts.Days > 0 {
		filter.Since = start.AddDate(0, 0, -opts.Days)
	}
	filter.Limit = opts.Limit
	filter.Rescore = opts.Rescore
	filter.Callsign = opts.Callsign
	if opts.MaxMinAltitude > 0 {
		filter.MaxMinAlt = opts.MaxMinAltitude
	}
	filter.GAOnly = opts.GAOnly
	filter.MinPoints = s.config.MinPoints
	filter.FlightIDs = opts.FlightIDs

	engine, err := s.snapshot(ctx)
	if err != nil {
		return summary, err
	}

	candidates, err := s.store.CandidateFlights(ctx, filter)
	if err != nil {
		return summary, err
	}
	summary.Candidates = len(candidates)

	s.logger.Info("Starting batch run",
		logger.Int("candidates", len(candidates)),
		logger.Time("since", filter.Since),
		logger.Float64("min_altitude", filter.MaxMinAlt),
		logger.Bool("rescore", filter.Rescore))

	workers := opts.Workers
	if workers <= 0 {
		workers = s.config.Workers
	}

	var (
		mu   sync.Mutex
		done int
	)
	record := func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if o.Scored() {
			summary.Scored++
			summary.Legs += len(o.Scores)
		} else {
			summary.Failed++
			summary.Reasons[o.Reason]++
		}
		if o.Err != nil {
			s.logger.Error("Failed to score flight",
				logger.String("flight_id", o.FlightID),
				logger.Error(o.Err))
		}
		if done%25 == 0 {
			s.logger.Info("Batch progress",
				logger.Int("done", done),
				logger.Int("total", len(candidates)),
				logger.Int("scored", summary.Scored),
				logger.Int("failed", summary.Failed))
		}
		if onOutcome != nil {
			onOutcome(o)
		}
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, c := range candidates {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		flightID := c.FlightID
		eg.Go(func() error {
			// The flight in progress finishes on its own context
			record(s.scoreFlight(context.WithoutCancel(ctx), engine, flightID))
			return nil
		})
	}
	_ = eg.Wait()

	summary.Duration = s.now().Sub(start)
	s.logger.Info("Batch run complete",
		logger.Int("scored", summary.Scored),
		logger.Int("failed", summary.Failed),
		logger.Int("legs", summary.Legs),
		logger.Bool("cancelled", summary.Cancelled),
		logger.Duration("duration", summary.Duration))
	return summary, nil
}
