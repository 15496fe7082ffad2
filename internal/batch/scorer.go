// Package batch scores stored flights: it segments each flight into legs,
// picks a runway per leg, projects and scores the approach, and records every
// attempt whether it succeeded or not.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/glidepath/internal/approach"
	"github.com/yegors/glidepath/internal/runway"
	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/segment"
	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/internal/weather"
	"github.com/yegors/glidepath/pkg/logger"
)

// Failure reasons recorded in the attempt log
const (
	ReasonNotFound        = "Flight not found"
	ReasonNoArrival       = "No arrival airport"
	ReasonNoLegs          = "No valid legs found"
	ReasonNoApproach      = "No approach points (heading filter)"
	ReasonScoringFailed   = "Scoring calculation failed"
	ReasonNoLegsScored    = "No legs scored successfully"
	ReasonStorageError    = "Storage error"
	reasonGhostPrefix     = "Ghost: "
	reasonNoRunwayPattern = "No runway data for %s"
)

// Store is everything the scorer reads and writes
type Store interface {
	FlightSummary(ctx context.Context, flightID string) (storage.FlightSummary, error)
	FlightPoints(ctx context.Context, flightID string) ([]track.RawPoint, error)
	CandidateFlights(ctx context.Context, filter storage.CandidateFilter) ([]storage.FlightSummary, error)
	RunwayEnds(ctx context.Context, airport string) ([]runway.RunwayEnd, error)
	AirportElevation(ctx context.Context, icao string) (*float64, error)
	AircraftType(ctx context.Context, callsign string) (string, error)
	AircraftSpeeds(ctx context.Context, acType string) (*storage.AircraftSpeeds, error)
	NearestObservation(ctx context.Context, airport string, at time.Time) (*weather.Observation, error)
	ReplaceScore(ctx context.Context, rec storage.ScoreRecord) error
	DeleteScores(ctx context.Context, flightID string) error
	LogAttempt(ctx context.Context, a storage.Attempt) error
}

// ScoreSink receives every stored score, e.g. an analytics mirror
type ScoreSink interface {
	WriteScore(ctx context.Context, rec storage.ScoreRecord) error
}

// Outcome is the result of scoring one flight
type Outcome struct {
	FlightID string                `json:"flight_id"`
	Callsign string                `json:"callsign"`
	Airport  string                `json:"airport"`
	Scores   []storage.ScoreRecord `json:"scores,omitempty"`
	Reason   string                `json:"reason,omitempty"`
	Err      error                 `json:"-"`
}

// Scored reports whether at least one leg produced a score
func (o Outcome) Scored() bool {
	return len(o.Scores) > 0
}

// Scorer runs the per-flight pipeline under one scoring config snapshot
type Scorer struct {
	config  Config
	store   Store
	runways *runway.Catalog
	engine  *scoring.Engine
	loader  ConfigLoader
	sinks   []ScoreSink
	logger  *logger.Logger
	now     func() time.Time
}

// NewScorer creates a scorer. The engine's config is used for every run
// unless a loader is set with SetConfigLoader.
func NewScorer(config Config, store Store, engine *scoring.Engine, log *logger.Logger, sinks ...ScoreSink) *Scorer {
	ttl := time.Duration(config.RunwayCacheTTLMinute) * time.Minute
	return &Scorer{
		config:  config,
		store:   store,
		runways: runway.NewCatalog(store, config.RunwayCacheSize, ttl),
		engine:  engine,
		sinks:   sinks,
		logger:  log.Named("batch"),
		now:     time.Now,
	}
}

// SetConfigLoader makes every Run and direct ScoreFlight call start from a
// fresh scoring config snapshot
func (s *Scorer) SetConfigLoader(loader ConfigLoader) {
	s.loader = loader
}

// snapshot returns the engine for one run
func (s *Scorer) snapshot(ctx context.Context) (*scoring.Engine, error) {
	if s.loader == nil {
		return s.engine, nil
	}
	cfg, err := s.loader(ctx)
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(cfg), nil
}

// flightContext is what every attempt row for a flight shares
type flightContext struct {
	summary storage.FlightSummary
	acType  string
	date    time.Time
	engine  *scoring.Engine
}

// ScoreFlight scores every leg of one flight. Data problems are reported in
// the outcome's Reason and logged as attempts. Storage failures are returned
// in Err.
func (s *Scorer) ScoreFlight(ctx context.Context, flightID string) Outcome {
	engine, err := s.snapshot(ctx)
	if err != nil {
		return s.storageError(Outcome{FlightID: flightID}, err)
	}
	return s.scoreFlight(ctx, engine, flightID)
}

func (s *Scorer) scoreFlight(ctx context.Context, engine *scoring.Engine, flightID string) Outcome {
	out := Outcome{FlightID: flightID}

	summary, err := s.store.FlightSummary(ctx, flightID)
	if errors.Is(err, storage.ErrNotFound) {
		out.Reason = ReasonNotFound
		return out
	}
	if err != nil {
		return s.storageError(out, err)
	}
	out.Callsign = summary.Callsign
	out.Airport = summary.Arrival

	fc := flightContext{summary: summary, date: summary.FirstSeen.UTC(), engine: engine}
	if fc.acType, err = s.store.AircraftType(ctx, summary.Callsign); err != nil {
		return s.storageError(out, err)
	}

	if summary.Arrival == "" {
		return s.fail(ctx, out, fc, ReasonNoArrival, nil)
	}

	raw, err := s.store.FlightPoints(ctx, flightID)
	if err != nil {
		return s.storageError(out, err)
	}
	points := track.Derive(raw)

	var elevation float64
	elev, err := s.store.AirportElevation(ctx, summary.Arrival)
	if err != nil {
		return s.storageError(out, err)
	}
	if elev != nil {
		elevation = *elev
	}

	pre := segment.Preprocess(points, elevation, s.config.Segmenter)
	if pre.Ghost {
		return s.fail(ctx, out, fc, reasonGhostPrefix+pre.GhostReason, pre.Flags)
	}
	if len(pre.Legs) == 0 {
		return s.fail(ctx, out, fc, ReasonNoLegs, pre.Flags)
	}

	// The leg count can change between runs, so per-leg keys from an earlier
	// run would otherwise survive next to the new ones
	if err := s.store.DeleteScores(ctx, flightID); err != nil {
		return s.storageError(out, err)
	}

	for i, leg := range pre.Legs {
		legNum := i + 1
		rec, err := s.scoreLeg(ctx, fc, points, pre, leg, legNum)
		if err != nil {
			return s.storageError(out, err)
		}
		if rec != nil {
			out.Scores = append(out.Scores, *rec)
		}
	}

	if len(out.Scores) == 0 {
		out.Reason = ReasonNoLegsScored
	}
	return out
}

// scoreLeg runs runway selection through scoring for one leg. It returns nil
// without an error when the leg was skipped or logged as a failure.
func (s *Scorer) scoreLeg(ctx context.Context, fc flightContext, points []track.DerivedPoint, pre segment.Result, leg segment.Leg, legNum int) (*storage.ScoreRecord, error) {
	legs := len(pre.Legs)
	flightID := fc.summary.FlightID
	airport := fc.summary.Arrival

	legPoints := leg.Points(points)
	if len(legPoints) < s.config.MinLegPoints {
		s.logger.Debug("Skipping short leg",
			logger.String("flight_id", flightID),
			logger.Int("leg", legNum),
			logger.Int("points", len(legPoints)))
		return nil, nil
	}

	attempt := s.legAttempt(fc, leg, legNum, len(legPoints))

	ends, err := s.runways.Ends(ctx, airport)
	if err != nil {
		return nil, err
	}
	rwy, err := runway.Select(ends, runway.FinalHeading(legPoints))
	if errors.Is(err, runway.ErrNoRunways) {
		attempt.Reason = storage.WithFlags(fmt.Sprintf(reasonNoRunwayPattern, airport), pre.Flags)
		return nil, s.store.LogAttempt(ctx, attempt)
	}
	if err != nil {
		return nil, err
	}

	legPoints, cut := approach.Truncate(legPoints, rwy, s.config.TruncateNM, rwy.Elevation)
	flags := append(append([]string{}, pre.Flags...), cut...)
	if len(legPoints) < s.config.MinLegPoints {
		s.logger.Debug("Skipping leg, too few points after truncation",
			logger.String("flight_id", flightID),
			logger.Int("leg", legNum),
			logger.Int("points", len(legPoints)))
		return nil, nil
	}
	attempt.PointCount = len(legPoints)

	var speeds *scoring.ReferenceSpeeds
	if fc.acType != "" {
		ref, err := s.store.AircraftSpeeds(ctx, fc.acType)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			speeds = ref.ReferenceSpeeds()
		}
	}

	var wind *scoring.Wind
	if !fc.summary.FirstSeen.IsZero() {
		obs, err := s.store.NearestObservation(ctx, airport, fc.summary.FirstSeen)
		if err != nil {
			return nil, err
		}
		if obs != nil {
			wind = obs.Wind()
		}
	}

	projected := approach.Project(legPoints, rwy, s.config.HeadingFilter)
	if len(projected) == 0 {
		attempt.Reason = storage.WithFlags(ReasonNoApproach, flags)
		return nil, s.store.LogAttempt(ctx, attempt)
	}

	score, err := fc.engine.Score(projected, rwy, wind, speeds)
	if err != nil {
		s.logger.Warn("Scoring failed",
			logger.String("flight_id", flightID),
			logger.Int("leg", legNum),
			logger.Error(err))
		attempt.Reason = storage.WithFlags(ReasonScoringFailed, flags)
		return nil, s.store.LogAttempt(ctx, attempt)
	}

	rec := storage.ScoreRecord{
		Key:          storage.ScoreKey(flightID, legNum, legs),
		FlightID:     flightID,
		Leg:          legNum,
		LegType:      string(leg.Type),
		Callsign:     fc.summary.Callsign,
		AircraftType: fc.acType,
		Airport:      airport,
		Runway:       rwy.End.ID,
		RunwayMag:    rwy.MagneticHeading(fc.date),
		FlightDate:   fc.date,
		ScoredAt:     s.now().UTC(),
		Score:        score,
	}
	if err := s.store.ReplaceScore(ctx, rec); err != nil {
		return nil, err
	}
	for _, sink := range s.sinks {
		if err := sink.WriteScore(ctx, rec); err != nil {
			s.logger.Warn("Failed to mirror score",
				logger.String("key", rec.Key),
				logger.Error(err))
		}
	}

	pct := score.Percentage
	attempt.Success = true
	attempt.Percentage = &pct
	attempt.Grade = score.Grade
	attempt.Reason = storage.WithFlags("", flags)
	if err := s.store.LogAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	s.logger.Debug("Scored leg",
		logger.String("key", rec.Key),
		logger.String("runway", rec.Runway),
		logger.Int("percentage", score.Percentage),
		logger.String("grade", score.Grade))
	return &rec, nil
}

// legAttempt prepares the attempt row for one leg
func (s *Scorer) legAttempt(fc flightContext, leg segment.Leg, legNum, pointCount int) storage.Attempt {
	minAlt, maxAlt := leg.MinAltitude, leg.MaxAltitude
	return storage.Attempt{
		Key:          storage.AttemptKey(fc.summary.FlightID, legNum),
		FlightID:     fc.summary.FlightID,
		Callsign:     fc.summary.Callsign,
		AircraftType: fc.acType,
		Airport:      fc.summary.Arrival,
		FlightDate:   fc.date,
		MinAltitude:  &minAlt,
		MaxAltitude:  &maxAlt,
		PointCount:   pointCount,
		LegType:      string(leg.Type),
		AttemptedAt:  s.now().UTC(),
	}
}

// fail logs a flight level failure and returns the outcome carrying reason
func (s *Scorer) fail(ctx context.Context, out Outcome, fc flightContext, reason string, flags []string) Outcome {
	out.Reason = reason
	attempt := storage.Attempt{
		Key:          storage.AttemptKey(fc.summary.FlightID, 1),
		FlightID:     fc.summary.FlightID,
		Callsign:     fc.summary.Callsign,
		AircraftType: fc.acType,
		Airport:      fc.summary.Arrival,
		FlightDate:   fc.date,
		Reason:       storage.WithFlags(reason, flags),
		MinAltitude:  fc.summary.MinAltitude,
		MaxAltitude:  fc.summary.MaxAltitude,
		PointCount:   fc.summary.PointCount,
		AttemptedAt:  s.now().UTC(),
	}
	if err := s.store.LogAttempt(ctx, attempt); err != nil {
		return s.storageError(out, err)
	}
	return out
}

func (s *Scorer) storageError(out Outcome, err error) Outcome {
	out.Reason = ReasonStorageError
	out.Err = err
	return out
}
