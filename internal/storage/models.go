// Package storage holds the records shared by the relational backends.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/glidepath/internal/scoring"
)

// ErrNotFound is returned by single-row lookups that match nothing
var ErrNotFound = errors.New("not found")

// FlightSummary aggregates one flight's stored track
type FlightSummary struct {
	FlightID     string     `json:"flight_id"`
	Callsign     string     `json:"callsign"`
	Departure    string     `json:"departure,omitempty"`
	Arrival      string     `json:"arrival,omitempty"`
	AircraftType string     `json:"ac_type,omitempty"`
	PointCount   int        `json:"point_count"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
	MinAltitude  *float64   `json:"min_altitude,omitempty"`
	MaxAltitude  *float64   `json:"max_altitude,omitempty"`
	ScoredAt     *time.Time `json:"scored_at,omitempty"`
}

// CandidateFilter selects flights eligible for batch scoring
type CandidateFilter struct {
	Since       time.Time
	Limit       int
	Rescore     bool    // include flights that already have an attempt
	Callsign    string  // exact match when set
	MaxMinAlt   float64 // the flight must have descended below this altitude
	GAOnly      bool    // callsign starts with N
	MinPoints   int
	FlightIDs   []string // restrict to these flights when set
	OnlyArrival string   // restrict to one destination when set
}

// DefaultCandidateFilter mirrors the batch scorer defaults
func DefaultCandidateFilter(now time.Time) CandidateFilter {
	return CandidateFilter{
		Since:     now.AddDate(0, 0, -30),
		Limit:     1000,
		MaxMinAlt: 2000,
		GAOnly:    true,
		MinPoints: 10,
	}
}

// ScoreKey identifies a stored score. Multi-leg flights get one key per leg.
func ScoreKey(flightID string, leg, legs int) string {
	if legs > 1 {
		return fmt.Sprintf("%s#leg%d", flightID, leg)
	}
	return flightID
}

// AttemptKey identifies an attempt row. Only legs after the first carry a
// suffix, so a failure on leg one overwrites the flight level attempt.
func AttemptKey(flightID string, leg int) string {
	if leg > 1 {
		return fmt.Sprintf("%s#leg%d", flightID, leg)
	}
	return flightID
}

// FlightIDFromKey strips a leg suffix
func FlightIDFromKey(key string) string {
	if i := strings.Index(key, "#leg"); i >= 0 {
		return key[:i]
	}
	return key
}

// ScoreRecord is a persisted ApproachScore with its flight context
type ScoreRecord struct {
	Key          string                 `json:"key"`
	FlightID     string                 `json:"flight_id"`
	Leg          int                    `json:"leg"`
	LegType      string                 `json:"leg_type,omitempty"`
	Callsign     string                 `json:"callsign"`
	AircraftType string                 `json:"ac_type,omitempty"`
	Airport      string                 `json:"airport"`
	Runway       string                 `json:"runway"`
	RunwayMag    float64                `json:"runway_heading_mag"` // magnetic course on the flight date
	FlightDate   time.Time              `json:"flight_date"`
	ScoredAt     time.Time              `json:"scored_at"`
	Score        *scoring.ApproachScore `json:"score"`
}

// CategoryScore returns the points for one category, zero when absent
func (r ScoreRecord) CategoryScore(c scoring.Category) int {
	if r.Score == nil {
		return 0
	}
	res, _ := r.Score.Category(c)
	return res.Score
}

// ScoreFilter narrows score listings
type ScoreFilter struct {
	Airport  string
	Callsign string
	Grade    string
	Since    time.Time
	Limit    int
	Offset   int
}

// Attempt is one row of the scoring attempt log, success or failure
type Attempt struct {
	Key          string    `json:"key"`
	FlightID     string    `json:"flight_id"`
	Callsign     string    `json:"callsign"`
	AircraftType string    `json:"ac_type,omitempty"`
	Airport      string    `json:"airport,omitempty"`
	FlightDate   time.Time `json:"flight_date"`
	Success      bool      `json:"success"`
	Percentage   *int      `json:"percentage,omitempty"`
	Grade        string    `json:"grade,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	MinAltitude  *float64  `json:"min_altitude,omitempty"`
	MaxAltitude  *float64  `json:"max_altitude,omitempty"`
	PointCount   int       `json:"point_count"`
	LegType      string    `json:"leg_type,omitempty"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// WithFlags appends processing flags to the failure reason as " [a | b]"
func WithFlags(reason string, flags []string) string {
	if len(flags) == 0 {
		return reason
	}
	joined := "[" + strings.Join(flags, " | ") + "]"
	if reason == "" {
		return joined
	}
	return reason + " " + joined
}

// AttemptFilter narrows attempt listings
type AttemptFilter struct {
	Success *bool
	Since   time.Time
	Limit   int
}

// GradeSummary counts stored scores per grade
type GradeSummary struct {
	Total      int            `json:"total"`
	AvgPercent float64        `json:"avg_percentage"`
	Grades     map[string]int `json:"grades"`
}

// NewGradeSummary returns a summary with every grade present
func NewGradeSummary() GradeSummary {
	return GradeSummary{Grades: map[string]int{"A": 0, "B": 0, "C": 0, "D": 0, "F": 0}}
}

// AircraftSpeeds are the reference speeds for one aircraft type
type AircraftSpeeds struct {
	AircraftType string  `json:"ac_type"`
	Approach     float64 `json:"appr_speed"`
	DirtyStall   float64 `json:"dirty_stall"`
	CleanStall   float64 `json:"clean_stall"`
}

// ReferenceSpeeds converts to the scoring input
func (a AircraftSpeeds) ReferenceSpeeds() *scoring.ReferenceSpeeds {
	return &scoring.ReferenceSpeeds{Approach: a.Approach, DirtyStall: a.DirtyStall}
}

// Airport is the subset of airport data the scorer needs
type Airport struct {
	ICAO      string   `json:"icao"`
	Name      string   `json:"name"`
	Elevation *float64 `json:"elevation"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Aircraft maps a registration to its type
type Aircraft struct {
	Registration string `json:"n_number"`
	Model        string `json:"model"`
}
