package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/internal/runway"
	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/internal/weather"
	"github.com/yegors/glidepath/pkg/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "glidepath.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

func flightTrack(flightID, callsign, arrival string, n int, startAlt float64) []track.RawPoint {
	points := make([]track.RawPoint, n)
	for i := range points {
		points[i] = track.RawPoint{
			FlightID:  flightID,
			Callsign:  callsign,
			Source:    track.SourceSTDDS,
			Time:      t0.Add(time.Duration(i) * 10 * time.Second),
			Latitude:  track.Ptr(42.4 + float64(i)*0.001),
			Longitude: track.Ptr(-71.3),
			Altitude:  track.Ptr(startAlt - float64(i)*100),
			Speed:     track.Ptr(90.0),
			Heading:   track.Ptr(230.0),
			Arrival:   arrival,
		}
	}
	return points
}

func TestInsertPointsSkipsDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	points := flightTrack("F1", "N123AB", "KBED", 3, 3000)
	inserted, skipped, err := s.InsertPoints(ctx, points)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
	assert.Zero(t, skipped)

	extra := flightTrack("F1", "N123AB", "KBED", 4, 3000)
	inserted, skipped, err = s.InsertPoints(ctx, extra)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 3, skipped)
}

func TestFlightPointsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	points := flightTrack("F1", "N123AB", "KBED", 3, 3000)
	points[1].Altitude = nil
	points[2].AssignedAltitude = track.Ptr(5000)
	points[2].AssignedAltitudeType = track.AltitudeIFR
	points[2].ReportedVerticalSpeed = track.Ptr(-640)
	// Stored out of order on purpose
	_, _, err := s.InsertPoints(ctx, []track.RawPoint{points[2], points[0], points[1]})
	require.NoError(t, err)

	got, err := s.FlightPoints(ctx, "F1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range got {
		assert.True(t, points[i].Time.Equal(got[i].Time))
	}
	assert.Nil(t, got[1].Altitude)
	assert.Equal(t, 5000, *got[2].AssignedAltitude)
	assert.Equal(t, track.AltitudeIFR, got[2].AssignedAltitudeType)
	assert.Equal(t, -640, *got[2].ReportedVerticalSpeed)
	assert.Equal(t, "KBED", got[0].Arrival)
	assert.Equal(t, track.SourceSTDDS, got[0].Source)
}

func TestFlightSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, _, err := s.InsertPoints(ctx, flightTrack("F1", "N123AB", "KBED", 5, 3000))
	require.NoError(t, err)

	fs, err := s.FlightSummary(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, "N123AB", fs.Callsign)
	assert.Equal(t, "KBED", fs.Arrival)
	assert.Equal(t, 5, fs.PointCount)
	assert.True(t, t0.Equal(fs.FirstSeen))
	assert.True(t, t0.Add(40*time.Second).Equal(fs.LastSeen))
	assert.Equal(t, 2600.0, *fs.MinAltitude)
	assert.Equal(t, 3000.0, *fs.MaxAltitude)

	_, err = s.FlightSummary(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCandidateFlights(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, batch := range [][]track.RawPoint{
		flightTrack("GA", "N123AB", "KBED", 12, 2500),   // descends to 1400
		flightTrack("HIGH", "N999ZZ", "KBED", 12, 9000), // never below 2000
		flightTrack("AIR", "JBU123", "KBOS", 12, 2500),  // not GA
		flightTrack("SHORT", "N1", "KBED", 4, 2500),     // too few points
		flightTrack("NODEST", "N2", "", 12, 2500),       // no arrival
	} {
		_, _, err := s.InsertPoints(ctx, batch)
		require.NoError(t, err)
	}

	filter := storage.DefaultCandidateFilter(t0.Add(24 * time.Hour))
	flights, err := s.CandidateFlights(ctx, filter)
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "GA", flights[0].FlightID)

	filter.GAOnly = false
	flights, err = s.CandidateFlights(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, flights, 2)

	// An attempt excludes the flight unless rescoring
	require.NoError(t, s.LogAttempt(ctx, storage.Attempt{
		Key: "GA", FlightID: "GA", Callsign: "N123AB", FlightDate: t0, AttemptedAt: t0, Reason: "No valid legs found",
	}))
	filter.GAOnly = true
	flights, err = s.CandidateFlights(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, flights)

	filter.Rescore = true
	flights, err = s.CandidateFlights(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, flights, 1)
}

func TestRunwayEndsJoinReciprocal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAirport(ctx, storage.Airport{ICAO: "kbed", Name: "Hanscom", Elevation: track.Ptr(133.0)}))
	require.NoError(t, s.UpsertRunway(ctx, runway.RunwayEnd{
		Airport: "KBED", ID: "11", Lat: track.Ptr(42.4699), Lon: track.Ptr(-71.2971),
		TrueHeading: track.Ptr(95.0), ReciprocalID: "29", LengthFt: 7011,
	}))
	require.NoError(t, s.UpsertRunway(ctx, runway.RunwayEnd{
		Airport: "KBED", ID: "29", Lat: track.Ptr(42.4653), Lon: track.Ptr(-71.2713),
		TrueHeading: track.Ptr(275.0), TDZE: track.Ptr(120.0), ReciprocalID: "11",
	}))

	ends, err := s.RunwayEnds(ctx, "KBED")
	require.NoError(t, err)
	require.Len(t, ends, 2)

	assert.Equal(t, "11", ends[0].ID)
	assert.Equal(t, 42.4653, *ends[0].ReciprocalLat)
	assert.Equal(t, 133.0, *ends[0].AirportElevation)
	assert.Equal(t, 7011, ends[0].LengthFt)
	assert.Equal(t, 120.0, *ends[1].TDZE)

	elev, err := s.AirportElevation(ctx, "KBED")
	require.NoError(t, err)
	assert.Equal(t, 133.0, *elev)

	elev, err = s.AirportElevation(ctx, "KXXX")
	require.NoError(t, err)
	assert.Nil(t, elev)

	codes, err := s.AirportCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"KBED"}, codes)
}

func TestAircraftLookups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAircraft(ctx, storage.Aircraft{Registration: "N123AB", Model: "C172"}))
	require.NoError(t, s.UpsertAircraftSpeeds(ctx, storage.AircraftSpeeds{AircraftType: "C172", Approach: 65, DirtyStall: 41, CleanStall: 48}))

	acType, err := s.AircraftType(ctx, "N123AB")
	require.NoError(t, err)
	assert.Equal(t, "C172", acType)

	acType, err = s.AircraftType(ctx, "N000")
	require.NoError(t, err)
	assert.Empty(t, acType)

	speeds, err := s.AircraftSpeeds(ctx, "C172")
	require.NoError(t, err)
	require.NotNil(t, speeds)
	assert.Equal(t, 65.0, speeds.Approach)
	assert.Equal(t, 41.0, speeds.ReferenceSpeeds().DirtyStall)

	speeds, err = s.AircraftSpeeds(ctx, "PA28")
	require.NoError(t, err)
	assert.Nil(t, speeds)
}

func TestObservations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dir, spd := 240, 12
	obs := weather.Observation{Airport: "KBED", ObservedAt: t0, WindDirDegrees: &dir, WindSpeedKt: &spd, Raw: "KBED 011400Z 24012KT"}
	ok, err := s.InsertObservation(ctx, obs)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertObservation(ctx, obs)
	require.NoError(t, err)
	assert.False(t, ok)

	later := obs
	later.ObservedAt = t0.Add(time.Hour)
	later.WindDirDegrees = nil
	_, err = s.InsertObservation(ctx, later)
	require.NoError(t, err)

	got, err := s.NearestObservation(ctx, "KBED", t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, t0.Equal(got.ObservedAt))
	assert.Equal(t, 240, *got.WindDirDegrees)

	got, err = s.NearestObservation(ctx, "KBED", t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.WindDirDegrees)

	got, err = s.NearestObservation(ctx, "KBED", t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScoringOverrides(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetScoringOverride(ctx, "CFIT_PENALTY", 30))
	require.NoError(t, s.SetScoringOverride(ctx, "CFIT_PENALTY", 35))

	overrides, err := s.ScoringOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"CFIT_PENALTY": 35}, overrides)
}

func testScore(pct int, grade string) *scoring.ApproachScore {
	return &scoring.ApproachScore{
		Version: scoring.Version,
		Runway:  "29",
		Scores: []scoring.CategoryResult{
			{Category: scoring.Descent, Score: 15, Max: 20, Details: []string{"-5: test"}},
			{Category: scoring.ThresholdCrossing, Score: 10, Max: 10},
		},
		Total:      pct,
		MaxTotal:   100,
		Percentage: pct,
		Grade:      grade,
		Metrics:    map[string]any{"threshold_agl": 52.0},
	}
}

func TestScoresAndSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, sc := range []*scoring.ApproachScore{testScore(95, "A"), testScore(72, "C"), testScore(40, "F")} {
		require.NoError(t, s.ReplaceScore(ctx, storage.ScoreRecord{
			Key:        fmt.Sprintf("F%d", i),
			FlightID:   fmt.Sprintf("F%d", i),
			Leg:        1,
			Callsign:   "N123AB",
			Airport:    "KBED",
			Runway:     "29",
			FlightDate: t0.Add(time.Duration(i) * time.Hour),
			ScoredAt:   t0,
			Score:      sc,
		}))
	}

	// Replacing keeps a single row per key
	require.NoError(t, s.ReplaceScore(ctx, storage.ScoreRecord{
		Key: "F2", FlightID: "F2", Leg: 1, Airport: "KBED", RunwayMag: 305.4,
		FlightDate: t0.Add(2 * time.Hour), ScoredAt: t0, Score: testScore(85, "B"),
	}))

	rec, err := s.GetScore(ctx, "F2")
	require.NoError(t, err)
	assert.Equal(t, "B", rec.Score.Grade)
	assert.Equal(t, 305.4, rec.RunwayMag)
	assert.Equal(t, 15, rec.CategoryScore(scoring.Descent))
	assert.Equal(t, []string{"-5: test"}, rec.Score.Scores[0].Details)

	_, err = s.GetScore(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListScores(ctx, storage.ScoreFilter{Airport: "kbed"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "F2", list[0].Key)

	list, err = s.ListScores(ctx, storage.ScoreFilter{Grade: "a"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "F0", list[0].Key)

	summary, err := s.GradeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.InDelta(t, (95.0+72+85)/3, summary.AvgPercent, 1e-9)
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1, "D": 0, "F": 0}, summary.Grades)
}

func TestDeleteScoresRemovesEveryLeg(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, rec := range []storage.ScoreRecord{
		{Key: "F1#leg1", FlightID: "F1", Leg: 1},
		{Key: "F1#leg2", FlightID: "F1", Leg: 2},
		{Key: "F2", FlightID: "F2", Leg: 1},
	} {
		rec.Airport = "KBED"
		rec.FlightDate = t0
		rec.ScoredAt = t0
		rec.Score = testScore(90, "A")
		require.NoError(t, s.ReplaceScore(ctx, rec))
	}

	require.NoError(t, s.DeleteScores(ctx, "F1"))

	list, err := s.ListScores(ctx, storage.ScoreFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "F2", list[0].Key)
}

func TestAttemptsReplaceByKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogAttempt(ctx, storage.Attempt{
		Key: "F1", FlightID: "F1", FlightDate: t0, AttemptedAt: t0, Reason: "No arrival airport",
	}))
	pct := 88
	require.NoError(t, s.LogAttempt(ctx, storage.Attempt{
		Key: "F1", FlightID: "F1", FlightDate: t0, AttemptedAt: t0.Add(time.Minute), Success: true, Percentage: &pct, Grade: "B",
	}))
	require.NoError(t, s.LogAttempt(ctx, storage.Attempt{
		Key: "F1#leg2", FlightID: "F1", FlightDate: t0, AttemptedAt: t0, Reason: "Scoring calculation failed",
	}))

	all, err := s.ListAttempts(ctx, storage.AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "F1", all[0].Key)
	assert.True(t, all[0].Success)
	assert.Equal(t, 88, *all[0].Percentage)

	failed := false
	only, err := s.ListAttempts(ctx, storage.AttemptFilter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "Scoring calculation failed", only[0].Reason)
}
