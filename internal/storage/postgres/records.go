package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/pkg/logger"
)

// query accumulates WHERE clauses with numbered placeholders
type query struct {
	where []string
	args  []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *query) add(clause string, v any) {
	q.where = append(q.where, fmt.Sprintf(clause, q.arg(v)))
}

func (q *query) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

const pointColumns = `flight_id, callsign, COALESCE(source, ''), position_time, message_time,
	latitude, longitude, altitude, speed, track, vertical_speed,
	assigned_altitude, COALESCE(assigned_altitude_type, ''), COALESCE(status, ''),
	COALESCE(operator, ''), COALESCE(center, ''), COALESCE(controlling_unit, ''),
	COALESCE(controlling_sector, ''), COALESCE(computer_id, ''), COALESCE(flight_plan_id, ''),
	COALESCE(mode_s, ''), COALESCE(ac_type, ''), COALESCE(departure, ''), COALESCE(arrival, ''),
	departure_actual_time, arrival_estimated_time`

// InsertPoints stores a batch of telemetry with one round trip. Rows that
// collide on (flight_id, position_time) are counted as skipped.
func (s *Store) InsertPoints(ctx context.Context, points []track.RawPoint) (inserted, skipped int, err error) {
	if len(points) == 0 {
		return 0, 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO flights (flight_id, callsign, source, position_time, message_time,
				latitude, longitude, altitude, speed, track, vertical_speed,
				assigned_altitude, assigned_altitude_type, status, operator, center,
				controlling_unit, controlling_sector, computer_id, flight_plan_id, mode_s,
				ac_type, departure, arrival, departure_actual_time, arrival_estimated_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
			ON CONFLICT (flight_id, position_time) DO NOTHING`,
			p.FlightID, p.Callsign, nullString(string(p.Source)), p.Time, p.MessageTime,
			p.Latitude, p.Longitude, p.Altitude, p.Speed, p.Heading, p.ReportedVerticalSpeed,
			p.AssignedAltitude, nullString(string(p.AssignedAltitudeType)), nullString(p.Status),
			nullString(p.Operator), nullString(p.Center), nullString(p.ControllingUnit),
			nullString(p.ControllingSector), nullString(p.ComputerID), nullString(p.FlightPlanID),
			nullString(p.ModeS), nullString(p.AircraftType), nullString(p.Departure), nullString(p.Arrival),
			p.DepartureActualTime, p.ArrivalEstimatedTime)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range points {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, 0, fmt.Errorf("failed to insert point for flight %s: %w", points[i].FlightID, err)
		}
		if tag.RowsAffected() == 0 {
			skipped++
		} else {
			inserted++
		}
	}
	if err := br.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Stored telemetry batch",
		logger.Int("inserted", inserted),
		logger.Int("skipped", skipped))
	return inserted, skipped, nil
}

// FlightPoints returns a flight's track ordered by position time
func (s *Store) FlightPoints(ctx context.Context, flightID string) ([]track.RawPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pointColumns+`
		FROM flights
		WHERE flight_id = $1
		ORDER BY position_time ASC
	`, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flight points: %w", err)
	}
	defer rows.Close()

	var points []track.RawPoint
	for rows.Next() {
		var (
			p               track.RawPoint
			source, altType string
		)
		if err := rows.Scan(&p.FlightID, &p.Callsign, &source, &p.Time, &p.MessageTime,
			&p.Latitude, &p.Longitude, &p.Altitude, &p.Speed, &p.Heading, &p.ReportedVerticalSpeed,
			&p.AssignedAltitude, &altType, &p.Status, &p.Operator, &p.Center, &p.ControllingUnit,
			&p.ControllingSector, &p.ComputerID, &p.FlightPlanID, &p.ModeS, &p.AircraftType,
			&p.Departure, &p.Arrival, &p.DepartureActualTime, &p.ArrivalEstimatedTime); err != nil {
			return nil, fmt.Errorf("failed to scan flight point: %w", err)
		}
		p.Time = p.Time.UTC()
		p.Source = track.Source(source)
		p.AssignedAltitudeType = track.AltitudeType(altType)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flight points: %w", err)
	}
	return points, nil
}

const summaryColumns = `f.flight_id,
	COALESCE(MAX(f.callsign), ''),
	COALESCE(MAX(f.departure), ''),
	COALESCE(MAX(f.arrival), ''),
	COALESCE(MAX(f.ac_type), ''),
	COUNT(*),
	MIN(f.position_time),
	MAX(f.position_time),
	MIN(f.altitude),
	MAX(f.altitude)`

func scanSummary(row pgx.Row, extra ...any) (storage.FlightSummary, error) {
	var fs storage.FlightSummary
	dest := []any{&fs.FlightID, &fs.Callsign, &fs.Departure, &fs.Arrival, &fs.AircraftType,
		&fs.PointCount, &fs.FirstSeen, &fs.LastSeen, &fs.MinAltitude, &fs.MaxAltitude}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return fs, err
	}
	fs.FirstSeen = fs.FirstSeen.UTC()
	fs.LastSeen = fs.LastSeen.UTC()
	return fs, nil
}

// FlightSummary aggregates the stored track of one flight
func (s *Store) FlightSummary(ctx context.Context, flightID string) (storage.FlightSummary, error) {
	fs, err := scanSummary(s.pool.QueryRow(ctx, `
		SELECT `+summaryColumns+`
		FROM flights f
		WHERE f.flight_id = $1
		GROUP BY f.flight_id
	`, flightID))
	if errors.Is(err, pgx.ErrNoRows) {
		return fs, storage.ErrNotFound
	}
	if err != nil {
		return fs, fmt.Errorf("failed to get flight summary: %w", err)
	}
	return fs, nil
}

// CandidateFlights lists flights eligible for batch scoring, newest first
func (s *Store) CandidateFlights(ctx context.Context, filter storage.CandidateFilter) ([]storage.FlightSummary, error) {
	q := &query{where: []string{"f.arrival IS NOT NULL", "f.arrival <> ''"}}
	q.add("f.position_time >= %s", filter.Since)
	if filter.GAOnly {
		q.where = append(q.where, "f.callsign LIKE 'N%'")
	}
	if filter.Callsign != "" {
		q.add("f.callsign = %s", filter.Callsign)
	}
	if filter.OnlyArrival != "" {
		q.add("f.arrival = %s", filter.OnlyArrival)
	}
	if len(filter.FlightIDs) > 0 {
		q.add("f.flight_id = ANY(%s)", filter.FlightIDs)
	}
	if !filter.Rescore {
		q.where = append(q.where, "NOT EXISTS (SELECT 1 FROM scoring_attempts a WHERE a.flight_id = f.flight_id)")
	}

	minPoints := max(filter.MinPoints, 1)
	sql := `SELECT ` + summaryColumns + ` FROM flights f` + q.whereSQL() +
		` GROUP BY f.flight_id HAVING COUNT(*) >= ` + q.arg(minPoints) +
		` AND MIN(f.altitude) < ` + q.arg(filter.MaxMinAlt) +
		` ORDER BY MIN(f.position_time) DESC`
	if filter.Limit > 0 {
		sql += ` LIMIT ` + q.arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate flights: %w", err)
	}
	defer rows.Close()

	var flights []storage.FlightSummary
	for rows.Next() {
		fs, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate flight: %w", err)
		}
		flights = append(flights, fs)
	}
	return flights, rows.Err()
}

// ListFlights summarizes flights seen in [from, to), newest first
func (s *Store) ListFlights(ctx context.Context, from, to time.Time, limit int) ([]storage.FlightSummary, error) {
	q := &query{}
	q.add("f.position_time >= %s", from)
	q.add("f.position_time < %s", to)
	sql := `SELECT ` + summaryColumns + `,
			(SELECT MAX(sc.scored_at) FROM approach_scores sc WHERE sc.flight_id = f.flight_id)
		FROM flights f` + q.whereSQL() + `
		GROUP BY f.flight_id
		ORDER BY MIN(f.position_time) DESC`
	if limit > 0 {
		sql += ` LIMIT ` + q.arg(limit)
	}

	rows, err := s.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	var flights []storage.FlightSummary
	for rows.Next() {
		var scoredAt *time.Time
		fs, err := scanSummary(rows, &scoredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		fs.ScoredAt = scoredAt
		flights = append(flights, fs)
	}
	return flights, rows.Err()
}

// ReplaceScore deletes any previous score under the key and stores the new one
func (s *Store) ReplaceScore(ctx context.Context, rec storage.ScoreRecord) error {
	if rec.Score == nil {
		return fmt.Errorf("score record %s has no score", rec.Key)
	}
	details, err := json.Marshal(rec.Score)
	if err != nil {
		return fmt.Errorf("failed to marshal score details: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM approach_scores WHERE score_key = $1`, rec.Key); err != nil {
		return fmt.Errorf("failed to delete previous score: %w", err)
	}

	sc := rec.Score
	_, err = tx.Exec(ctx, `
		INSERT INTO approach_scores (score_key, flight_id, leg, leg_type, callsign, ac_type,
			arr_airport, runway_id, runway_heading_mag, flight_date, total_score, max_score, percentage, grade,
			descent_score, stabilized_score, centerline_score, turn_to_final_score,
			speed_control_score, threshold_score, severe_penalty_count,
			wind_dir, wind_speed_kt, wind_gust_kt, crosswind_kt,
			score_details_json, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`, rec.Key, rec.FlightID, rec.Leg, nullString(rec.LegType), rec.Callsign, nullString(rec.AircraftType),
		rec.Airport, rec.Runway, rec.RunwayMag, rec.FlightDate, sc.Total, sc.MaxTotal, sc.Percentage, sc.Grade,
		rec.CategoryScore(scoring.Descent), rec.CategoryScore(scoring.Stabilized),
		rec.CategoryScore(scoring.Centerline), rec.CategoryScore(scoring.TurnToFinal),
		rec.CategoryScore(scoring.SpeedControl), rec.CategoryScore(scoring.ThresholdCrossing),
		len(sc.SeverePenalties), sc.Wind.Dir, sc.Wind.Speed, sc.Wind.Gust, sc.Wind.Crosswind,
		details, rec.ScoredAt)
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}
	return tx.Commit(ctx)
}

// DeleteScores removes every stored score for a flight, all legs included
func (s *Store) DeleteScores(ctx context.Context, flightID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM approach_scores WHERE flight_id = $1`, flightID); err != nil {
		return fmt.Errorf("failed to delete scores: %w", err)
	}
	return nil
}

const scoreColumns = `score_key, flight_id, leg, COALESCE(leg_type, ''), COALESCE(callsign, ''),
	COALESCE(ac_type, ''), COALESCE(arr_airport, ''), COALESCE(runway_id, ''),
	COALESCE(runway_heading_mag, 0), flight_date, scored_at, score_details_json`

func scanScore(row pgx.Row) (storage.ScoreRecord, error) {
	var (
		rec     storage.ScoreRecord
		details []byte
	)
	if err := row.Scan(&rec.Key, &rec.FlightID, &rec.Leg, &rec.LegType, &rec.Callsign,
		&rec.AircraftType, &rec.Airport, &rec.Runway, &rec.RunwayMag, &rec.FlightDate, &rec.ScoredAt, &details); err != nil {
		return rec, err
	}
	rec.FlightDate = rec.FlightDate.UTC()
	rec.ScoredAt = rec.ScoredAt.UTC()
	rec.Score = &scoring.ApproachScore{}
	if err := json.Unmarshal(details, rec.Score); err != nil {
		return rec, fmt.Errorf("failed to unmarshal score details: %w", err)
	}
	return rec, nil
}

// GetScore returns the score stored under key
func (s *Store) GetScore(ctx context.Context, key string) (storage.ScoreRecord, error) {
	rec, err := scanScore(s.pool.QueryRow(ctx, `SELECT `+scoreColumns+` FROM approach_scores WHERE score_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, storage.ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get score: %w", err)
	}
	return rec, nil
}

// ListScores returns scores matching the filter, most recent flight first
func (s *Store) ListScores(ctx context.Context, filter storage.ScoreFilter) ([]storage.ScoreRecord, error) {
	q := &query{}
	if filter.Airport != "" {
		q.add("arr_airport = %s", strings.ToUpper(filter.Airport))
	}
	if filter.Callsign != "" {
		q.add("callsign = %s", filter.Callsign)
	}
	if filter.Grade != "" {
		q.add("grade = %s", strings.ToUpper(filter.Grade))
	}
	if !filter.Since.IsZero() {
		q.add("flight_date >= %s", filter.Since)
	}
	sql := `SELECT ` + scoreColumns + ` FROM approach_scores` + q.whereSQL() +
		` ORDER BY flight_date DESC, score_key ASC`
	if filter.Limit > 0 {
		sql += ` LIMIT ` + q.arg(filter.Limit)
	}
	if filter.Offset > 0 {
		sql += ` OFFSET ` + q.arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var records []storage.ScoreRecord
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GradeSummary counts stored scores per grade
func (s *Store) GradeSummary(ctx context.Context) (storage.GradeSummary, error) {
	summary := storage.NewGradeSummary()

	var avg *float64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*), AVG(percentage)::float8 FROM approach_scores`).
		Scan(&summary.Total, &avg); err != nil {
		return summary, fmt.Errorf("failed to summarize scores: %w", err)
	}
	if avg != nil {
		summary.AvgPercent = *avg
	}

	rows, err := s.pool.Query(ctx, `SELECT COALESCE(grade, ''), COUNT(*) FROM approach_scores GROUP BY grade`)
	if err != nil {
		return summary, fmt.Errorf("failed to count grades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			grade string
			count int
		)
		if err := rows.Scan(&grade, &count); err != nil {
			return summary, fmt.Errorf("failed to scan grade count: %w", err)
		}
		if grade != "" {
			summary.Grades[grade] = count
		}
	}
	return summary, rows.Err()
}

// LogAttempt replaces the attempt row under the attempt's key
func (s *Store) LogAttempt(ctx context.Context, a storage.Attempt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM scoring_attempts WHERE attempt_key = $1`, a.Key); err != nil {
		return fmt.Errorf("failed to delete previous attempt: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO scoring_attempts (attempt_key, flight_id, callsign, ac_type, arr_airport,
			flight_date, success, score_percentage, score_grade, failure_reason,
			min_altitude, max_altitude, track_points, leg_type, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.Key, a.FlightID, a.Callsign, nullString(a.AircraftType), nullString(a.Airport),
		a.FlightDate, a.Success, a.Percentage, nullString(a.Grade), nullString(a.Reason),
		a.MinAltitude, a.MaxAltitude, a.PointCount, nullString(a.LegType), a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return tx.Commit(ctx)
}

// ListAttempts returns attempts matching the filter, newest first
func (s *Store) ListAttempts(ctx context.Context, filter storage.AttemptFilter) ([]storage.Attempt, error) {
	q := &query{}
	if filter.Success != nil {
		q.add("success = %s", *filter.Success)
	}
	if !filter.Since.IsZero() {
		q.add("attempted_at >= %s", filter.Since)
	}
	sql := `
		SELECT attempt_key, flight_id, COALESCE(callsign, ''), COALESCE(ac_type, ''),
			COALESCE(arr_airport, ''), flight_date, success, score_percentage,
			COALESCE(score_grade, ''), COALESCE(failure_reason, ''), min_altitude, max_altitude,
			COALESCE(track_points, 0), COALESCE(leg_type, ''), attempted_at
		FROM scoring_attempts` + q.whereSQL() + ` ORDER BY attempted_at DESC, attempt_key ASC`
	if filter.Limit > 0 {
		sql += ` LIMIT ` + q.arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []storage.Attempt
	for rows.Next() {
		var a storage.Attempt
		if err := rows.Scan(&a.Key, &a.FlightID, &a.Callsign, &a.AircraftType, &a.Airport,
			&a.FlightDate, &a.Success, &a.Percentage, &a.Grade, &a.Reason,
			&a.MinAltitude, &a.MaxAltitude, &a.PointCount, &a.LegType, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.FlightDate = a.FlightDate.UTC()
		a.AttemptedAt = a.AttemptedAt.UTC()
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
