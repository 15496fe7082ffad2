package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/storage"
)

// ReplaceScore deletes any previous score under the record's key and
// stores the new one in the same transaction
func (s *Store) ReplaceScore(ctx context.Context, rec storage.ScoreRecord) error {
	if rec.Score == nil {
		return fmt.Errorf("score record %s has no score", rec.Key)
	}
	details, err := json.Marshal(rec.Score)
	if err != nil {
		return fmt.Errorf("failed to marshal score details: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM approach_scores WHERE score_key = ?`, rec.Key); err != nil {
		return fmt.Errorf("failed to delete previous score: %w", err)
	}

	sc := rec.Score
	_, err = tx.ExecContext(ctx, `
		INSERT INTO approach_scores (score_key, flight_id, leg, leg_type, callsign, ac_type,
			arr_airport, runway_id, runway_heading_mag, flight_date, total_score, max_score, percentage, grade,
			descent_score, stabilized_score, centerline_score, turn_to_final_score,
			speed_control_score, threshold_score, severe_penalty_count,
			wind_dir, wind_speed_kt, wind_gust_kt, crosswind_kt,
			score_details_json, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Key, rec.FlightID, rec.Leg, nullString(rec.LegType), rec.Callsign, nullString(rec.AircraftType),
		rec.Airport, rec.Runway, rec.RunwayMag, formatTime(rec.FlightDate), sc.Total, sc.MaxTotal, sc.Percentage, sc.Grade,
		rec.CategoryScore(scoring.Descent), rec.CategoryScore(scoring.Stabilized),
		rec.CategoryScore(scoring.Centerline), rec.CategoryScore(scoring.TurnToFinal),
		rec.CategoryScore(scoring.SpeedControl), rec.CategoryScore(scoring.ThresholdCrossing),
		len(sc.SeverePenalties),
		nullInt(sc.Wind.Dir), sc.Wind.Speed, sc.Wind.Gust, sc.Wind.Crosswind,
		string(details), formatTime(rec.ScoredAt))
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteScores removes every stored score for a flight, all legs included
func (s *Store) DeleteScores(ctx context.Context, flightID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM approach_scores WHERE flight_id = ?`, flightID); err != nil {
		return fmt.Errorf("failed to delete scores: %w", err)
	}
	return nil
}

const scoreColumns = `score_key, flight_id, leg, COALESCE(leg_type, ''), COALESCE(callsign, ''),
	COALESCE(ac_type, ''), COALESCE(arr_airport, ''), COALESCE(runway_id, ''),
	COALESCE(runway_heading_mag, 0), flight_date, scored_at, score_details_json`

func scanScore(scan func(dest ...any) error) (storage.ScoreRecord, error) {
	var (
		rec                storage.ScoreRecord
		flightDate, scored string
		details            string
	)
	if err := scan(&rec.Key, &rec.FlightID, &rec.Leg, &rec.LegType, &rec.Callsign,
		&rec.AircraftType, &rec.Airport, &rec.Runway, &rec.RunwayMag, &flightDate, &scored, &details); err != nil {
		return rec, err
	}
	var err error
	if rec.FlightDate, err = parseTime(flightDate); err != nil {
		return rec, fmt.Errorf("failed to parse flight date: %w", err)
	}
	if rec.ScoredAt, err = parseTime(scored); err != nil {
		return rec, fmt.Errorf("failed to parse scored at: %w", err)
	}
	rec.Score = &scoring.ApproachScore{}
	if err := json.Unmarshal([]byte(details), rec.Score); err != nil {
		return rec, fmt.Errorf("failed to unmarshal score details: %w", err)
	}
	return rec, nil
}

// GetScore returns the score stored under key
func (s *Store) GetScore(ctx context.Context, key string) (storage.ScoreRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scoreColumns+` FROM approach_scores WHERE score_key = ?`, key)
	rec, err := scanScore(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, storage.ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get score: %w", err)
	}
	return rec, nil
}

// ListScores returns scores matching the filter, most recent flight first
func (s *Store) ListScores(ctx context.Context, filter storage.ScoreFilter) ([]storage.ScoreRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Airport != "" {
		where = append(where, "arr_airport = ?")
		args = append(args, strings.ToUpper(filter.Airport))
	}
	if filter.Callsign != "" {
		where = append(where, "callsign = ?")
		args = append(args, filter.Callsign)
	}
	if filter.Grade != "" {
		where = append(where, "grade = ?")
		args = append(args, strings.ToUpper(filter.Grade))
	}
	if !filter.Since.IsZero() {
		where = append(where, "flight_date >= ?")
		args = append(args, formatTime(filter.Since))
	}

	query := `SELECT ` + scoreColumns + ` FROM approach_scores`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY flight_date DESC, score_key ASC LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var records []storage.ScoreRecord
	for rows.Next() {
		rec, err := scanScore(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}
	return records, nil
}

// GradeSummary counts stored scores per grade
func (s *Store) GradeSummary(ctx context.Context) (storage.GradeSummary, error) {
	summary := storage.NewGradeSummary()

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(percentage) FROM approach_scores`).
		Scan(&summary.Total, &avg)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize scores: %w", err)
	}
	summary.AvgPercent = avg.Float64

	rows, err := s.db.QueryContext(ctx, `SELECT grade, COUNT(*) FROM approach_scores GROUP BY grade`)
	if err != nil {
		return summary, fmt.Errorf("failed to count grades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			grade sql.NullString
			count int
		)
		if err := rows.Scan(&grade, &count); err != nil {
			return summary, fmt.Errorf("failed to scan grade count: %w", err)
		}
		if grade.Valid {
			summary.Grades[grade.String] = count
		}
	}
	return summary, rows.Err()
}

// LogAttempt replaces the attempt row under the attempt's key
func (s *Store) LogAttempt(ctx context.Context, a storage.Attempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scoring_attempts WHERE attempt_key = ?`, a.Key); err != nil {
		return fmt.Errorf("failed to delete previous attempt: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scoring_attempts (attempt_key, flight_id, callsign, ac_type, arr_airport,
			flight_date, success, score_percentage, score_grade, failure_reason,
			min_altitude, max_altitude, track_points, leg_type, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Key, a.FlightID, a.Callsign, nullString(a.AircraftType), nullString(a.Airport),
		formatTime(a.FlightDate), boolToInt(a.Success), nullInt(a.Percentage), nullString(a.Grade),
		nullString(a.Reason), nullFloat(a.MinAltitude), nullFloat(a.MaxAltitude), a.PointCount,
		nullString(a.LegType), formatTime(a.AttemptedAt))
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListAttempts returns attempts matching the filter, newest first
func (s *Store) ListAttempts(ctx context.Context, filter storage.AttemptFilter) ([]storage.Attempt, error) {
	var (
		where []string
		args  []any
	)
	if filter.Success != nil {
		where = append(where, "success = ?")
		args = append(args, boolToInt(*filter.Success))
	}
	if !filter.Since.IsZero() {
		where = append(where, "attempted_at >= ?")
		args = append(args, formatTime(filter.Since))
	}

	query := `
		SELECT attempt_key, flight_id, COALESCE(callsign, ''), COALESCE(ac_type, ''),
			COALESCE(arr_airport, ''), flight_date, success, score_percentage,
			COALESCE(score_grade, ''), COALESCE(failure_reason, ''), min_altitude, max_altitude,
			COALESCE(track_points, 0), COALESCE(leg_type, ''), attempted_at
		FROM scoring_attempts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY attempted_at DESC, attempt_key ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []storage.Attempt
	for rows.Next() {
		var (
			a              storage.Attempt
			flightDate, at string
			success        int
			pct            sql.NullInt64
			minAlt, maxAlt sql.NullFloat64
		)
		if err := rows.Scan(&a.Key, &a.FlightID, &a.Callsign, &a.AircraftType, &a.Airport,
			&flightDate, &success, &pct, &a.Grade, &a.Reason, &minAlt, &maxAlt,
			&a.PointCount, &a.LegType, &at); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if a.FlightDate, err = parseTime(flightDate); err != nil {
			return nil, fmt.Errorf("failed to parse flight date: %w", err)
		}
		if a.AttemptedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("failed to parse attempted at: %w", err)
		}
		a.Success = success != 0
		a.Percentage = intPtr(pct)
		a.MinAltitude = floatPtr(minAlt)
		a.MaxAltitude = floatPtr(maxAlt)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return attempts, nil
}
