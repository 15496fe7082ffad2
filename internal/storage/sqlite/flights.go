package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/pkg/logger"
)

const pointColumns = `flight_id, callsign, source, position_time, message_time,
	latitude, longitude, altitude, speed, track, vertical_speed,
	assigned_altitude, assigned_altitude_type, status, operator, center,
	controlling_unit, controlling_sector, computer_id, flight_plan_id, mode_s,
	ac_type, departure, arrival, departure_actual_time, arrival_estimated_time`

// InsertPoints stores a batch of telemetry in one transaction. Rows that
// collide on (flight_id, position_time) are counted as skipped.
func (s *Store) InsertPoints(ctx context.Context, points []track.RawPoint) (inserted, skipped int, err error) {
	if len(points) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flights (`+pointColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (flight_id, position_time) DO NOTHING
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		res, err := stmt.ExecContext(ctx,
			p.FlightID, p.Callsign, nullString(string(p.Source)), formatTime(p.Time), formatNullableTime(p.MessageTime),
			nullFloat(p.Latitude), nullFloat(p.Longitude), nullFloat(p.Altitude), nullFloat(p.Speed), nullFloat(p.Heading),
			nullInt(p.ReportedVerticalSpeed), nullInt(p.AssignedAltitude), nullString(string(p.AssignedAltitudeType)),
			nullString(p.Status), nullString(p.Operator), nullString(p.Center),
			nullString(p.ControllingUnit), nullString(p.ControllingSector), nullString(p.ComputerID),
			nullString(p.FlightPlanID), nullString(p.ModeS), nullString(p.AircraftType),
			nullString(p.Departure), nullString(p.Arrival),
			formatNullableTime(p.DepartureActualTime), formatNullableTime(p.ArrivalEstimatedTime),
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert point for flight %s: %w", p.FlightID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			skipped++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Stored telemetry batch",
		logger.Int("inserted", inserted),
		logger.Int("skipped", skipped))
	return inserted, skipped, nil
}

// FlightPoints returns a flight's track ordered by position time
func (s *Store) FlightPoints(ctx context.Context, flightID string) ([]track.RawPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pointColumns+`
		FROM flights
		WHERE flight_id = ?
		ORDER BY position_time ASC
	`, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flight points: %w", err)
	}
	defer rows.Close()

	var points []track.RawPoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flight points: %w", err)
	}
	return points, nil
}

func scanPoint(rows *sql.Rows) (track.RawPoint, error) {
	var (
		p                                         track.RawPoint
		source, altType, status, operator, center sql.NullString
		unit, sector, cid, fpID, modeS, acType    sql.NullString
		dep, arr, posTime                         sql.NullString
		msgTime, depTime, arrTime                 sql.NullString
		lat, lon, alt, speed, heading             sql.NullFloat64
		vs, assigned                              sql.NullInt64
	)
	if err := rows.Scan(
		&p.FlightID, &p.Callsign, &source, &posTime, &msgTime,
		&lat, &lon, &alt, &speed, &heading, &vs,
		&assigned, &altType, &status, &operator, &center,
		&unit, &sector, &cid, &fpID, &modeS,
		&acType, &dep, &arr, &depTime, &arrTime,
	); err != nil {
		return p, fmt.Errorf("failed to scan flight point: %w", err)
	}

	t, err := parseTime(posTime.String)
	if err != nil {
		return p, fmt.Errorf("failed to parse position time %q: %w", posTime.String, err)
	}
	p.Time = t
	p.Source = track.Source(source.String)
	p.MessageTime = parseNullableTime(msgTime)
	p.Latitude = floatPtr(lat)
	p.Longitude = floatPtr(lon)
	p.Altitude = floatPtr(alt)
	p.Speed = floatPtr(speed)
	p.Heading = floatPtr(heading)
	p.ReportedVerticalSpeed = intPtr(vs)
	p.AssignedAltitude = intPtr(assigned)
	p.AssignedAltitudeType = track.AltitudeType(altType.String)
	p.Status = status.String
	p.Operator = operator.String
	p.Center = center.String
	p.ControllingUnit = unit.String
	p.ControllingSector = sector.String
	p.ComputerID = cid.String
	p.FlightPlanID = fpID.String
	p.ModeS = modeS.String
	p.AircraftType = acType.String
	p.Departure = dep.String
	p.Arrival = arr.String
	p.DepartureActualTime = parseNullableTime(depTime)
	p.ArrivalEstimatedTime = parseNullableTime(arrTime)
	return p, nil
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

func scanSummary(scan func(dest ...any) error, extra ...any) (storage.FlightSummary, error) {
	var (
		fs             storage.FlightSummary
		first, last    string
		minAlt, maxAlt sql.NullFloat64
	)
	dest := []any{&fs.FlightID, &fs.Callsign, &fs.Departure, &fs.Arrival, &fs.AircraftType,
		&fs.PointCount, &first, &last, &minAlt, &maxAlt}
	if err := scan(append(dest, extra...)...); err != nil {
		return fs, err
	}
	var err error
	if fs.FirstSeen, err = parseTime(first); err != nil {
		return fs, fmt.Errorf("failed to parse first seen: %w", err)
	}
	if fs.LastSeen, err = parseTime(last); err != nil {
		return fs, fmt.Errorf("failed to parse last seen: %w", err)
	}
	fs.MinAltitude = floatPtr(minAlt)
	fs.MaxAltitude = floatPtr(maxAlt)
	return fs, nil
}

// FlightSummary aggregates the stored track of one flight
func (s *Store) FlightSummary(ctx context.Context, flightID string) (storage.FlightSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM flights f
		WHERE f.flight_id = ?
		GROUP BY f.flight_id
	`, flightID)
	fs, err := scanSummary(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return fs, storage.ErrNotFound
	}
	if err != nil {
		return fs, fmt.Errorf("failed to get flight summary: %w", err)
	}
	return fs, nil
}

// CandidateFlights lists flights eligible for batch scoring, newest first
func (s *Store) CandidateFlights(ctx context.Context, filter storage.CandidateFilter) ([]storage.FlightSummary, error) {
	where := []string{"f.arrival IS NOT NULL", "f.arrival <> ''", "f.position_time >= ?"}
	args := []any{formatTime(filter.Since)}

	if filter.GAOnly {
		where = append(where, "f.callsign LIKE 'N%'")
	}
	if filter.Callsign != "" {
		where = append(where, "f.callsign = ?")
		args = append(args, filter.Callsign)
	}
	if filter.OnlyArrival != "" {
		where = append(where, "f.arrival = ?")
		args = append(args, filter.OnlyArrival)
	}
	if len(filter.FlightIDs) > 0 {
		where = append(where, "f.flight_id IN ("+placeholders(len(filter.FlightIDs))+")")
		for _, id := range filter.FlightIDs {
			args = append(args, id)
		}
	}
	if !filter.Rescore {
		where = append(where, "NOT EXISTS (SELECT 1 FROM scoring_attempts a WHERE a.flight_id = f.flight_id)")
	}

	minPoints := filter.MinPoints
	if minPoints <= 0 {
		minPoints = 1
	}
	args = append(args, minPoints, filter.MaxMinAlt)

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	args = append(args, limit)

	query := `
		SELECT ` + summaryColumns + `
		FROM flights f
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY f.flight_id
		HAVING COUNT(*) >= ? AND MIN(f.altitude) < ?
		ORDER BY MIN(f.position_time) DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate flights: %w", err)
	}
	defer rows.Close()

	var flights []storage.FlightSummary
	for rows.Next() {
		fs, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate flight: %w", err)
		}
		flights = append(flights, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidate flights: %w", err)
	}
	return flights, nil
}

// ListFlights summarizes flights seen in [from, to), newest first. Each
// summary carries the time of its most recent score, if any.
func (s *Store) ListFlights(ctx context.Context, from, to time.Time, limit int) ([]storage.FlightSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`,
			(SELECT MAX(sc.scored_at) FROM approach_scores sc WHERE sc.flight_id = f.flight_id)
		FROM flights f
		WHERE f.position_time >= ? AND f.position_time < ?
		GROUP BY f.flight_id
		ORDER BY MIN(f.position_time) DESC
		LIMIT ?
	`, formatTime(from), formatTime(to), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	var flights []storage.FlightSummary
	for rows.Next() {
		var scoredAt sql.NullString
		fs, err := scanSummary(rows.Scan, &scoredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		fs.ScoredAt = parseNullableTime(scoredAt)
		flights = append(flights, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flights: %w", err)
	}
	return flights, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
