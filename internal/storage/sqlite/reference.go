package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/glidepath/internal/runway"
	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/internal/weather"
)

// RunwayEnds returns every runway end of an airport in insertion order,
// with the reciprocal threshold and airport elevation joined in
func (s *Store) RunwayEnds(ctx context.Context, airport string) ([]runway.RunwayEnd, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.airport, r.runway_id, r.latitude, r.longitude,
			r.displaced_latitude, r.displaced_longitude, r.true_heading, r.tdze,
			a.elevation, COALESCE(r.reciprocal_id, ''), o.latitude, o.longitude,
			COALESCE(r.surface, ''), COALESCE(r.length_ft, 0), COALESCE(r.width_ft, 0)
		FROM runway_ends r
		LEFT JOIN airports a ON a.icao = r.airport
		LEFT JOIN runway_ends o ON o.airport = r.airport AND o.runway_id = r.reciprocal_id
		WHERE r.airport = ?
		ORDER BY r.id
	`, airport)
	if err != nil {
		return nil, fmt.Errorf("failed to query runway ends: %w", err)
	}
	defer rows.Close()

	var ends []runway.RunwayEnd
	for rows.Next() {
		var (
			e                        runway.RunwayEnd
			lat, lon, dLat, dLon     sql.NullFloat64
			heading, tdze, elevation sql.NullFloat64
			recipLat, recipLon       sql.NullFloat64
		)
		if err := rows.Scan(&e.Airport, &e.ID, &lat, &lon, &dLat, &dLon, &heading, &tdze,
			&elevation, &e.ReciprocalID, &recipLat, &recipLon,
			&e.Surface, &e.LengthFt, &e.WidthFt); err != nil {
			return nil, fmt.Errorf("failed to scan runway end: %w", err)
		}
		e.Lat = floatPtr(lat)
		e.Lon = floatPtr(lon)
		e.DisplacedLat = floatPtr(dLat)
		e.DisplacedLon = floatPtr(dLon)
		e.TrueHeading = floatPtr(heading)
		e.TDZE = floatPtr(tdze)
		e.AirportElevation = floatPtr(elevation)
		e.ReciprocalLat = floatPtr(recipLat)
		e.ReciprocalLon = floatPtr(recipLon)
		ends = append(ends, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runway ends: %w", err)
	}
	return ends, nil
}

// UpsertRunway inserts or replaces one runway end. The reciprocal
// coordinates and airport elevation on e are ignored; they are joined in
// from their own rows on read.
func (s *Store) UpsertRunway(ctx context.Context, e runway.RunwayEnd) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runway_ends (airport, runway_id, latitude, longitude,
			displaced_latitude, displaced_longitude, true_heading, tdze,
			reciprocal_id, surface, length_ft, width_ft)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (airport, runway_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			displaced_latitude = excluded.displaced_latitude,
			displaced_longitude = excluded.displaced_longitude,
			true_heading = excluded.true_heading,
			tdze = excluded.tdze,
			reciprocal_id = excluded.reciprocal_id,
			surface = excluded.surface,
			length_ft = excluded.length_ft,
			width_ft = excluded.width_ft
	`, e.Airport, e.ID, nullFloat(e.Lat), nullFloat(e.Lon),
		nullFloat(e.DisplacedLat), nullFloat(e.DisplacedLon), nullFloat(e.TrueHeading), nullFloat(e.TDZE),
		nullString(e.ReciprocalID), nullString(e.Surface), e.LengthFt, e.WidthFt)
	if err != nil {
		return fmt.Errorf("failed to upsert runway %s/%s: %w", e.Airport, e.ID, err)
	}
	return nil
}

// UpsertAirport inserts or replaces an airport
func (s *Store) UpsertAirport(ctx context.Context, a storage.Airport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO airports (icao, name, elevation, latitude, longitude)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (icao) DO UPDATE SET
			name = excluded.name,
			elevation = excluded.elevation,
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`, strings.ToUpper(a.ICAO), a.Name, nullFloat(a.Elevation), nullFloat(a.Latitude), nullFloat(a.Longitude))
	if err != nil {
		return fmt.Errorf("failed to upsert airport %s: %w", a.ICAO, err)
	}
	return nil
}

// AirportElevation returns the field elevation, nil when unknown
func (s *Store) AirportElevation(ctx context.Context, icao string) (*float64, error) {
	var elevation sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT elevation FROM airports WHERE icao = ?`, icao).Scan(&elevation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get airport elevation: %w", err)
	}
	return floatPtr(elevation), nil
}

// AirportCodes lists every known airport
func (s *Store) AirportCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT icao FROM airports ORDER BY icao`)
	if err != nil {
		return nil, fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan airport: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// UpsertAircraft maps a registration to its type
func (s *Store) UpsertAircraft(ctx context.Context, a storage.Aircraft) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aircraft (n_number, model) VALUES (?, ?)
		ON CONFLICT (n_number) DO UPDATE SET model = excluded.model
	`, a.Registration, a.Model)
	if err != nil {
		return fmt.Errorf("failed to upsert aircraft %s: %w", a.Registration, err)
	}
	return nil
}

// AircraftType returns the registered type for a callsign, "" when unknown
func (s *Store) AircraftType(ctx context.Context, callsign string) (string, error) {
	var model string
	err := s.db.QueryRowContext(ctx, `SELECT model FROM aircraft WHERE n_number = ?`, callsign).Scan(&model)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get aircraft type: %w", err)
	}
	return model, nil
}

// UpsertAircraftSpeeds stores reference speeds for a type
func (s *Store) UpsertAircraftSpeeds(ctx context.Context, a storage.AircraftSpeeds) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aircraft_speeds (ac_type, appr_speed, dirty_stall, clean_stall)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (ac_type) DO UPDATE SET
			appr_speed = excluded.appr_speed,
			dirty_stall = excluded.dirty_stall,
			clean_stall = excluded.clean_stall
	`, a.AircraftType, a.Approach, a.DirtyStall, a.CleanStall)
	if err != nil {
		return fmt.Errorf("failed to upsert aircraft speeds %s: %w", a.AircraftType, err)
	}
	return nil
}

// AircraftSpeeds returns reference speeds for a type, nil when unknown
func (s *Store) AircraftSpeeds(ctx context.Context, acType string) (*storage.AircraftSpeeds, error) {
	var (
		a                  storage.AircraftSpeeds
		appr, dirty, clean sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ac_type, appr_speed, dirty_stall, clean_stall
		FROM aircraft_speeds WHERE ac_type = ?
	`, acType).Scan(&a.AircraftType, &appr, &dirty, &clean)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aircraft speeds: %w", err)
	}
	if !appr.Valid || !dirty.Valid {
		return nil, nil
	}
	a.Approach = appr.Float64
	a.DirtyStall = dirty.Float64
	a.CleanStall = clean.Float64
	return &a, nil
}

// InsertObservation stores a METAR. It returns false when the airport
// already has an observation at that time.
func (s *Store) InsertObservation(ctx context.Context, o weather.Observation) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO metar_observations (airport, observation_time, wind_dir_degrees,
			wind_speed_kt, wind_gust_kt, temp_c, dewpoint_c, altimeter_hpa,
			visibility_miles, flight_category, metar_type, raw_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (airport, observation_time) DO NOTHING
	`, o.Airport, formatTime(o.ObservedAt), nullInt(o.WindDirDegrees),
		nullInt(o.WindSpeedKt), nullInt(o.WindGustKt), nullFloat(o.TempC), nullFloat(o.DewpointC),
		nullFloat(o.AltimeterHPa), nullFloat(o.VisibilityMiles), nullString(o.FlightCategory),
		nullString(o.MetarType), nullString(o.Raw))
	if err != nil {
		return false, fmt.Errorf("failed to insert observation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// NearestObservation returns the latest observation at or before at, nil
// when there is none
func (s *Store) NearestObservation(ctx context.Context, airport string, at time.Time) (*weather.Observation, error) {
	var (
		o                        weather.Observation
		observed                 string
		dir, speed, gust         sql.NullInt64
		temp, dew, altim, vis    sql.NullFloat64
		category, metarType, raw sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT airport, observation_time, wind_dir_degrees, wind_speed_kt, wind_gust_kt,
			temp_c, dewpoint_c, altimeter_hpa, visibility_miles,
			flight_category, metar_type, raw_text
		FROM metar_observations
		WHERE airport = ? AND observation_time <= ?
		ORDER BY observation_time DESC
		LIMIT 1
	`, airport, formatTime(at)).Scan(&o.Airport, &observed, &dir, &speed, &gust,
		&temp, &dew, &altim, &vis, &category, &metarType, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}
	if o.ObservedAt, err = parseTime(observed); err != nil {
		return nil, fmt.Errorf("failed to parse observation time: %w", err)
	}
	o.WindDirDegrees = intPtr(dir)
	o.WindSpeedKt = intPtr(speed)
	o.WindGustKt = intPtr(gust)
	o.TempC = floatPtr(temp)
	o.DewpointC = floatPtr(dew)
	o.AltimeterHPa = floatPtr(altim)
	o.VisibilityMiles = floatPtr(vis)
	o.FlightCategory = category.String
	o.MetarType = metarType.String
	o.Raw = raw.String
	return &o, nil
}

// ScoringOverrides returns every stored scoring threshold override
func (s *Store) ScoringOverrides(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM scoring_config`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scoring config: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]float64)
	for rows.Next() {
		var (
			key   string
			value float64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan scoring config: %w", err)
		}
		overrides[key] = value
	}
	return overrides, rows.Err()
}

// SetScoringOverride stores one scoring threshold override
func (s *Store) SetScoringOverride(ctx context.Context, key string, value float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scoring_config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set scoring override %s: %w", key, err)
	}
	return nil
}
