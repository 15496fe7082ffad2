// Package postgres is an alternative relational store backed by a pgx
// connection pool. It exposes the same operations as the sqlite store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yegors/glidepath/internal/runway"
	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/internal/weather"
	"github.com/yegors/glidepath/pkg/logger"
)

// Config holds PostgreSQL connection settings
type Config struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int32  `toml:"max_conns"`
}

// ConnString builds the pgx connection URL
func (c Config) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

// Store wraps a PostgreSQL connection pool
type Store struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// Open opens a connection pool and creates the schema
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{pool: pool, logger: log.Named("postgres")}
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.logger.Info("Connected to PostgreSQL",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))
	return s, nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSchema creates the tables and indexes if they do not exist
func (s *Store) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flights (
		id                      BIGSERIAL PRIMARY KEY,
		flight_id               TEXT NOT NULL,
		callsign                TEXT NOT NULL,
		source                  TEXT,
		position_time           TIMESTAMPTZ NOT NULL,
		message_time            TIMESTAMPTZ,
		latitude                DOUBLE PRECISION,
		longitude               DOUBLE PRECISION,
		altitude                DOUBLE PRECISION,
		speed                   DOUBLE PRECISION,
		track                   DOUBLE PRECISION,
		vertical_speed          INTEGER,
		assigned_altitude       INTEGER,
		assigned_altitude_type  TEXT,
		status                  TEXT,
		operator                TEXT,
		center                  TEXT,
		controlling_unit        TEXT,
		controlling_sector      TEXT,
		computer_id             TEXT,
		flight_plan_id          TEXT,
		mode_s                  TEXT,
		ac_type                 TEXT,
		departure               TEXT,
		arrival                 TEXT,
		departure_actual_time   TIMESTAMPTZ,
		arrival_estimated_time  TIMESTAMPTZ,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (flight_id, position_time)
	);

	CREATE INDEX IF NOT EXISTS idx_flights_position_time ON flights(position_time);
	CREATE INDEX IF NOT EXISTS idx_flights_callsign ON flights(callsign);

	CREATE TABLE IF NOT EXISTS airports (
		icao        TEXT PRIMARY KEY,
		name        TEXT,
		elevation   DOUBLE PRECISION,
		latitude    DOUBLE PRECISION,
		longitude   DOUBLE PRECISION
	);

	CREATE TABLE IF NOT EXISTS runway_ends (
		id                      SERIAL PRIMARY KEY,
		airport                 TEXT NOT NULL,
		runway_id               TEXT NOT NULL,
		latitude                DOUBLE PRECISION,
		longitude               DOUBLE PRECISION,
		displaced_latitude      DOUBLE PRECISION,
		displaced_longitude     DOUBLE PRECISION,
		true_heading            DOUBLE PRECISION,
		tdze                    DOUBLE PRECISION,
		reciprocal_id           TEXT,
		surface                 TEXT,
		length_ft               INTEGER,
		width_ft                INTEGER,
		UNIQUE (airport, runway_id)
	);

	CREATE TABLE IF NOT EXISTS aircraft (
		n_number    TEXT PRIMARY KEY,
		model       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS aircraft_speeds (
		ac_type     TEXT PRIMARY KEY,
		appr_speed  DOUBLE PRECISION,
		dirty_stall DOUBLE PRECISION,
		clean_stall DOUBLE PRECISION
	);

	CREATE TABLE IF NOT EXISTS metar_observations (
		id                  BIGSERIAL PRIMARY KEY,
		airport             TEXT NOT NULL,
		observation_time    TIMESTAMPTZ NOT NULL,
		wind_dir_degrees    INTEGER,
		wind_speed_kt       INTEGER,
		wind_gust_kt        INTEGER,
		temp_c              DOUBLE PRECISION,
		dewpoint_c          DOUBLE PRECISION,
		altimeter_hpa       DOUBLE PRECISION,
		visibility_miles    DOUBLE PRECISION,
		flight_category     TEXT,
		metar_type          TEXT,
		raw_text            TEXT,
		fetched_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (airport, observation_time)
	);

	CREATE TABLE IF NOT EXISTS scoring_config (
		key         TEXT PRIMARY KEY,
		value       DOUBLE PRECISION NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS approach_scores (
		score_key               TEXT PRIMARY KEY,
		flight_id               TEXT NOT NULL,
		leg                     INTEGER NOT NULL,
		leg_type                TEXT,
		callsign                TEXT,
		ac_type                 TEXT,
		arr_airport             TEXT,
		runway_id               TEXT,
		runway_heading_mag      DOUBLE PRECISION,
		flight_date             TIMESTAMPTZ NOT NULL,
		total_score             INTEGER,
		max_score               INTEGER,
		percentage              INTEGER,
		grade                   TEXT,
		descent_score           INTEGER,
		stabilized_score        INTEGER,
		centerline_score        INTEGER,
		turn_to_final_score     INTEGER,
		speed_control_score     INTEGER,
		threshold_score         INTEGER,
		severe_penalty_count    INTEGER,
		wind_dir                INTEGER,
		wind_speed_kt           INTEGER,
		wind_gust_kt            INTEGER,
		crosswind_kt            INTEGER,
		score_details_json      JSONB NOT NULL,
		scored_at               TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scores_flight ON approach_scores(flight_id);
	CREATE INDEX IF NOT EXISTS idx_scores_airport ON approach_scores(arr_airport);

	CREATE TABLE IF NOT EXISTS scoring_attempts (
		attempt_key         TEXT PRIMARY KEY,
		flight_id           TEXT NOT NULL,
		callsign            TEXT,
		ac_type             TEXT,
		arr_airport         TEXT,
		flight_date         TIMESTAMPTZ NOT NULL,
		success             BOOLEAN NOT NULL,
		score_percentage    INTEGER,
		score_grade         TEXT,
		failure_reason      TEXT,
		min_altitude        DOUBLE PRECISION,
		max_altitude        DOUBLE PRECISION,
		track_points        INTEGER,
		leg_type            TEXT,
		attempted_at        TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_flight ON scoring_attempts(flight_id);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// nullString stores empty strings as NULL
func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// RunwayEnds returns every runway end of an airport in insertion order
func (s *Store) RunwayEnds(ctx context.Context, airport string) ([]runway.RunwayEnd, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.airport, r.runway_id, r.latitude, r.longitude,
			r.displaced_latitude, r.displaced_longitude, r.true_heading, r.tdze,
			a.elevation, COALESCE(r.reciprocal_id, ''), o.latitude, o.longitude,
			COALESCE(r.surface, ''), COALESCE(r.length_ft, 0), COALESCE(r.width_ft, 0)
		FROM runway_ends r
		LEFT JOIN airports a ON a.icao = r.airport
		LEFT JOIN runway_ends o ON o.airport = r.airport AND o.runway_id = r.reciprocal_id
		WHERE r.airport = $1
		ORDER BY r.id
	`, airport)
	if err != nil {
		return nil, fmt.Errorf("failed to query runway ends: %w", err)
	}
	defer rows.Close()

	var ends []runway.RunwayEnd
	for rows.Next() {
		var e runway.RunwayEnd
		if err := rows.Scan(&e.Airport, &e.ID, &e.Lat, &e.Lon, &e.DisplacedLat, &e.DisplacedLon,
			&e.TrueHeading, &e.TDZE, &e.AirportElevation, &e.ReciprocalID,
			&e.ReciprocalLat, &e.ReciprocalLon, &e.Surface, &e.LengthFt, &e.WidthFt); err != nil {
			return nil, fmt.Errorf("failed to scan runway end: %w", err)
		}
		ends = append(ends, e)
	}
	return ends, rows.Err()
}

// UpsertRunway inserts or replaces one runway end
func (s *Store) UpsertRunway(ctx context.Context, e runway.RunwayEnd) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runway_ends (airport, runway_id, latitude, longitude,
			displaced_latitude, displaced_longitude, true_heading, tdze,
			reciprocal_id, surface, length_ft, width_ft)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (airport, runway_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			displaced_latitude = EXCLUDED.displaced_latitude,
			displaced_longitude = EXCLUDED.displaced_longitude,
			true_heading = EXCLUDED.true_heading,
			tdze = EXCLUDED.tdze,
			reciprocal_id = EXCLUDED.reciprocal_id,
			surface = EXCLUDED.surface,
			length_ft = EXCLUDED.length_ft,
			width_ft = EXCLUDED.width_ft
	`, e.Airport, e.ID, e.Lat, e.Lon, e.DisplacedLat, e.DisplacedLon, e.TrueHeading, e.TDZE,
		nullString(e.ReciprocalID), nullString(e.Surface), e.LengthFt, e.WidthFt)
	if err != nil {
		return fmt.Errorf("failed to upsert runway %s/%s: %w", e.Airport, e.ID, err)
	}
	return nil
}

// UpsertAirport inserts or replaces an airport
func (s *Store) UpsertAirport(ctx context.Context, a storage.Airport) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO airports (icao, name, elevation, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (icao) DO UPDATE SET
			name = EXCLUDED.name,
			elevation = EXCLUDED.elevation,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude
	`, strings.ToUpper(a.ICAO), a.Name, a.Elevation, a.Latitude, a.Longitude)
	if err != nil {
		return fmt.Errorf("failed to upsert airport %s: %w", a.ICAO, err)
	}
	return nil
}

// AirportElevation returns the field elevation, nil when unknown
func (s *Store) AirportElevation(ctx context.Context, icao string) (*float64, error) {
	var elevation *float64
	err := s.pool.QueryRow(ctx, `SELECT elevation FROM airports WHERE icao = $1`, icao).Scan(&elevation)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get airport elevation: %w", err)
	}
	return elevation, nil
}

// AirportCodes lists every known airport
func (s *Store) AirportCodes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT icao FROM airports ORDER BY icao`)
	if err != nil {
		return nil, fmt.Errorf("failed to query airports: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect airports: %w", err)
	}
	return codes, nil
}

// UpsertAircraft maps a registration to its type
func (s *Store) UpsertAircraft(ctx context.Context, a storage.Aircraft) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aircraft (n_number, model) VALUES ($1, $2)
		ON CONFLICT (n_number) DO UPDATE SET model = EXCLUDED.model
	`, a.Registration, a.Model)
	if err != nil {
		return fmt.Errorf("failed to upsert aircraft %s: %w", a.Registration, err)
	}
	return nil
}

// AircraftType returns the registered type for a callsign, "" when unknown
func (s *Store) AircraftType(ctx context.Context, callsign string) (string, error) {
	var model string
	err := s.pool.QueryRow(ctx, `SELECT model FROM aircraft WHERE n_number = $1`, callsign).Scan(&model)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get aircraft type: %w", err)
	}
	return model, nil
}

// UpsertAircraftSpeeds stores reference speeds for a type
func (s *Store) UpsertAircraftSpeeds(ctx context.Context, a storage.AircraftSpeeds) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aircraft_speeds (ac_type, appr_speed, dirty_stall, clean_stall)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ac_type) DO UPDATE SET
			appr_speed = EXCLUDED.appr_speed,
			dirty_stall = EXCLUDED.dirty_stall,
			clean_stall = EXCLUDED.clean_stall
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
		appr, dirty, clean *float64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT ac_type, appr_speed, dirty_stall, clean_stall
		FROM aircraft_speeds WHERE ac_type = $1
	`, acType).Scan(&a.AircraftType, &appr, &dirty, &clean)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aircraft speeds: %w", err)
	}
	if appr == nil || dirty == nil {
		return nil, nil
	}
	a.Approach = *appr
	a.DirtyStall = *dirty
	if clean != nil {
		a.CleanStall = *clean
	}
	return &a, nil
}

// InsertObservation stores a METAR, false when it is already stored
func (s *Store) InsertObservation(ctx context.Context, o weather.Observation) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO metar_observations (airport, observation_time, wind_dir_degrees,
			wind_speed_kt, wind_gust_kt, temp_c, dewpoint_c, altimeter_hpa,
			visibility_miles, flight_category, metar_type, raw_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (airport, observation_time) DO NOTHING
	`, o.Airport, o.ObservedAt, o.WindDirDegrees, o.WindSpeedKt, o.WindGustKt,
		o.TempC, o.DewpointC, o.AltimeterHPa, o.VisibilityMiles,
		nullString(o.FlightCategory), nullString(o.MetarType), nullString(o.Raw))
	if err != nil {
		return false, fmt.Errorf("failed to insert observation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// NearestObservation returns the latest observation at or before at
func (s *Store) NearestObservation(ctx context.Context, airport string, at time.Time) (*weather.Observation, error) {
	var o weather.Observation
	err := s.pool.QueryRow(ctx, `
		SELECT airport, observation_time, wind_dir_degrees, wind_speed_kt, wind_gust_kt,
			temp_c, dewpoint_c, altimeter_hpa, visibility_miles,
			COALESCE(flight_category, ''), COALESCE(metar_type, ''), COALESCE(raw_text, '')
		FROM metar_observations
		WHERE airport = $1 AND observation_time <= $2
		ORDER BY observation_time DESC
		LIMIT 1
	`, airport, at).Scan(&o.Airport, &o.ObservedAt, &o.WindDirDegrees, &o.WindSpeedKt, &o.WindGustKt,
		&o.TempC, &o.DewpointC, &o.AltimeterHPa, &o.VisibilityMiles,
		&o.FlightCategory, &o.MetarType, &o.Raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}
	o.ObservedAt = o.ObservedAt.UTC()
	return &o, nil
}

// ScoringOverrides returns every stored scoring threshold override
func (s *Store) ScoringOverrides(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM scoring_config`)
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scoring_config (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set scoring override %s: %w", key, err)
	}
	return nil
}
