// Package sqlite is the default relational store, backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yegors/glidepath/pkg/logger"
)

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store is a SQLite-based store for tracks, reference data and scores
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (or creates) the database at dbPath and applies the schema
func Open(dbPath string, log *logger.Logger) (*Store, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA synchronous=NORMAL", "synchronous mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
		{"PRAGMA cache_size=10000", "cache size"},
		{"PRAGMA foreign_keys=ON", "foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.what, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	tables := []struct{ name, ddl string }{
		{"flights", `
			CREATE TABLE IF NOT EXISTS flights (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				flight_id TEXT NOT NULL,
				callsign TEXT NOT NULL,
				source TEXT,
				position_time TEXT NOT NULL,
				message_time TEXT,
				latitude REAL,
				longitude REAL,
				altitude REAL,
				speed REAL,
				track REAL,
				vertical_speed INTEGER,
				assigned_altitude INTEGER,
				assigned_altitude_type TEXT,
				status TEXT,
				operator TEXT,
				center TEXT,
				controlling_unit TEXT,
				controlling_sector TEXT,
				computer_id TEXT,
				flight_plan_id TEXT,
				mode_s TEXT,
				ac_type TEXT,
				departure TEXT,
				arrival TEXT,
				departure_actual_time TEXT,
				arrival_estimated_time TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (flight_id, position_time)
			)`},
		{"airports", `
			CREATE TABLE IF NOT EXISTS airports (
				icao TEXT PRIMARY KEY,
				name TEXT,
				elevation REAL,
				latitude REAL,
				longitude REAL
			)`},
		{"runway_ends", `
			CREATE TABLE IF NOT EXISTS runway_ends (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				airport TEXT NOT NULL,
				runway_id TEXT NOT NULL,
				latitude REAL,
				longitude REAL,
				displaced_latitude REAL,
				displaced_longitude REAL,
				true_heading REAL,
				tdze REAL,
				reciprocal_id TEXT,
				surface TEXT,
				length_ft INTEGER,
				width_ft INTEGER,
				UNIQUE (airport, runway_id)
			)`},
		{"aircraft", `
			CREATE TABLE IF NOT EXISTS aircraft (
				n_number TEXT PRIMARY KEY,
				model TEXT NOT NULL
			)`},
		{"aircraft_speeds", `
			CREATE TABLE IF NOT EXISTS aircraft_speeds (
				ac_type TEXT PRIMARY KEY,
				appr_speed REAL,
				dirty_stall REAL,
				clean_stall REAL
			)`},
		{"metar_observations", `
			CREATE TABLE IF NOT EXISTS metar_observations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				airport TEXT NOT NULL,
				observation_time TEXT NOT NULL,
				wind_dir_degrees INTEGER,
				wind_speed_kt INTEGER,
				wind_gust_kt INTEGER,
				temp_c REAL,
				dewpoint_c REAL,
				altimeter_hpa REAL,
				visibility_miles REAL,
				flight_category TEXT,
				metar_type TEXT,
				raw_text TEXT,
				fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (airport, observation_time)
			)`},
		{"scoring_config", `
			CREATE TABLE IF NOT EXISTS scoring_config (
				key TEXT PRIMARY KEY,
				value REAL NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`},
		{"approach_scores", `
			CREATE TABLE IF NOT EXISTS approach_scores (
				score_key TEXT PRIMARY KEY,
				flight_id TEXT NOT NULL,
				leg INTEGER NOT NULL,
				leg_type TEXT,
				callsign TEXT,
				ac_type TEXT,
				arr_airport TEXT,
				runway_id TEXT,
				runway_heading_mag REAL,
				flight_date TEXT,
				total_score INTEGER,
				max_score INTEGER,
				percentage INTEGER,
				grade TEXT,
				descent_score INTEGER,
				stabilized_score INTEGER,
				centerline_score INTEGER,
				turn_to_final_score INTEGER,
				speed_control_score INTEGER,
				threshold_score INTEGER,
				severe_penalty_count INTEGER,
				wind_dir INTEGER,
				wind_speed_kt INTEGER,
				wind_gust_kt INTEGER,
				crosswind_kt INTEGER,
				score_details_json TEXT NOT NULL,
				scored_at TEXT NOT NULL
			)`},
		{"scoring_attempts", `
			CREATE TABLE IF NOT EXISTS scoring_attempts (
				attempt_key TEXT PRIMARY KEY,
				flight_id TEXT NOT NULL,
				callsign TEXT,
				ac_type TEXT,
				arr_airport TEXT,
				flight_date TEXT,
				success INTEGER NOT NULL,
				score_percentage INTEGER,
				score_grade TEXT,
				failure_reason TEXT,
				min_altitude REAL,
				max_altitude REAL,
				track_points INTEGER,
				leg_type TEXT,
				attempted_at TEXT NOT NULL
			)`},
	}
	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_flights_flight_time ON flights(flight_id, position_time)",
		"CREATE INDEX IF NOT EXISTS idx_flights_position_time ON flights(position_time)",
		"CREATE INDEX IF NOT EXISTS idx_flights_callsign ON flights(callsign)",
		"CREATE INDEX IF NOT EXISTS idx_metar_airport_time ON metar_observations(airport, observation_time)",
		"CREATE INDEX IF NOT EXISTS idx_scores_flight ON approach_scores(flight_id)",
		"CREATE INDEX IF NOT EXISTS idx_scores_airport ON approach_scores(arr_airport)",
		"CREATE INDEX IF NOT EXISTS idx_attempts_flight ON scoring_attempts(flight_id)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	log.Info("Database schema initialized successfully")
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
