// Package clickhouse mirrors approach scores into ClickHouse and serves the
// benchmark aggregates computed over them.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/pkg/logger"
)

// Config holds ClickHouse connection settings
type Config struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// Mirror wraps a ClickHouse connection holding a copy of the scores
type Mirror struct {
	conn   driver.Conn
	logger *logger.Logger
}

// Open connects to ClickHouse and creates the schema
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Mirror, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	m := &Mirror{conn: conn, logger: log.Named("clickhouse")}
	if err := m.CreateSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the connection
func (m *Mirror) Close() error {
	return m.conn.Close()
}

// CreateSchema creates the score table. Rescoring a key replaces the older
// row on merge; reads use FINAL.
func (m *Mirror) CreateSchema(ctx context.Context) error {
	err := m.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS approach_scores (
		score_key            String,
		flight_id            String,
		leg                  UInt8,
		leg_type             LowCardinality(String),
		callsign             String,
		ac_type              LowCardinality(String),
		arr_airport          LowCardinality(String),
		runway_id            LowCardinality(String),
		flight_date          DateTime64(3),
		total_score          Int32,
		max_score            Int32,
		percentage           Int32,
		grade                LowCardinality(String),
		descent_score        Int32,
		stabilized_score     Int32,
		centerline_score     Int32,
		turn_to_final_score  Int32,
		speed_control_score  Int32,
		threshold_score      Int32,
		severe_penalty_count UInt8,
		crosswind_kt         Int32,
		score_details_json   String,
		scored_at            DateTime64(3)
	)
	ENGINE = ReplacingMergeTree(scored_at)
	PARTITION BY toYYYYMM(flight_date)
	ORDER BY (score_key)`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WriteScore mirrors one score
func (m *Mirror) WriteScore(ctx context.Context, rec storage.ScoreRecord) error {
	return m.WriteScores(ctx, []storage.ScoreRecord{rec})
}

// WriteScores mirrors a batch of scores
func (m *Mirror) WriteScores(ctx context.Context, records []storage.ScoreRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO approach_scores (score_key, flight_id, leg, leg_type, callsign, ac_type,
			arr_airport, runway_id, flight_date, total_score, max_score, percentage, grade,
			descent_score, stabilized_score, centerline_score, turn_to_final_score,
			speed_control_score, threshold_score, severe_penalty_count, crosswind_kt,
			score_details_json, scored_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, rec := range records {
		if rec.Score == nil {
			continue
		}
		details, err := json.Marshal(rec.Score)
		if err != nil {
			return fmt.Errorf("failed to marshal score details: %w", err)
		}
		sc := rec.Score
		err = batch.Append(rec.Key, rec.FlightID, uint8(rec.Leg), rec.LegType, rec.Callsign, rec.AircraftType,
			rec.Airport, rec.Runway, rec.FlightDate, int32(sc.Total), int32(sc.MaxTotal), int32(sc.Percentage), sc.Grade,
			int32(rec.CategoryScore(scoring.Descent)), int32(rec.CategoryScore(scoring.Stabilized)),
			int32(rec.CategoryScore(scoring.Centerline)), int32(rec.CategoryScore(scoring.TurnToFinal)),
			int32(rec.CategoryScore(scoring.SpeedControl)), int32(rec.CategoryScore(scoring.ThresholdCrossing)),
			uint8(len(sc.SeverePenalties)), int32(sc.Wind.Crosswind),
			string(details), rec.ScoredAt)
		if err != nil {
			return fmt.Errorf("failed to append score %s: %w", rec.Key, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	m.logger.Debug("Mirrored scores", logger.Int("count", len(records)))
	return nil
}
