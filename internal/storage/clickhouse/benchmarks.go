package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/yegors/glidepath/internal/scoring"
)

// GroupBy selects the dimension benchmarks are aggregated over
type GroupBy string

const (
	ByAircraftType GroupBy = "ac_type"
	ByAirport      GroupBy = "airport"
	ByCallsign     GroupBy = "callsign"
)

var groupColumns = map[GroupBy]string{
	ByAircraftType: "ac_type",
	ByAirport:      "arr_airport",
	ByCallsign:     "callsign",
}

// ParseGroupBy validates a grouping name
func ParseGroupBy(s string) (GroupBy, error) {
	g := GroupBy(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := groupColumns[g]; !ok {
		return "", fmt.Errorf("unknown benchmark grouping %q (want ac_type, airport or callsign)", s)
	}
	return g, nil
}

// Benchmark is the aggregate of every score sharing one group value
type Benchmark struct {
	Group       GroupBy            `json:"group"`
	Key         string             `json:"key"`
	FlightCount uint64             `json:"flight_count"`
	AvgPercent  float64            `json:"avg_percentage"`
	MinPercent  int32              `json:"min_percentage"`
	MaxPercent  int32              `json:"max_percentage"`
	Grades      map[string]uint64  `json:"grades"`
	Categories  map[string]float64 `json:"avg_category_scores"`
}

// benchmarkQuery builds the aggregate query for a grouping
func benchmarkQuery(g GroupBy) (string, error) {
	col, ok := groupColumns[g]
	if !ok {
		return "", fmt.Errorf("unknown benchmark grouping %q", g)
	}
	return fmt.Sprintf(`
		SELECT %[1]s,
			count(),
			avg(percentage), min(percentage), max(percentage),
			countIf(grade = 'A'), countIf(grade = 'B'), countIf(grade = 'C'),
			countIf(grade = 'D'), countIf(grade = 'F'),
			avg(descent_score), avg(stabilized_score), avg(centerline_score),
			avg(turn_to_final_score), avg(speed_control_score), avg(threshold_score)
		FROM approach_scores FINAL
		WHERE %[1]s != ''
		GROUP BY %[1]s
		HAVING count() >= ?
		ORDER BY count() DESC, %[1]s ASC
		LIMIT ?`, col), nil
}

// Benchmarks aggregates scores per group value. Groups with fewer than
// minFlights scores are left out.
func (m *Mirror) Benchmarks(ctx context.Context, g GroupBy, minFlights, limit int) ([]Benchmark, error) {
	query, err := benchmarkQuery(g)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := m.conn.Query(ctx, query, uint64(max(minFlights, 1)), uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmarks: %w", err)
	}
	defer rows.Close()

	var out []Benchmark
	for rows.Next() {
		b := Benchmark{Group: g}
		var (
			a, bb, c, d, f     uint64
			desc, stab, center float64
			turn, speed, thr   float64
		)
		if err := rows.Scan(&b.Key, &b.FlightCount, &b.AvgPercent, &b.MinPercent, &b.MaxPercent,
			&a, &bb, &c, &d, &f, &desc, &stab, &center, &turn, &speed, &thr); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark: %w", err)
		}
		b.Grades = map[string]uint64{"A": a, "B": bb, "C": c, "D": d, "F": f}
		b.Categories = map[string]float64{
			scoring.Descent.String():           desc,
			scoring.Stabilized.String():        stab,
			scoring.Centerline.String():        center,
			scoring.TurnToFinal.String():       turn,
			scoring.SpeedControl.String():      speed,
			scoring.ThresholdCrossing.String(): thr,
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating benchmarks: %w", err)
	}
	return out, nil
}
