package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/glidepath/internal/batch"
	"github.com/yegors/glidepath/internal/ingest"
	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/storage"
	"github.com/yegors/glidepath/internal/storage/clickhouse"
	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/internal/websocket"
	"github.com/yegors/glidepath/pkg/logger"
)

// Store is the read side of the relational store
type Store interface {
	Ping(ctx context.Context) error
	ListFlights(ctx context.Context, from, to time.Time, limit int) ([]storage.FlightSummary, error)
	FlightPoints(ctx context.Context, flightID string) ([]track.RawPoint, error)
	ListScores(ctx context.Context, filter storage.ScoreFilter) ([]storage.ScoreRecord, error)
	GetScore(ctx context.Context, key string) (storage.ScoreRecord, error)
	GradeSummary(ctx context.Context) (storage.GradeSummary, error)
	ListAttempts(ctx context.Context, filter storage.AttemptFilter) ([]storage.Attempt, error)
}

// IngestControl reads and flips the collector state
type IngestControl interface {
	State() (ingest.State, error)
	Enable() (ingest.State, error)
	Disable() (ingest.State, error)
}

// BenchmarkSource aggregates scores per group
type BenchmarkSource interface {
	Benchmarks(ctx context.Context, g clickhouse.GroupBy, minFlights, limit int) ([]clickhouse.Benchmark, error)
}

// FlightScorer scores a single flight on demand
type FlightScorer interface {
	ScoreFlight(ctx context.Context, flightID string) batch.Outcome
}

// Handler contains the API handlers
type Handler struct {
	store         Store
	ingest        IngestControl
	benchmarks    BenchmarkSource // nil when no analytics mirror is configured
	scorer        FlightScorer
	scoringConfig scoring.Config
	configLoader  batch.ConfigLoader
	wsServer      *websocket.Server
	logger        *logger.Logger
	started       time.Time
}

// NewHandler creates a new API handler. ingest and benchmarks may be nil.
func NewHandler(store Store, ingest IngestControl, benchmarks BenchmarkSource, scoringConfig scoring.Config, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		store:         store,
		ingest:        ingest,
		benchmarks:    benchmarks,
		scoringConfig: scoringConfig,
		wsServer:      wsServer,
		logger:        log.Named("api-handler"),
		started:       time.Now().UTC(),
	}
}

// SetScorer enables on-demand scoring
func (h *Handler) SetScorer(scorer FlightScorer) {
	h.scorer = scorer
}

// SetConfigLoader makes the scoring schema follow stored overrides
func (h *Handler) SetConfigLoader(loader batch.ConfigLoader) {
	h.configLoader = loader
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	dbStatus := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Health check failed", logger.Error(err))
		status, code, dbStatus = "degraded", http.StatusServiceUnavailable, err.Error()
	}

	response := map[string]any{
		"status":     status,
		"database":   dbStatus,
		"started_at": h.started,
		"uptime":     time.Since(h.started).Round(time.Second).String(),
	}
	if h.wsServer != nil {
		response["websocket_clients"] = h.wsServer.ClientCount()
	}
	if h.ingest != nil {
		if st, err := h.ingest.State(); err == nil {
			response["ingest"] = st
		}
	}

	WriteJSON(w, code, response)
}

// GetFlights lists the flights seen on one UTC day (?date=YYYY-MM-DD, today by default)
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			http.Error(w, "Invalid date format (use YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		day = d
	}
	limit, _ := parsePaginationParams(r)

	flights, err := h.store.ListFlights(r.Context(), day, day.AddDate(0, 0, 1), limit)
	if err != nil {
		h.logger.Error("Failed to list flights", logger.Error(err))
		http.Error(w, "Failed to retrieve flights", http.StatusInternalServerError)
		return
	}
	if flights == nil {
		flights = []storage.FlightSummary{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"date":    day.Format(time.DateOnly),
		"count":   len(flights),
		"flights": flights,
	})
}

// GetFlightTrack returns a flight's reports with derived kinematics
func (h *Handler) GetFlightTrack(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if id == "" {
		http.Error(w, "Missing flight ID", http.StatusBadRequest)
		return
	}

	points, err := h.store.FlightPoints(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to retrieve track", logger.String("flight_id", id), logger.Error(err))
		http.Error(w, "Failed to retrieve track", http.StatusInternalServerError)
		return
	}
	if len(points) == 0 {
		http.Error(w, "Flight not found", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"flight_id": id,
		"count":     len(points),
		"points":    track.Derive(points),
	})
}

// ScoreFlight scores one flight now and publishes every new score
func (h *Handler) ScoreFlight(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil {
		http.Error(w, "Scoring is not enabled", http.StatusNotImplemented)
		return
	}
	id := urlParam(r, "id")
	if id == "" {
		http.Error(w, "Missing flight ID", http.StatusBadRequest)
		return
	}

	out := h.scorer.ScoreFlight(r.Context(), id)
	switch {
	case out.Err != nil:
		h.logger.Error("Failed to score flight", logger.String("flight_id", id), logger.Error(out.Err))
		http.Error(w, "Failed to score flight", http.StatusInternalServerError)
		return
	case out.Reason == batch.ReasonNotFound:
		http.Error(w, "Flight not found", http.StatusNotFound)
		return
	}

	if h.wsServer != nil {
		for _, rec := range out.Scores {
			h.wsServer.Publish(websocket.MessageTypeScoreAdded, "score", rec)
		}
	}

	WriteJSON(w, http.StatusOK, out)
}

// GetScores lists stored scores
func (h *Handler) GetScores(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseSince(q.Get("since"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, offset := parsePaginationParams(r)

	scores, err := h.store.ListScores(r.Context(), storage.ScoreFilter{
		Airport:  q.Get("airport"),
		Callsign: q.Get("callsign"),
		Grade:    q.Get("grade"),
		Since:    since,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.Error("Failed to list scores", logger.Error(err))
		http.Error(w, "Failed to retrieve scores", http.StatusInternalServerError)
		return
	}
	if scores == nil {
		scores = []storage.ScoreRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"count":  len(scores),
		"limit":  limit,
		"offset": offset,
		"scores": scores,
	})
}

// GetScore returns one score by key; leg keys look like FLIGHT#leg2
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	key := urlParam(r, "key")
	if key == "" {
		http.Error(w, "Missing score key", http.StatusBadRequest)
		return
	}

	rec, err := h.store.GetScore(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Score not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to retrieve score", logger.String("key", key), logger.Error(err))
		http.Error(w, "Failed to retrieve score", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

// GetScoreSummary returns the grade distribution
func (h *Handler) GetScoreSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.GradeSummary(r.Context())
	if err != nil {
		h.logger.Error("Failed to summarize scores", logger.Error(err))
		http.Error(w, "Failed to summarize scores", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// GetAttempts lists scoring attempts (?success=true|false&since=&limit=)
func (h *Handler) GetAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.AttemptFilter{}

	if s := q.Get("success"); s != "" {
		ok, err := strconv.ParseBool(s)
		if err != nil {
			http.Error(w, "Invalid success value", http.StatusBadRequest)
			return
		}
		filter.Success = &ok
	}
	since, err := parseSince(q.Get("since"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter.Since = since
	filter.Limit, _ = parsePaginationParams(r)

	attempts, err := h.store.ListAttempts(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list attempts", logger.Error(err))
		http.Error(w, "Failed to retrieve attempts", http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []storage.Attempt{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"count":    len(attempts),
		"attempts": attempts,
	})
}

// GetScoringSchema describes the categories and penalties under the active config
func (h *Handler) GetScoringSchema(w http.ResponseWriter, r *http.Request) {
	cfg := h.scoringConfig
	if h.configLoader != nil {
		var err error
		if cfg, err = h.configLoader(r.Context()); err != nil {
			h.logger.Error("Failed to load scoring config", logger.Error(err))
			http.Error(w, "Failed to load scoring config", http.StatusInternalServerError)
			return
		}
	}
	WriteJSON(w, http.StatusOK, scoring.Schema(cfg))
}

// GetIngestState returns the collector state file
func (h *Handler) GetIngestState(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		http.Error(w, "Ingestion is not running in this process", http.StatusNotFound)
		return
	}
	st, err := h.ingest.State()
	if err != nil {
		h.logger.Warn("State file unreadable", logger.Error(err))
	}
	WriteJSON(w, http.StatusOK, st)
}

// EnableIngest turns the collector on
func (h *Handler) EnableIngest(w http.ResponseWriter, r *http.Request) {
	h.setIngest(w, true)
}

// DisableIngest turns the collector off
func (h *Handler) DisableIngest(w http.ResponseWriter, r *http.Request) {
	h.setIngest(w, false)
}

func (h *Handler) setIngest(w http.ResponseWriter, enabled bool) {
	if h.ingest == nil {
		http.Error(w, "Ingestion is not running in this process", http.StatusNotFound)
		return
	}

	var (
		st  ingest.State
		err error
	)
	if enabled {
		st, err = h.ingest.Enable()
	} else {
		st, err = h.ingest.Disable()
	}
	if err != nil {
		h.logger.Error("Failed to update ingest state", logger.Bool("enabled", enabled), logger.Error(err))
		http.Error(w, "Failed to update ingest state", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Collector state changed via API", logger.Bool("enabled", enabled))
	if h.wsServer != nil {
		h.wsServer.Publish(websocket.MessageTypeIngestState, "state", st)
	}
	WriteJSON(w, http.StatusOK, st)
}

// GetBenchmarks returns grouped score aggregates (?group=ac_type|airport|callsign&min_flights=&limit=)
func (h *Handler) GetBenchmarks(w http.ResponseWriter, r *http.Request) {
	if h.benchmarks == nil {
		http.Error(w, "Benchmarks require the analytics mirror", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	group := q.Get("group")
	if group == "" {
		group = string(clickhouse.ByAircraftType)
	}
	g, err := clickhouse.ParseGroupBy(group)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	minFlights := 1
	if s := q.Get("min_flights"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			minFlights = n
		}
	}
	limit, _ := parsePaginationParams(r)

	benchmarks, err := h.benchmarks.Benchmarks(r.Context(), g, minFlights, limit)
	if err != nil {
		h.logger.Error("Failed to compute benchmarks", logger.Error(err))
		http.Error(w, "Failed to compute benchmarks", http.StatusInternalServerError)
		return
	}
	if benchmarks == nil {
		benchmarks = []clickhouse.Benchmark{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"group":      g,
		"count":      len(benchmarks),
		"benchmarks": benchmarks,
	})
}

// HandleWebSocket handles WebSocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// urlParam returns a decoded route parameter. Score keys carry a '#' that
// clients must send as %23.
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(raw)
}

func parsePaginationParams(r *http.Request) (int, int) {
	limit := 100 // Default limit
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 5000)
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

// parseSince accepts a date or an RFC3339 timestamp
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("invalid since format (use YYYY-MM-DD or RFC3339)")
	}
	return t.UTC(), nil
}
