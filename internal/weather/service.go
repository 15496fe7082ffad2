package weather

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yegors/glidepath/pkg/logger"
)

// Store persists observations and lists the airports to poll
type Store interface {
	AirportCodes(ctx context.Context) ([]string, error)
	InsertObservation(ctx context.Context, obs Observation) (bool, error)
}

// Stats describes the collector's progress
type Stats struct {
	Running           bool      `json:"running"`
	AirportsCount     int       `json:"airports_count"`
	TotalFetches      int       `json:"total_fetches"`
	TotalObservations int       `json:"total_observations"`
	LastFetchTime     time.Time `json:"last_fetch_time"`
	LastFetchSuccess  bool      `json:"last_fetch_success"`
	LastInserted      int       `json:"last_inserted"`
	LastDuplicates    int       `json:"last_duplicates"`
	LastError         string    `json:"last_error,omitempty"`
}

// Fetcher retrieves METARs for a set of airports
type Fetcher interface {
	FetchMETARs(ctx context.Context, ids []string) ([]Observation, error)
}

// Service polls METARs for the configured airports and stores them
type Service struct {
	config  Config
	fetcher Fetcher
	store   Store
	cache   *Cache
	logger  *logger.Logger

	// Service lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex

	stats Stats
}

// NewService creates a new weather service
func NewService(config Config, store Store, log *logger.Logger) *Service {
	return NewServiceWithFetcher(config, NewClient(config, log), store, log)
}

// NewServiceWithFetcher creates a weather service with a custom fetcher
func NewServiceWithFetcher(config Config, fetcher Fetcher, store Store, log *logger.Logger) *Service {
	return &Service{
		config:  config,
		fetcher: fetcher,
		store:   store,
		cache:   NewCache(),
		logger:  log.Named("weather-service"),
	}
}

// Start begins the weather service background operations
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info("Starting weather service",
		logger.Int("refresh_interval_minutes", s.config.RefreshIntervalMinutes),
		logger.Int("configured_airports", len(s.config.Airports)))

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stats.Running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.backgroundRefresh()
	}()

	s.started = true
	return nil
}

// Stop gracefully shuts down the weather service
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.logger.Info("Stopping weather service")
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.started = false
	s.stats.Running = false
	s.mu.Unlock()
	s.logger.Info("Weather service stopped")
	return nil
}

// Stats returns a snapshot of the collector's progress
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Latest returns the most recent cached observation for an airport
func (s *Service) Latest(airport string) (Observation, bool) {
	return s.cache.Get(airport)
}

// backgroundRefresh fetches once immediately and then on every tick
func (s *Service) backgroundRefresh() {
	refreshInterval := time.Duration(s.config.RefreshIntervalMinutes) * time.Minute
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	s.logger.Info("Background weather refresh started",
		logger.String("interval", refreshInterval.String()))

	s.RunCycle(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Background weather refresh stopped")
			return
		case <-ticker.C:
			s.RunCycle(s.ctx)
		}
	}
}

// RunCycle fetches and stores one round of observations
func (s *Service) RunCycle(ctx context.Context) {
	start := time.Now()
	inserted, duplicates, airports, err := s.fetchAndStore(ctx)

	s.mu.Lock()
	s.stats.TotalFetches++
	s.stats.LastFetchTime = time.Now().UTC()
	s.stats.LastFetchSuccess = err == nil
	s.stats.AirportsCount = airports
	s.stats.LastInserted = inserted
	s.stats.LastDuplicates = duplicates
	s.stats.TotalObservations += inserted
	s.stats.LastError = ""
	if err != nil {
		s.stats.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Weather fetch cycle failed", logger.Error(err))
		return
	}
	s.logger.Info("Weather fetch cycle completed",
		logger.Int("airports", airports),
		logger.Int("inserted", inserted),
		logger.Int("duplicates", duplicates),
		logger.Duration("duration", time.Since(start)))
}

func (s *Service) fetchAndStore(ctx context.Context) (inserted, duplicates, airports int, err error) {
	ids := s.config.Airports
	if len(ids) == 0 {
		ids, err = s.store.AirportCodes(ctx)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("failed to list airports: %w", err)
		}
	}
	if len(ids) == 0 {
		return 0, 0, 0, fmt.Errorf("no airports configured")
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[strings.ToUpper(id)] = struct{}{}
	}

	batch := s.config.BatchSize
	if batch <= 0 {
		batch = len(ids)
	}

	var received int
	for i := 0; i < len(ids); i += batch {
		end := min(i+batch, len(ids))
		observations, err := s.fetcher.FetchMETARs(ctx, ids[i:end])
		if err != nil {
			return inserted, duplicates, len(ids), fmt.Errorf("failed to fetch METARs: %w", err)
		}
		received += len(observations)
		s.cache.Update(observations)

		for _, obs := range observations {
			if _, ok := wanted[obs.Airport]; !ok {
				continue
			}
			ok, err := s.store.InsertObservation(ctx, obs)
			if err != nil {
				return inserted, duplicates, len(ids), fmt.Errorf("failed to store observation for %s: %w", obs.Airport, err)
			}
			if ok {
				inserted++
			} else {
				duplicates++
			}
		}
	}
	if received == 0 {
		return 0, 0, len(ids), fmt.Errorf("no METAR data returned from API")
	}
	return inserted, duplicates, len(ids), nil
}
