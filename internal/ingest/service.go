// Package ingest runs the polling loop that moves raw feed records from the
// buffer file into storage.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/glidepath/internal/extractor"
	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/pkg/logger"
)

// Config represents the ingestion loop configuration
type Config struct {
	BufferPath               string   `toml:"buffer_path"`
	StatePath                string   `toml:"state_path"`
	Format                   string   `toml:"format"` // fdps or stdds
	PollIntervalSeconds      int      `toml:"poll_interval_seconds"`
	MaxBatchSize             int      `toml:"max_batch_size"`
	ReconnectIntervalSeconds int      `toml:"reconnect_interval_seconds"`
	Facilities               []string `toml:"facilities"` // empty allows every facility
	GAOnly                   bool     `toml:"ga_only"`
}

// DefaultConfig returns the default ingestion configuration
func DefaultConfig() Config {
	return Config{
		BufferPath:               "data/raw_feed.xml",
		StatePath:                "data/ingest_state.json",
		Format:                   string(extractor.FormatFDPS),
		PollIntervalSeconds:      10,
		MaxBatchSize:             500,
		ReconnectIntervalSeconds: 30,
	}
}

// Validate validates the ingestion configuration
func (c Config) Validate() error {
	if c.BufferPath == "" {
		return fmt.Errorf("buffer_path cannot be empty")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path cannot be empty")
	}
	if _, err := extractor.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be greater than 0")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be greater than 0")
	}
	if c.ReconnectIntervalSeconds <= 0 {
		return fmt.Errorf("reconnect_interval_seconds must be greater than 0")
	}
	return nil
}

// Filter returns the extractor filter for this configuration
func (c Config) Filter() extractor.Filter {
	return extractor.Filter{Facilities: c.Facilities, GAOnly: c.GAOnly}
}

// Sink persists extracted reports. Rows that already exist are reported as
// skipped, not as errors.
type Sink interface {
	InsertPoints(ctx context.Context, points []track.RawPoint) (inserted, skipped int, err error)
}

// CycleResult summarizes one pass of the loop
type CycleResult struct {
	Enabled   bool          `json:"enabled"`
	Blocks    int           `json:"blocks"`
	Points    int           `json:"points"`
	Failed    int           `json:"failed"`
	Filtered  int           `json:"filtered"`
	Inserted  int           `json:"inserted"`
	Skipped   int           `json:"skipped"`
	Discarded int           `json:"discarded_bytes"`
	Duration  time.Duration `json:"duration"`
}

// Service is the single worker that owns the buffer checkpoint
type Service struct {
	config    Config
	buffer    *Buffer
	state     *StateFile
	extractor *extractor.Extractor
	sink      Sink
	logger    *logger.Logger

	listeners []func(CycleResult)

	// Service lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewService creates a new ingestion service
func NewService(config Config, buffer *Buffer, state *StateFile, ex *extractor.Extractor, sink Sink, log *logger.Logger) *Service {
	return &Service{
		config:    config,
		buffer:    buffer,
		state:     state,
		extractor: ex,
		sink:      sink,
		logger:    log.Named("ingest"),
	}
}

// OnCycle registers fn to be called after every cycle that did work
func (s *Service) OnCycle(fn func(CycleResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start begins polling the buffer
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info("Starting ingestion service",
		logger.String("buffer", s.buffer.Path()),
		logger.Int("poll_interval_seconds", s.config.PollIntervalSeconds),
		logger.Int("max_batch_size", s.config.MaxBatchSize))

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()

	s.started = true
	return nil
}

// Stop finishes the current cycle and stops the loop
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.logger.Info("Stopping ingestion service")
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	if _, err := s.state.Update(func(st *State) {
		st.ParserRunning = false
		st.Phase = PhaseIdle
	}); err != nil {
		s.logger.Warn("Failed to record stop in state file", logger.Error(err))
	}
	s.logger.Info("Ingestion service stopped")
	return nil
}

// Enable turns the collector on
func (s *Service) Enable() (State, error) {
	return s.state.Update(func(st *State) {
		st.CollectorEnabled = true
		st.Error = ""
	})
}

// Disable asks the loop to wind down. It moves to idle on its next cycle.
func (s *Service) Disable() (State, error) {
	return s.state.Update(func(st *State) {
		st.CollectorEnabled = false
		if st.Phase == PhaseRunning {
			st.Phase = PhaseStopping
		}
	})
}

// State returns the persisted control state
func (s *Service) State() (State, error) {
	return s.state.Load()
}

func (s *Service) run() {
	poll := time.Duration(s.config.PollIntervalSeconds) * time.Second
	reconnect := time.Duration(s.config.ReconnectIntervalSeconds) * time.Second

	for {
		wait := poll
		if _, err := s.RunCycle(s.ctx); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Ingestion cycle failed, pausing",
				logger.Error(err),
				logger.Duration("retry_in", reconnect))
			wait = reconnect
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunCycle performs one read-extract-upload-discard pass. On a storage
// error the buffer is left untouched and the error is recorded in the state.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()

	st, err := s.state.Load()
	if err != nil {
		s.logger.Warn("State file unreadable, using defaults", logger.Error(err))
	}

	if !st.CollectorEnabled {
		if st.Phase != PhaseIdle || st.ParserRunning {
			s.setState(func(st *State) {
				st.Phase = PhaseIdle
				st.ParserRunning = false
			})
			s.logger.Info("Ingestion disabled via state file")
		}
		return CycleResult{}, nil
	}

	if st.Phase != PhaseRunning || !st.ParserRunning || st.Error != "" {
		s.setState(func(st *State) {
			st.Phase = PhaseRunning
			st.ParserRunning = true
			st.Error = ""
		})
	}

	res := CycleResult{Enabled: true}

	data, err := s.buffer.Read()
	if err != nil {
		return res, s.fail(err)
	}
	if len(data) == 0 {
		return res, nil
	}

	ext := s.extractor.Extract(data)
	res.Blocks = ext.Blocks
	res.Points = len(ext.Points)
	res.Failed = ext.Failed
	res.Filtered = ext.Filtered

	for i := 0; i < len(ext.Points); i += s.config.MaxBatchSize {
		end := min(i+s.config.MaxBatchSize, len(ext.Points))
		inserted, skipped, err := s.sink.InsertPoints(ctx, ext.Points[i:end])
		if err != nil {
			return res, s.fail(fmt.Errorf("failed to upload batch: %w", err))
		}
		res.Inserted += inserted
		res.Skipped += skipped
	}

	// Checkpoint only once something reached storage
	if res.Inserted > 0 {
		if err := s.buffer.Discard(ext.Consumed); err != nil {
			return res, s.fail(fmt.Errorf("failed to discard processed bytes: %w", err))
		}
		res.Discarded = ext.Consumed

		now := time.Now().UTC()
		s.setState(func(st *State) {
			st.TotalRowsUploaded += int64(res.Inserted)
			st.LastUploadCount = res.Inserted
			st.LastUploadTime = &now
		})
	}
	res.Duration = time.Since(start)

	if res.Blocks > 0 {
		s.logger.Info("Ingestion cycle completed",
			logger.Int("blocks", res.Blocks),
			logger.Int("points", res.Points),
			logger.Int("failed", res.Failed),
			logger.Int("inserted", res.Inserted),
			logger.Int("skipped", res.Skipped),
			logger.Int("discarded_bytes", res.Discarded),
			logger.Duration("duration", res.Duration))
		s.notify(res)
	}
	return res, nil
}

func (s *Service) fail(err error) error {
	s.setState(func(st *State) {
		st.Error = err.Error()
		st.ParserRunning = false
	})
	return err
}

func (s *Service) setState(fn func(*State)) {
	if _, err := s.state.Update(fn); err != nil {
		s.logger.Error("Failed to save state file", logger.Error(err))
	}
}

func (s *Service) notify(res CycleResult) {
	s.mu.Lock()
	listeners := append([]func(CycleResult){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(res)
	}
}
