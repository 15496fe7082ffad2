// Package feed receives the raw SWIM feed from a NATS bridge and appends it
// to the ingestion buffer.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yegors/glidepath/internal/ingest"
	"github.com/yegors/glidepath/pkg/logger"
)

// Config represents the feed subscriber configuration
type Config struct {
	Enabled              bool   `toml:"enabled"`
	URL                  string `toml:"url"`
	Subject              string `toml:"subject"`
	QueueGroup           string `toml:"queue_group"`
	ClientName           string `toml:"client_name"`
	ReconnectWaitSeconds int    `toml:"reconnect_wait_seconds"`
	StateCheckSeconds    int    `toml:"state_check_seconds"`
}

// DefaultConfig returns the default feed configuration
func DefaultConfig() Config {
	return Config{
		URL:                  nats.DefaultURL,
		Subject:              "swim.fdps",
		ClientName:           "glidepath-collector",
		ReconnectWaitSeconds: 5,
		StateCheckSeconds:    5,
	}
}

// Validate validates the feed configuration
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("feed url cannot be empty")
	}
	if c.Subject == "" {
		return fmt.Errorf("feed subject cannot be empty")
	}
	if c.ReconnectWaitSeconds <= 0 {
		return fmt.Errorf("reconnect_wait_seconds must be greater than 0")
	}
	if c.StateCheckSeconds <= 0 {
		return fmt.Errorf("state_check_seconds must be greater than 0")
	}
	return nil
}

// noiseMarkers identify bridge log lines interleaved with the feed
var noiseMarkers = [][]byte{[]byte("INFO:"), []byte("type=METER")}

// Clean drops noise lines from a payload and makes sure the result ends with
// a newline. It returns nil when nothing is left.
func Clean(payload []byte) []byte {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	var out bytes.Buffer
	out.Grow(len(payload) + 1)
	for line := range bytes.Lines(payload) {
		if isNoise(line) {
			continue
		}
		out.Write(line)
	}
	if out.Len() == 0 || len(bytes.TrimSpace(out.Bytes())) == 0 {
		return nil
	}
	if !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
		out.WriteByte('\n')
	}
	return out.Bytes()
}

func isNoise(line []byte) bool {
	for _, m := range noiseMarkers {
		if bytes.Contains(line, m) {
			return true
		}
	}
	return false
}

const drainTimeout = 10 * time.Second

// Stats counts what the subscriber has seen
type Stats struct {
	Received uint64 `json:"received"`
	Appended uint64 `json:"appended"`
	Dropped  uint64 `json:"dropped"`
	Paused   uint64 `json:"paused"`
}

// Subscriber appends feed payloads to the buffer while the collector is
// enabled in the shared state file
type Subscriber struct {
	config Config
	buffer *ingest.Buffer
	state  *ingest.StateFile
	logger *logger.Logger

	conn    *nats.Conn
	sub     *nats.Subscription
	closed  chan struct{}
	enabled atomic.Bool

	received atomic.Uint64
	appended atomic.Uint64
	dropped  atomic.Uint64
	paused   atomic.Uint64

	// Service lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewSubscriber creates a new feed subscriber
func NewSubscriber(config Config, buffer *ingest.Buffer, state *ingest.StateFile, log *logger.Logger) *Subscriber {
	return &Subscriber{
		config: config,
		buffer: buffer,
		state:  state,
		logger: log.Named("feed"),
	}
}

// Start connects to NATS and subscribes to the feed subject
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info("Starting feed subscriber",
		logger.String("url", s.config.URL),
		logger.String("subject", s.config.Subject))

	s.refreshEnabled()

	closed := make(chan struct{})
	conn, err := nats.Connect(s.config.URL,
		nats.Name(s.config.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Duration(s.config.ReconnectWaitSeconds)*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("Disconnected from feed", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("Reconnected to feed", logger.String("url", c.ConnectedUrl()))
		}),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) {
			close(closed)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to feed: %w", err)
	}

	var sub *nats.Subscription
	if s.config.QueueGroup != "" {
		sub, err = conn.QueueSubscribe(s.config.Subject, s.config.QueueGroup, s.handle)
	} else {
		sub, err = conn.Subscribe(s.config.Subject, s.handle)
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Subject, err)
	}

	s.conn = conn
	s.sub = sub
	s.closed = closed
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchState()
	}()

	s.started = true
	return nil
}

// Stop drains the subscription and closes the connection
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping feed subscriber")
	s.cancel()
	s.wg.Wait()

	// Drain lets messages already delivered reach the buffer before the
	// connection closes
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn("Failed to drain feed connection", logger.Error(err))
		s.conn.Close()
	}
	if !waitClosed(s.closed, drainTimeout+time.Second) {
		s.logger.Warn("Feed connection did not close after drain")
		s.conn.Close()
	}
	s.setRunning(false)

	s.started = false
	s.logger.Info("Feed subscriber stopped", logger.Any("stats", s.Stats()))
	return nil
}

// waitClosed waits for closed until timeout and reports whether it closed
func waitClosed(closed <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-closed:
		return true
	case <-timer.C:
		return false
	}
}

// Stats returns a snapshot of the counters
func (s *Subscriber) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Appended: s.appended.Load(),
		Dropped:  s.dropped.Load(),
		Paused:   s.paused.Load(),
	}
}

func (s *Subscriber) handle(msg *nats.Msg) {
	s.received.Add(1)
	if err := s.accept(msg.Data); err != nil {
		s.logger.Error("Failed to buffer feed payload", logger.Error(err))
	}
}

// accept appends one payload when the collector is enabled
func (s *Subscriber) accept(payload []byte) error {
	if !s.enabled.Load() {
		s.paused.Add(1)
		return nil
	}
	data := Clean(payload)
	if data == nil {
		s.dropped.Add(1)
		return nil
	}
	if err := s.buffer.Append(data); err != nil {
		return err
	}
	s.appended.Add(1)
	return nil
}

// watchState follows the collector_enabled flag in the state file
func (s *Subscriber) watchState() {
	ticker := time.NewTicker(time.Duration(s.config.StateCheckSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.refreshEnabled()
		}
	}
}

func (s *Subscriber) refreshEnabled() {
	st, err := s.state.Load()
	if err != nil {
		s.logger.Warn("State file unreadable, using defaults", logger.Error(err))
	}

	was := s.enabled.Swap(st.CollectorEnabled)
	if was != st.CollectorEnabled {
		s.logger.Info("Collector state changed", logger.Bool("enabled", st.CollectorEnabled))
	}
	if st.CollectorRunning != st.CollectorEnabled {
		s.setRunning(st.CollectorEnabled)
	}
}

func (s *Subscriber) setRunning(running bool) {
	if _, err := s.state.Update(func(st *ingest.State) {
		st.CollectorRunning = running
	}); err != nil {
		s.logger.Error("Failed to save state file", logger.Error(err))
	}
}
