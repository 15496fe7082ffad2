// Package adsb records arrivals seen by a local ADS-B receiver as flight
// tracks, next to the SWIM feeds.
package adsb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yegors/glidepath/internal/ingest"
	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/pkg/logger"
)

// Fetcher retrieves the receiver's aircraft list
type Fetcher interface {
	FetchData(ctx context.Context) (*RawAircraftData, error)
}

// PollResult summarizes one poll of the receiver
type PollResult struct {
	Aircraft int `json:"aircraft"`
	Points   int `json:"points"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Flights  int `json:"active_flights"`
}

// session is one continuous track of one airframe
type session struct {
	flightID  string
	lastSeen  time.Time
	lastPoint time.Time
}

// Collector polls the receiver and stores a point per aircraft update
type Collector struct {
	config  Config
	fetcher Fetcher
	sink    ingest.Sink
	logger  *logger.Logger

	pollMu   sync.Mutex
	sessions map[string]*session // by ICAO address

	// Service lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewCollector creates a collector reading from the configured receiver
func NewCollector(config Config, sink ingest.Sink, log *logger.Logger) *Collector {
	timeout := time.Duration(config.RequestTimeoutSeconds) * time.Second
	return NewCollectorWithFetcher(config, NewClient(config.SourceURL, timeout, log), sink, log)
}

// NewCollectorWithFetcher creates a collector with a custom fetcher
func NewCollectorWithFetcher(config Config, fetcher Fetcher, sink ingest.Sink, log *logger.Logger) *Collector {
	config.Airport = strings.ToUpper(config.Airport)
	return &Collector{
		config:   config,
		fetcher:  fetcher,
		sink:     sink,
		logger:   log.Named("adsb"),
		sessions: make(map[string]*session),
	}
}

// Start begins polling the receiver
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	c.logger.Info("Starting ADS-B collector",
		logger.String("url", c.config.SourceURL),
		logger.String("airport", c.config.Airport),
		logger.Int("poll_interval_seconds", c.config.PollIntervalSeconds))

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.fetchLoop()

	c.started = true
	return nil
}

// Stop stops the collector
func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.logger.Info("Stopping ADS-B collector")
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
	return nil
}

func (c *Collector) fetchLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Duration(c.config.PollIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := c.Poll(c.ctx)
			if err != nil {
				c.logger.Error("Failed to poll ADS-B receiver", logger.Error(err))
				continue
			}
			if res.Inserted > 0 {
				c.logger.Debug("Stored ADS-B positions",
					logger.Int("inserted", res.Inserted),
					logger.Int("skipped", res.Skipped),
					logger.Int("active_flights", res.Flights))
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Poll fetches the aircraft list once and stores every new position
func (c *Collector) Poll(ctx context.Context) (PollResult, error) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	var res PollResult

	data, err := c.fetcher.FetchData(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to fetch aircraft: %w", err)
	}
	res.Aircraft = len(data.Aircraft)

	now := time.Now().UTC()
	if data.Now > 0 {
		now = time.UnixMilli(int64(data.Now * 1000)).UTC()
	}
	gap := time.Duration(c.config.FlightGapMinutes) * time.Minute
	maxAge := float64(c.config.MaxPositionAgeSeconds)

	var points []track.RawPoint
	stored := make(map[*session]time.Time)

	for _, t := range data.Aircraft {
		if t.Lat == nil || t.Lon == nil || t.SeenPos == nil || *t.SeenPos > maxAge {
			continue
		}
		callsign := t.Callsign()
		if c.config.GAOnly && !strings.HasPrefix(callsign, "N") {
			continue
		}

		hex := strings.ToUpper(strings.TrimPrefix(t.Hex, "~"))
		at := now.Add(-time.Duration(*t.SeenPos * float64(time.Second))).Truncate(time.Second)

		sess := c.sessions[hex]
		if sess == nil || at.Sub(sess.lastSeen) > gap {
			sess = &session{flightID: fmt.Sprintf("ADSB-%s-%s", hex, at.Format("20060102T150405"))}
			c.sessions[hex] = sess
		}
		if at.After(sess.lastSeen) {
			sess.lastSeen = at
		}
		if !at.After(sess.lastPoint) {
			continue
		}

		points = append(points, c.point(sess.flightID, callsign, hex, at, t))
		stored[sess] = at
	}

	for hex, sess := range c.sessions {
		if now.Sub(sess.lastSeen) > gap {
			delete(c.sessions, hex)
		}
	}
	res.Flights = len(c.sessions)
	res.Points = len(points)

	if len(points) == 0 {
		return res, nil
	}

	res.Inserted, res.Skipped, err = c.sink.InsertPoints(ctx, points)
	if err != nil {
		return res, fmt.Errorf("failed to store positions: %w", err)
	}
	for sess, at := range stored {
		sess.lastPoint = at
	}
	return res, nil
}

// point converts one receiver target to a track report
func (c *Collector) point(flightID, callsign, hex string, at time.Time, t Target) track.RawPoint {
	p := track.RawPoint{
		FlightID:     flightID,
		Callsign:     callsign,
		Source:       track.SourceADSB,
		Time:         at,
		Latitude:     t.Lat,
		Longitude:    t.Lon,
		Speed:        t.GS,
		Heading:      t.Track,
		ModeS:        hex,
		AircraftType: t.AircraftType,
		Arrival:      c.config.Airport,
	}
	// "ground" carries no barometric altitude
	if t.AltBaro != nil && !t.AltBaro.OnGround {
		p.Altitude = track.Ptr(t.AltBaro.Feet)
	}
	if t.BaroRate != nil {
		p.ReportedVerticalSpeed = track.Ptr(*t.BaroRate)
	}
	return p
}
