package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yegors/glidepath/pkg/logger"
)

// Client fetches the aircraft list from a local receiver
type Client struct {
	httpClient *http.Client
	sourceURL  string
	logger     *logger.Logger
}

// NewClient creates a new receiver client
func NewClient(sourceURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		sourceURL: sourceURL,
		logger:    log.Named("adsb-cli"),
	}
}

// FetchData fetches the current aircraft list
func (c *Client) FetchData(ctx context.Context) (*RawAircraftData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query receiver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// aircraft.json stays small, a few hundred targets at most
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read aircraft list: %w", err)
	}

	var data RawAircraftData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode aircraft list: %w", err)
	}

	c.logger.Debug("Receiver aircraft list",
		logger.String("url", c.sourceURL),
		logger.Int("aircraft", len(data.Aircraft)),
		logger.Int("messages", data.Messages))

	return &data, nil
}
