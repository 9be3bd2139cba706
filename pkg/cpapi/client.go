// Package cpapi is a client for the operator's travel and realtime APIs.
package cpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cpfleet/internal/domain"
)

const (
	DefaultTravelURL   = "https://api-gateway.cp.pt/cp/services/travel-api"
	DefaultRealtimeURL = "https://api-gateway.cp.pt/cp/services/realtime-api"
)

// Endpoint names used in errors and metrics.
const (
	EndpointTrains   = "trains"
	EndpointStations = "stations"
	EndpointDetails  = "trains/details"
)

// maxErrorBody caps how much of a failed response is kept in UpstreamError.
const maxErrorBody = 64 << 10

// Credentials is one API key set. The travel and realtime APIs each have
// their own.
type Credentials struct {
	APIKey        string
	ConnectID     string
	ConnectSecret string
}

type Config struct {
	TravelURL   string
	RealtimeURL string
	Travel      Credentials
	Realtime    Credentials
	UserAgent   string
	Timeout     time.Duration
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

type Client struct {
	travelURL   string
	realtimeURL string
	travel      Credentials
	realtime    Credentials
	userAgent   string
	httpClient  *http.Client
}

func New(cfg Config) *Client {
	if cfg.TravelURL == "" {
		cfg.TravelURL = DefaultTravelURL
	}
	if cfg.RealtimeURL == "" {
		cfg.RealtimeURL = DefaultRealtimeURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		travelURL:   strings.TrimRight(cfg.TravelURL, "/"),
		realtimeURL: strings.TrimRight(cfg.RealtimeURL, "/"),
		travel:      cfg.Travel,
		realtime:    cfg.Realtime,
		userAgent:   cfg.UserAgent,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
	}
}

// UpstreamError is returned when an API answers outside the 2xx range.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("got NOK response %d from %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// StaticTrains fetches the schedule-level train list.
func (c *Client) StaticTrains(ctx context.Context) ([]domain.StaticTrain, error) {
	var trains []domain.StaticTrain
	if err := c.do(ctx, http.MethodGet, c.travelURL+"/trains", EndpointTrains, c.travel, nil, &trains); err != nil {
		return nil, err
	}
	return trains, nil
}

// Stations fetches every station.
func (c *Client) Stations(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station
	if err := c.do(ctx, http.MethodGet, c.travelURL+"/stations", EndpointStations, c.travel, nil, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// RealtimeDetails fetches the realtime envelope of every given train number.
func (c *Client) RealtimeDetails(ctx context.Context, trainNumbers []int) (map[int]domain.TrainDetails, error) {
	if trainNumbers == nil {
		trainNumbers = []int{}
	}
	body, err := json.Marshal(trainNumbers)
	if err != nil {
		return nil, fmt.Errorf("encoding train numbers: %w", err)
	}

	details := map[int]domain.TrainDetails{}
	if err := c.do(ctx, http.MethodPost, c.realtimeURL+"/trains/details", EndpointDetails, c.realtime, body, &details); err != nil {
		return nil, err
	}
	return details, nil
}

func (c *Client) do(ctx context.Context, method, url, endpoint string, creds Credentials, body []byte, dest interface{}) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("x-api-key", creds.APIKey)
	req.Header.Set("x-cp-connect-id", creds.ConnectID)
	req.Header.Set("x-cp-connect-secret", creds.ConnectSecret)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}
