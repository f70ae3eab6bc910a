package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://maps.googleapis.com/maps/api"
	requestBodyReadLimit int64 = 1024
)

var (
	errAPIKeyRequired = errors.New("geocoding api key is required")
)

// Client wraps the Google Geocoding API used to place delivery addresses on
// the map.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Geocoding base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the geocoding client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// LatLng is the latitude/longitude pair returned by the geocoder.
type LatLng struct {
	Lat float64
	Lng float64
}

// Geocode resolves a free-form address to coordinates. A nil result with a
// nil error means the geocoder found no match; callers treat both nil and
// error as "no coordinates" since geocoding is best effort.
func (c *Client) Geocode(ctx context.Context, address string) (*LatLng, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "geocoding client not configured")
	}
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}

	query := url.Values{}
	query.Set("address", trimmed)
	query.Set("key", c.apiKey)
	requestURL := fmt.Sprintf("%s/geocode/json?%s", strings.TrimRight(c.baseURL, "/"), query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build geocode request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute geocode request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "geocode request failed")
	}

	var apiResp struct {
		Status  string `json:"status"`
		Results []struct {
			Geometry struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode geocode response")
	}

	if apiResp.Status == "ZERO_RESULTS" || len(apiResp.Results) == 0 {
		return nil, nil
	}
	if apiResp.Status != "OK" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("geocoder status %s", apiResp.Status), "geocode request rejected")
	}

	loc := apiResp.Results[0].Geometry.Location
	return &LatLng{Lat: loc.Lat, Lng: loc.Lng}, nil
}
