package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ErrUnresolvable indicates the geolocation service has no coordinates for
// the IP (private ranges, reserved blocks).
var ErrUnresolvable = errors.New("ip not resolvable")

// DefaultGeoBaseURL is the public ip-api.com JSON endpoint.
const DefaultGeoBaseURL = "http://ip-api.com/json"

const geoRequestTimeout = 10 * time.Second

// HTTPGeolocator resolves IPs to coordinates via an ip-api-compatible JSON
// endpoint. Lookups are cached for the lifetime of the locator; login IPs
// repeat heavily, and one heatmap request would otherwise hit the service
// once per login row.
//
// Safe for concurrent use.
type HTTPGeolocator struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	cache map[string][2]float64
}

// NewHTTPGeolocator creates a locator against baseURL
// (empty = DefaultGeoBaseURL). httpClient nil = a client with a 10s timeout.
func NewHTTPGeolocator(baseURL string, httpClient *http.Client) *HTTPGeolocator {
	if baseURL == "" {
		baseURL = DefaultGeoBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: geoRequestTimeout}
	}
	return &HTTPGeolocator{
		baseURL: baseURL,
		http:    httpClient,
		cache:   make(map[string][2]float64),
	}
}

// Locate returns the coordinates recorded for ip. ErrUnresolvable wraps IPs
// the service cannot place.
func (g *HTTPGeolocator) Locate(ctx context.Context, ip string) (lat, lng float64, err error) {
	g.mu.Lock()
	if coords, ok := g.cache[ip]; ok {
		g.mu.Unlock()
		return coords[0], coords[1], nil
	}
	g.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("building geolocation request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("querying geolocation service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geolocation service returned %d", resp.StatusCode)
	}

	var body struct {
		Status string  `json:"status"`
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, fmt.Errorf("decoding geolocation response: %w", err)
	}
	if body.Status != "success" {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnresolvable, ip)
	}

	g.mu.Lock()
	g.cache[ip] = [2]float64{body.Lat, body.Lon}
	g.mu.Unlock()

	return body.Lat, body.Lon, nil
}
