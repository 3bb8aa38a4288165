// Package report builds aggregate reports for administrators. The only
// report today is the login heatmap: login IPs resolved to coordinates,
// bucketed and weighted by frequency.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// LoginSource yields the recorded login IP addresses.
// IP-to-row storage lives elsewhere; the reporter only needs the strings.
type LoginSource interface {
	LoginIPs(ctx context.Context) ([]string, error)
}

// Geolocator resolves an IP address to coordinates. Implementations wrap an
// external lookup service; resolution failures for single IPs are skipped,
// not fatal.
type Geolocator interface {
	Locate(ctx context.Context, ip string) (lat, lng float64, err error)
}

// Point is one heatmap bucket: a coordinate pair rounded to two decimals and
// the number of logins that resolved into it.
type Point struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight int     `json:"weight"`
}

// Reporter builds heatmaps from login records.
type Reporter struct {
	source  LoginSource
	locator Geolocator
	logger  *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(source LoginSource, locator Geolocator, logger *slog.Logger) (*Reporter, error) {
	if source == nil {
		return nil, fmt.Errorf("login source is required")
	}
	if locator == nil {
		return nil, fmt.Errorf("geolocator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{source: source, locator: locator, logger: logger}, nil
}

// Heatmap aggregates all recorded logins into weighted coordinate buckets.
// Loopback addresses carry no location and are skipped, as is any IP the
// locator cannot resolve. Buckets are returned ordered by weight descending,
// then latitude and longitude, so output is deterministic.
func (r *Reporter) Heatmap(ctx context.Context) ([]Point, error) {
	ips, err := r.source.LoginIPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading login records: %w", err)
	}

	type bucket struct{ lat, lng float64 }
	counts := make(map[bucket]int)

	for _, ip := range ips {
		if ip == "127.0.0.1" || ip == "::1" {
			continue
		}

		lat, lng, err := r.locator.Locate(ctx, ip)
		if err != nil {
			r.logger.Debug("skipping unresolvable login IP", "ip", ip, "error", err)
			continue
		}

		counts[bucket{round2(lat), round2(lng)}]++
	}

	points := make([]Point, 0, len(counts))
	for b, n := range counts {
		points = append(points, Point{Lat: b.lat, Lng: b.lng, Weight: n})
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Weight != points[j].Weight {
			return points[i].Weight > points[j].Weight
		}
		if points[i].Lat != points[j].Lat {
			return points[i].Lat < points[j].Lat
		}
		return points[i].Lng < points[j].Lng
	})

	return points, nil
}

// round2 rounds to two decimal places, roughly a city-sized bucket.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
