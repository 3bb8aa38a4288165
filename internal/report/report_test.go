package report

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewly/reviewly/internal/log"
)

type stubSource struct {
	ips []string
	err error
}

func (s *stubSource) LoginIPs(context.Context) ([]string, error) { return s.ips, s.err }

type stubLocator struct {
	coords map[string][2]float64
}

func (l *stubLocator) Locate(_ context.Context, ip string) (float64, float64, error) {
	c, ok := l.coords[ip]
	if !ok {
		return 0, 0, errors.New("unknown ip")
	}
	return c[0], c[1], nil
}

func newTestReporter(t *testing.T, ips []string, coords map[string][2]float64) *Reporter {
	t.Helper()
	r, err := NewReporter(&stubSource{ips: ips}, &stubLocator{coords: coords}, log.NewNop())
	require.NoError(t, err)
	return r
}

func TestHeatmap_BucketsAndWeights(t *testing.T) {
	// Two IPs resolve into the same 2-decimal bucket, a third elsewhere.
	r := newTestReporter(t,
		[]string{"1.1.1.1", "2.2.2.2", "3.3.3.3"},
		map[string][2]float64{
			"1.1.1.1": {51.5074, -0.1278},
			"2.2.2.2": {51.5091, -0.1251},
			"3.3.3.3": {40.7128, -74.0060},
		})

	points, err := r.Heatmap(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, Point{Lat: 51.51, Lng: -0.13, Weight: 2}, points[0])
	assert.Equal(t, Point{Lat: 40.71, Lng: -74.01, Weight: 1}, points[1])
}

func TestHeatmap_SkipsLoopback(t *testing.T) {
	r := newTestReporter(t,
		[]string{"127.0.0.1", "::1", "1.1.1.1"},
		map[string][2]float64{"1.1.1.1": {10, 20}})

	points, err := r.Heatmap(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 1, points[0].Weight)
}

func TestHeatmap_SkipsUnresolvable(t *testing.T) {
	r := newTestReporter(t, []string{"9.9.9.9", "1.1.1.1"},
		map[string][2]float64{"1.1.1.1": {10, 20}})

	points, err := r.Heatmap(context.Background())
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestHeatmap_SourceError(t *testing.T) {
	r, err := NewReporter(&stubSource{err: errors.New("db down")}, &stubLocator{}, log.NewNop())
	require.NoError(t, err)

	_, err = r.Heatmap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading login records")
}

func TestHeatmap_Empty(t *testing.T) {
	r := newTestReporter(t, nil, nil)
	points, err := r.Heatmap(context.Background())
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 51.51, round2(51.5074))
	assert.Equal(t, -0.13, round2(-0.1278))
	assert.Equal(t, 0.0, round2(0.001))
}
