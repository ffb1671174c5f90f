package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"btc-direction/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockMetricsTracker is a mock implementation of MetricsTracker for testing.
type MockMetricsTracker struct {
	FeatureErrorsIncCalled int
	CalcDurationInvoked    bool
	LastCalcDuration       time.Duration
}

func (m *MockMetricsTracker) FeatureErrorsInc() {
	m.FeatureErrorsIncCalled++
}

func (m *MockMetricsTracker) FeatureCalcDuration(d time.Duration) {
	m.CalcDurationInvoked = true
	m.LastCalcDuration = d
}

func series(prices ...float64) []market.Observation {
	obs := make([]market.Observation, len(prices))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	for i, p := range prices {
		obs[i] = market.Observation{Timestamp: base + int64(i)*86400, Price: p}
	}
	return obs
}

func TestBuilder_InsufficientHistory(t *testing.T) {
	t.Parallel()
	b := NewBuilder()

	for n := 0; n < WindowSize; n++ {
		prices := make([]float64, n)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		_, err := b.Build(series(prices...))
		if !errors.Is(err, ErrInsufficientHistory) {
			t.Errorf("len=%d: expected ErrInsufficientHistory, got %v", n, err)
		}
	}
}

func TestBuilder_PctChange(t *testing.T) {
	t.Parallel()

	v, err := NewBuilder().Build(series(95.0, 100.0, 110.0))
	require.NoError(t, err)

	pct, ok := v.Get(PctChange)
	require.True(t, ok)
	assert.InDelta(t, 0.10, pct, 1e-12)
}

func TestBuilder_RollingStats(t *testing.T) {
	t.Parallel()

	v, err := NewBuilder().Build(series(90, 100, 110))
	require.NoError(t, err)

	mean, _ := v.Get(RollingMean3)
	std, _ := v.Get(RollingStd3)
	assert.InDelta(t, 100.0, mean, 1e-12)
	assert.InDelta(t, 10.0, std, 1e-12)

	lag1, _ := v.Get(Lag1)
	lag2, _ := v.Get(Lag2)
	assert.Equal(t, 110.0, lag1)
	assert.Equal(t, 100.0, lag2)
}

func TestBuilder_UsesTrailingWindowOnly(t *testing.T) {
	t.Parallel()

	v, err := NewBuilder().Build(series(1, 5000, 20, 90, 100, 110))
	require.NoError(t, err)

	mean, _ := v.Get(RollingMean3)
	std, _ := v.Get(RollingStd3)
	assert.InDelta(t, 100.0, mean, 1e-12)
	assert.InDelta(t, 10.0, std, 1e-12)
}

func TestBuilder_ConstantWindowHasZeroStd(t *testing.T) {
	t.Parallel()

	v, err := NewBuilder().Build(series(42, 42, 42))
	require.NoError(t, err)

	std, _ := v.Get(RollingStd3)
	assert.Equal(t, 0.0, std)
	pct, _ := v.Get(PctChange)
	assert.Equal(t, 0.0, pct)
}

func TestBuilder_DivisionByZero(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder().Build(series(10, 0, 5))
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestBuilder_SchemaOrder(t *testing.T) {
	t.Parallel()

	v, err := NewBuilder().Build(series(90, 100, 110))
	require.NoError(t, err)

	assert.True(t, v.Schema().Equal(DefaultSchema()))
	assert.Equal(t, Schema{"lag_1", "lag_2", "pct_change", "rolling_mean_3", "rolling_std_3"}, v.Schema())

	values := v.Values()
	require.Len(t, values, 5)
	assert.Equal(t, 110.0, values[0])
	assert.Equal(t, 100.0, values[1])
	assert.InDelta(t, 0.1, values[2], 1e-12)
}

func TestBuilder_Idempotent(t *testing.T) {
	t.Parallel()

	in := series(101.5, 99.25, 103.75, 102.0)
	snapshot := make([]market.Observation, len(in))
	copy(snapshot, in)

	b := NewBuilder()
	v1, err := b.Build(in)
	require.NoError(t, err)
	v2, err := b.Build(in)
	require.NoError(t, err)

	assert.Equal(t, v1.Values(), v2.Values())
	assert.Equal(t, v1.Schema(), v2.Schema())
	assert.Equal(t, snapshot, in, "input series must not be modified")
}

func TestBuilder_Metrics(t *testing.T) {
	t.Parallel()
	m := &MockMetricsTracker{}
	b := NewBuilderWithMetrics(m)

	_, err := b.Build(series(1, 2, 3))
	require.NoError(t, err)
	assert.True(t, m.CalcDurationInvoked)
	assert.Equal(t, 0, m.FeatureErrorsIncCalled)

	_, err = b.Build(series(1))
	require.Error(t, err)
	assert.Equal(t, 1, m.FeatureErrorsIncCalled)
}

func TestWindowStats(t *testing.T) {
	t.Parallel()

	mean, std := windowStats(nil)
	if mean != 0 || std != 0 {
		t.Errorf("expected 0,0 for empty window, got %f,%f", mean, std)
	}

	mean, std = windowStats([]float64{5})
	if mean != 5 || std != 0 {
		t.Errorf("expected 5,0 for single value, got %f,%f", mean, std)
	}

	mean, std = windowStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(mean-5) > 1e-12 {
		t.Errorf("expected mean 5, got %f", mean)
	}
	expected := math.Sqrt(32.0 / 7.0)
	if math.Abs(std-expected) > 1e-12 {
		t.Errorf("expected sample std %f, got %f", expected, std)
	}
}
