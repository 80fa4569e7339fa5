package delivery

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func testConfig() Config {
	return Config{
		Origin:         Coordinate{Lat: 4.60971, Lng: -74.08175}, // Bogota
		BaseDistanceKm: 2,
		BaseCost:       decimal.NewFromInt(4000),
		PerKmExcess:    decimal.NewFromInt(1000),
		MaxCoverageKm:  10,
		Active:         true,
	}
}

func TestQuoteDistance_TieredBreakdown(t *testing.T) {
	calc := NewCalculator(nil)

	// 5km against a 2km base: 4000 flat + 3 excess km at 1000.
	q, err := calc.QuoteDistance(5, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.OutOfCoverage {
		t.Fatal("5km should be in coverage")
	}
	if q.BaseDistanceKm != 2 {
		t.Errorf("base distance = %v, want 2", q.BaseDistanceKm)
	}
	if q.ExcessDistanceKm != 3 {
		t.Errorf("excess distance = %v, want 3", q.ExcessDistanceKm)
	}
	if !q.BaseCost.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("base cost = %s, want 4000", q.BaseCost)
	}
	if !q.ExcessCost.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("excess cost = %s, want 3000", q.ExcessCost)
	}
	if !q.TotalCost.Equal(decimal.NewFromInt(7000)) {
		t.Errorf("total cost = %s, want 7000", q.TotalCost)
	}
}

func TestQuoteDistance_WithinBase(t *testing.T) {
	calc := NewCalculator(nil)

	q, err := calc.QuoteDistance(1.5, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.ExcessDistanceKm != 0 {
		t.Errorf("excess distance = %v, want 0", q.ExcessDistanceKm)
	}
	if !q.TotalCost.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("total cost = %s, want flat 4000", q.TotalCost)
	}
}

func TestQuoteDistance_FeeMonotonicity(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := testConfig()

	prev := decimal.NewFromInt(-1)
	for d := 0.5; d <= cfg.MaxCoverageKm; d += 0.5 {
		q, err := calc.QuoteDistance(d, cfg)
		if err != nil {
			t.Fatalf("d=%v: unexpected error: %v", d, err)
		}
		if q.TotalCost.LessThan(prev) {
			t.Fatalf("fee decreased: d=%v total=%s previous=%s", d, q.TotalCost, prev)
		}
		if q.TotalCost.IsNegative() {
			t.Fatalf("negative fee at d=%v: %s", d, q.TotalCost)
		}
		prev = q.TotalCost
	}
}

func TestQuoteDistance_CoverageBoundary(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := testConfig()

	q, err := calc.QuoteDistance(cfg.MaxCoverageKm, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.OutOfCoverage {
		t.Error("exactly MaxCoverageKm must be in coverage")
	}

	q, err = calc.QuoteDistance(cfg.MaxCoverageKm+0.01, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.OutOfCoverage {
		t.Error("MaxCoverageKm + epsilon must be out of coverage")
	}
	if !q.TotalCost.IsZero() {
		t.Errorf("out-of-coverage quote carries cost %s", q.TotalCost)
	}
}

func TestQuoteDistance_ServiceDisabled(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := testConfig()
	cfg.Active = false

	_, err := calc.QuoteDistance(5, cfg)
	if !errors.Is(err, ErrServiceDisabled) {
		t.Fatalf("err = %v, want ErrServiceDisabled", err)
	}
}

func TestQuoteDistance_RoundsToWholeUnits(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := testConfig()
	cfg.PerKmExcess = decimal.NewFromFloat(1250.5)

	q, err := calc.QuoteDistance(3.3, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.TotalCost.Equal(q.TotalCost.Round(0)) {
		t.Errorf("total cost %s has fractional units", q.TotalCost)
	}
}

func TestQuote_Deterministic(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := testConfig()
	dest := Coordinate{Lat: 4.65000, Lng: -74.06000}

	q1, err := calc.Quote(dest, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q2, err := calc.Quote(dest, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q1.DistanceKm != q2.DistanceKm || !q1.TotalCost.Equal(q2.TotalCost) {
		t.Errorf("quotes differ for identical input: %+v vs %+v", q1, q2)
	}
}

func TestHaversineKm(t *testing.T) {
	// Bogota center to Usaquen, roughly 8.8km.
	d := HaversineKm(4.60971, -74.08175, 4.68800, -74.05300)
	if d < 8 || d > 10 {
		t.Errorf("distance = %v, want roughly 8.8", d)
	}
	if HaversineKm(4.6, -74.0, 4.6, -74.0) != 0 {
		t.Error("same point should be distance 0")
	}
}

func TestDefaultSpeedModel(t *testing.T) {
	if m := DefaultSpeedModel(0); m != 10 {
		t.Errorf("0km estimate = %d, want handoff-only 10", m)
	}
	if m := DefaultSpeedModel(5); m != 25 {
		t.Errorf("5km estimate = %d, want 25", m)
	}
}
