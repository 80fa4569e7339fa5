package delivery

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// ErrServiceDisabled is returned when the restaurant has delivery turned off.
var ErrServiceDisabled = errors.New("delivery service is disabled")

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Config is the restaurant's delivery pricing configuration. Read-only here;
// managed through the delivery-config endpoints.
type Config struct {
	Origin         Coordinate
	BaseDistanceKm float64
	BaseCost       decimal.Decimal
	PerKmExcess    decimal.Decimal
	MaxCoverageKm  float64
	Active         bool
}

// Quote is the fee breakdown for delivering to one coordinate. When
// OutOfCoverage is set only DistanceKm is meaningful and the location must
// be rejected.
type Quote struct {
	DistanceKm       float64
	BaseDistanceKm   float64
	ExcessDistanceKm float64
	BaseCost         decimal.Decimal
	ExcessCost       decimal.Decimal
	TotalCost        decimal.Decimal
	EstimatedMinutes int
	OutOfCoverage    bool
}

// SpeedModel converts a distance into a duration estimate in minutes.
type SpeedModel func(distanceKm float64) int

// DefaultSpeedModel assumes a 20 km/h urban courier plus 10 minutes of
// kitchen handoff, rounded up.
func DefaultSpeedModel(distanceKm float64) int {
	return 10 + int(math.Ceil(distanceKm/20*60))
}

// Calculator produces delivery quotes from a restaurant's config.
type Calculator struct {
	speed SpeedModel
}

// NewCalculator creates a Calculator. A nil speed model falls back to
// DefaultSpeedModel.
func NewCalculator(speed SpeedModel) *Calculator {
	if speed == nil {
		speed = DefaultSpeedModel
	}
	return &Calculator{speed: speed}
}

// Quote prices a delivery to dest. Deterministic: identical inputs always
// produce the identical quote. Costs are rounded to whole currency units and
// are never negative.
func (c *Calculator) Quote(dest Coordinate, cfg Config) (Quote, error) {
	if !cfg.Active {
		return Quote{}, ErrServiceDisabled
	}
	d := HaversineKm(cfg.Origin.Lat, cfg.Origin.Lng, dest.Lat, dest.Lng)
	return c.QuoteDistance(d, cfg)
}

// QuoteDistance prices a delivery over an already-computed road distance.
func (c *Calculator) QuoteDistance(d float64, cfg Config) (Quote, error) {
	if !cfg.Active {
		return Quote{}, ErrServiceDisabled
	}

	if d > cfg.MaxCoverageKm {
		return Quote{DistanceKm: d, OutOfCoverage: true}, nil
	}

	q := Quote{
		DistanceKm:       d,
		BaseDistanceKm:   math.Min(d, cfg.BaseDistanceKm),
		ExcessDistanceKm: math.Max(0, d-cfg.BaseDistanceKm),
		EstimatedMinutes: c.speed(d),
	}

	// The base cost is flat for any non-zero distance.
	if d > 0 {
		q.BaseCost = cfg.BaseCost.Round(0)
	} else {
		q.BaseCost = decimal.Zero
	}
	q.ExcessCost = decimal.NewFromFloat(q.ExcessDistanceKm).Mul(cfg.PerKmExcess).Round(0)
	if q.ExcessCost.IsNegative() {
		q.ExcessCost = decimal.Zero
	}
	q.TotalCost = q.BaseCost.Add(q.ExcessCost)

	return q, nil
}

// HaversineKm returns the great-circle distance in kilometers, rounded to
// two decimal places.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return math.Round(R*c*100) / 100
}
