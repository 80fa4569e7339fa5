package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const deliveryConfigColumns = `restaurant_id, origin_lat, origin_lng,
	base_distance_km, base_cost, per_km_excess_rate, max_coverage_km,
	active, updated_at`

func (q *Queries) GetDeliveryConfig(ctx context.Context, restaurantID uuid.UUID) (DeliveryConfig, error) {
	var c DeliveryConfig
	err := q.db.QueryRow(ctx, `
		SELECT `+deliveryConfigColumns+`
		FROM delivery_configs
		WHERE restaurant_id = $1`,
		restaurantID,
	).Scan(
		&c.RestaurantID, &c.OriginLat, &c.OriginLng,
		&c.BaseDistanceKm, &c.BaseCost, &c.PerKmExcessRate, &c.MaxCoverageKm,
		&c.Active, &c.UpdatedAt,
	)
	return c, err
}

type UpsertDeliveryConfigParams struct {
	RestaurantID    uuid.UUID
	OriginLat       float64
	OriginLng       float64
	BaseDistanceKm  float64
	BaseCost        pgtype.Numeric
	PerKmExcessRate pgtype.Numeric
	MaxCoverageKm   float64
	Active          bool
}

func (q *Queries) UpsertDeliveryConfig(ctx context.Context, arg UpsertDeliveryConfigParams) (DeliveryConfig, error) {
	var c DeliveryConfig
	err := q.db.QueryRow(ctx, `
		INSERT INTO delivery_configs (
			restaurant_id, origin_lat, origin_lng, base_distance_km,
			base_cost, per_km_excess_rate, max_coverage_km, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (restaurant_id) DO UPDATE SET
			origin_lat = EXCLUDED.origin_lat,
			origin_lng = EXCLUDED.origin_lng,
			base_distance_km = EXCLUDED.base_distance_km,
			base_cost = EXCLUDED.base_cost,
			per_km_excess_rate = EXCLUDED.per_km_excess_rate,
			max_coverage_km = EXCLUDED.max_coverage_km,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING `+deliveryConfigColumns,
		arg.RestaurantID, arg.OriginLat, arg.OriginLng, arg.BaseDistanceKm,
		arg.BaseCost, arg.PerKmExcessRate, arg.MaxCoverageKm, arg.Active,
	).Scan(
		&c.RestaurantID, &c.OriginLat, &c.OriginLng,
		&c.BaseDistanceKm, &c.BaseCost, &c.PerKmExcessRate, &c.MaxCoverageKm,
		&c.Active, &c.UpdatedAt,
	)
	return c, err
}
