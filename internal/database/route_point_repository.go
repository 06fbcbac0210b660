package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/jmoiron/sqlx"
)

// RoutePointRepository reads pickup/drop points (reference data owned elsewhere)
type RoutePointRepository struct {
	db DB
}

// NewRoutePointRepository creates a new RoutePointRepository
func NewRoutePointRepository(db DB) *RoutePointRepository {
	return &RoutePointRepository{db: db}
}

// GetByIDs returns the points found for the given ids, keyed by id
func (r *RoutePointRepository) GetByIDs(ctx context.Context, q Queryer, ids ...uuid.UUID) (map[uuid.UUID]models.RoutePoint, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.RoutePoint{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, district_id, name FROM route_points WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build route point query: %w", err)
	}
	query = q.Rebind(query)

	var points []models.RoutePoint
	if err := q.SelectContext(ctx, &points, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get route points: %w", err)
	}

	result := make(map[uuid.UUID]models.RoutePoint, len(points))
	for _, p := range points {
		result[p.ID] = p
	}
	return result, nil
}
