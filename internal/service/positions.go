package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"netmirror/internal/domain"
	"netmirror/internal/logging"
	"netmirror/internal/repository"
	"netmirror/internal/sidecache"
)

// ErrInvalidPosition is returned when a positions key is not a device id
var ErrInvalidPosition = errors.New("invalid position")

// PositionService persists the client-authored canvas layout
type PositionService struct {
	store    repository.Store
	eventBus *EventBus
	cache    *sidecache.File
}

// NewPositionService creates a new position service. cache may be nil.
func NewPositionService(store repository.Store, eventBus *EventBus, cache *sidecache.File) *PositionService {
	return &PositionService{
		store:    store,
		eventBus: eventBus,
		cache:    cache,
	}
}

// Get returns positions keyed by the decimal device id
func (s *PositionService) Get(ctx context.Context) (map[string]domain.Point, error) {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Point, len(positions))
	for _, p := range positions {
		out[strconv.FormatInt(p.DeviceID, 10)] = p.Point()
	}
	return out, nil
}

// Save upserts one position per entry. Keys must be decimal device ids;
// the whole batch is rejected if any key is not.
func (s *PositionService) Save(ctx context.Context, updates map[string]domain.Point) error {
	positions := make([]domain.Position, 0, len(updates))
	for key, pt := range updates {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: device id %q", ErrInvalidPosition, key)
		}
		positions = append(positions, domain.NewPosition(id, pt.X, pt.Y))
	}

	if err := s.store.UpsertPositions(ctx, positions); err != nil {
		return err
	}
	s.writeCache(ctx)

	s.eventBus.Publish(Event{Type: EventPositionsUpdated, Payload: map[string]int{"count": len(positions)}})
	return nil
}

// Clear removes every stored position
func (s *PositionService) Clear(ctx context.Context) error {
	if err := s.store.ClearPositions(ctx); err != nil {
		return err
	}
	s.writeCache(ctx)

	s.eventBus.Publish(Event{Type: EventPositionsUpdated, Payload: map[string]int{"count": 0}})
	return nil
}

// ImportCache loads the side-cache into an empty positions table and
// returns how many positions were imported.
func (s *PositionService) ImportCache(ctx context.Context) (int, error) {
	if !s.cache.Enabled() {
		return 0, nil
	}

	existing, err := s.store.ListPositions(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	cached, err := s.cache.Load()
	if err != nil {
		return 0, err
	}
	if len(cached) == 0 {
		return 0, nil
	}

	positions := make([]domain.Position, 0, len(cached))
	for id, pt := range cached {
		positions = append(positions, domain.NewPosition(id, pt.X, pt.Y))
	}
	if err := s.store.UpsertPositions(ctx, positions); err != nil {
		return 0, err
	}

	logging.Info().Int("count", len(positions)).Str("path", s.cache.Path()).Msg("Imported positions from cache")
	return len(positions), nil
}

// writeCache mirrors the table to the side-cache. The table is the source of
// truth, so a cache failure is logged and the request still succeeds.
func (s *PositionService) writeCache(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to read positions for cache")
		return
	}
	m := make(map[int64]domain.Point, len(positions))
	for _, p := range positions {
		m[p.DeviceID] = p.Point()
	}
	if err := s.cache.Save(m); err != nil {
		logging.Warn().Err(err).Str("path", s.cache.Path()).Msg("Failed to write positions cache")
	}
}
