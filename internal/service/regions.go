package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"netmirror/internal/domain"
	"netmirror/internal/logging"
	"netmirror/internal/repository"
)

// ErrInvalidRegion is returned for a region that fails validation
var ErrInvalidRegion = errors.New("invalid region")

// RegionService handles direct region edits from clients.
// Edits are overwritten by the next reconciliation run.
type RegionService struct {
	store    repository.Store
	eventBus *EventBus
}

// NewRegionService creates a new region service
func NewRegionService(store repository.Store, eventBus *EventBus) *RegionService {
	return &RegionService{
		store:    store,
		eventBus: eventBus,
	}
}

// List returns all regions
func (s *RegionService) List(ctx context.Context) ([]domain.Region, error) {
	return s.store.ListRegions(ctx)
}

// Save creates or overwrites a region and notifies subscribers
func (s *RegionService) Save(ctx context.Context, in domain.RegionInput) (domain.Region, error) {
	if err := validateRegion(in); err != nil {
		return domain.Region{}, err
	}

	region, err := s.store.UpsertRegion(ctx, in.Region())
	if err != nil {
		return domain.Region{}, err
	}

	logging.Info().Int64("region_id", region.ID).Str("name", region.Name).Msg("Region saved")
	s.eventBus.Publish(Event{Type: EventRegionUpdated, Payload: region})
	return region, nil
}

// Delete removes a region. Deleting an unknown id succeeds.
func (s *RegionService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteRegion(ctx, id); err != nil {
		return err
	}

	logging.Info().Int64("region_id", id).Msg("Region deleted")
	s.eventBus.Publish(Event{Type: EventRegionDeleted, Payload: map[string]int64{"id": id}})
	return nil
}

func validateRegion(in domain.RegionInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRegion)
	}
	if in.Width < 0 || in.Height < 0 {
		return fmt.Errorf("%w: width and height must not be negative", ErrInvalidRegion)
	}
	if in.ID != nil && *in.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidRegion)
	}
	return nil
}
