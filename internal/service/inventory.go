package service

import (
	"context"

	"netmirror/internal/domain"
	"netmirror/internal/repository"
)

// LinkEnd is one side of a topology link as served to clients
type LinkEnd struct {
	Device string `json:"device"`
	Name   string `json:"name"`
}

// Link is the client view of a connection
type Link struct {
	CableID int64   `json:"cable_id"`
	PortA   LinkEnd `json:"port_a"`
	PortB   LinkEnd `json:"port_b"`
}

// InventoryService serves read-only views of the mirror
type InventoryService struct {
	store repository.Reader
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store repository.Reader) *InventoryService {
	return &InventoryService{store: store}
}

// Devices returns all mirrored devices
func (s *InventoryService) Devices(ctx context.Context) ([]domain.Device, error) {
	return s.store.ListDevices(ctx)
}

// Topology returns every connection as a device/port pair
func (s *InventoryService) Topology(ctx context.Context) ([]Link, error) {
	conns, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	links := make([]Link, 0, len(conns))
	for _, c := range conns {
		links = append(links, Link{
			CableID: c.CableID,
			PortA:   LinkEnd{Device: c.PortA.Device, Name: c.PortA.Name},
			PortB:   LinkEnd{Device: c.PortB.Device, Name: c.PortB.Name},
		})
	}
	return links, nil
}

// Snapshot returns the whole mirror
func (s *InventoryService) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	return s.store.Snapshot(ctx)
}
