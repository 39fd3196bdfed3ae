package repository

import (
	"context"
	"errors"

	"netmirror/internal/domain"
)

// ErrBusy is returned when a direct write gave up waiting for the database
// lock, typically held by a reconciliation run. The write can be retried.
var ErrBusy = errors.New("store busy")

// Reader lists the mirrored collections
type Reader interface {
	ListDevices(ctx context.Context) ([]domain.Device, error)
	ListPositions(ctx context.Context) ([]domain.Position, error)
	ListConnections(ctx context.Context) ([]domain.Connection, error)
	ListRegions(ctx context.Context) ([]domain.Region, error)
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

// Store is the local mirror
type Store interface {
	Reader

	// Layout persistence, authored by clients only
	UpsertPositions(ctx context.Context, positions []domain.Position) error
	ClearPositions(ctx context.Context) error

	// UpsertRegion inserts when region.ID is zero and returns the stored region
	UpsertRegion(ctx context.Context, region domain.Region) (domain.Region, error)
	// DeleteRegion is a no-op when the region does not exist
	DeleteRegion(ctx context.Context, id int64) error

	// Begin opens a reconciliation transaction
	Begin(ctx context.Context) (Tx, error)

	Close() error
}

// Tx is a reconciliation unit of work
type Tx interface {
	ClearDevices(ctx context.Context) error
	ClearConnections(ctx context.Context) error
	ClearRegions(ctx context.Context) error

	UpsertDevice(ctx context.Context, device domain.Device) error
	// InsertConnection always creates a new row and sets conn.ID
	InsertConnection(ctx context.Context, conn *domain.Connection) error
	UpsertRegion(ctx context.Context, region domain.Region) error

	Commit() error
	// Rollback is safe to call after Commit
	Rollback() error
}
