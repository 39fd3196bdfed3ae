// Package sqlite implements repository.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"netmirror/internal/domain"
	"netmirror/internal/repository"
)

// DefaultBusyTimeout is how long a write waits for the database lock
const DefaultBusyTimeout = 5 * time.Second

// Option configures New
type Option func(*options)

type options struct {
	busyTimeout time.Duration
}

// WithBusyTimeout sets how long a write waits for a lock held elsewhere
// before failing with repository.ErrBusy
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// Repository implements repository.Store using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Store = (*Repository)(nil)

// New opens (creating if needed) the database at dbPath and migrates it
func New(dbPath string, opts ...Option) (*Repository, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", dbPath, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: would be a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// positions.device_id deliberately has no foreign key: positions outlive
// the device rows that every sync deletes and re-inserts.
func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'unknown'
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id INTEGER NOT NULL UNIQUE,
		x REAL NOT NULL,
		y REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cable_id INTEGER NOT NULL,
		port_a_id INTEGER,
		port_a_name TEXT NOT NULL DEFAULT '',
		port_a_device TEXT NOT NULL DEFAULT '',
		port_b_id INTEGER,
		port_b_name TEXT NOT NULL DEFAULT '',
		port_b_device TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS regions (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		width REAL NOT NULL,
		height REAL NOT NULL,
		color TEXT NOT NULL DEFAULT '#b8b8b853'
	);

	CREATE INDEX IF NOT EXISTS idx_devices_name ON devices(name);
	CREATE INDEX IF NOT EXISTS idx_connections_cable ON connections(cable_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// ListDevices returns all devices ordered by id
func (r *Repository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	return listDevices(ctx, r.db)
}

// ListPositions returns all positions ordered by device id
func (r *Repository) ListPositions(ctx context.Context) ([]domain.Position, error) {
	return listPositions(ctx, r.db)
}

// ListConnections returns all connections in insertion order
func (r *Repository) ListConnections(ctx context.Context) ([]domain.Connection, error) {
	return listConnections(ctx, r.db)
}

// ListRegions returns all regions ordered by id
func (r *Repository) ListRegions(ctx context.Context) ([]domain.Region, error) {
	return listRegions(ctx, r.db)
}

// Snapshot reads all four collections inside one transaction so the
// result never mixes two reconciliation runs.
func (r *Repository) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	snap := domain.NewSnapshot()
	if snap.Devices, err = listDevices(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Positions, err = listPositions(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Connections, err = listConnections(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Regions, err = listRegions(ctx, tx); err != nil {
		return nil, err
	}
	return snap, nil
}

func listDevices(ctx context.Context, q execer) ([]domain.Device, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := make([]domain.Device, 0)
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Role); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

func listPositions(ctx context.Context, q execer) ([]domain.Position, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.DeviceID, &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

func listConnections(ctx context.Context, q execer) ([]domain.Connection, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	conns := make([]domain.Connection, 0)
	for rows.Next() {
		var (
			c                        domain.Connection
			aID, bID                 sql.NullInt64
			aName, aDev, bName, bDev sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.CableID, &aID, &aName, &aDev, &bID, &bName, &bDev); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		c.PortA = domain.Port{ID: nullToInt64Ptr(aID), Name: nullToString(aName), Device: nullToString(aDev)}
		c.PortB = domain.Port{ID: nullToInt64Ptr(bID), Name: nullToString(bName), Device: nullToString(bDev)}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

func listRegions(ctx context.Context, q execer) ([]domain.Region, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+regionColumns+` FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query regions: %w", err)
	}
	defer rows.Close()

	regions := make([]domain.Region, 0)
	for rows.Next() {
		var reg domain.Region
		if err := rows.Scan(&reg.ID, &reg.Name, &reg.X, &reg.Y, &reg.Width, &reg.Height, &reg.Color); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regions: %w", err)
	}
	return regions, nil
}

// UpsertPositions writes all positions in one transaction
func (r *Repository) UpsertPositions(ctx context.Context, positions []domain.Position) error {
	return busy(r.upsertPositions(ctx, positions))
}

func (r *Repository) upsertPositions(ctx context.Context, positions []domain.Position) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (device_id, x, y) VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET x = excluded.x, y = excluded.y
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx, p.DeviceID, p.X, p.Y); err != nil {
			return fmt.Errorf("failed to upsert position for device %d: %w", p.DeviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ClearPositions removes every stored layout position
func (r *Repository) ClearPositions(ctx context.Context) error {
	return busy(r.clearPositions(ctx))
}

func (r *Repository) clearPositions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}
	return nil
}

// UpsertRegion inserts or overwrites a region
func (r *Repository) UpsertRegion(ctx context.Context, region domain.Region) (domain.Region, error) {
	stored, err := r.saveRegion(ctx, region)
	return stored, busy(err)
}

func (r *Repository) saveRegion(ctx context.Context, region domain.Region) (domain.Region, error) {
	region.ApplyDefaults()

	if region.ID == 0 {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO regions (name, x, y, width, height, color) VALUES (?, ?, ?, ?, ?, ?)
		`, region.Name, region.X, region.Y, region.Width, region.Height, region.Color)
		if err != nil {
			return region, fmt.Errorf("failed to insert region: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return region, fmt.Errorf("failed to read region id: %w", err)
		}
		region.ID = id
		return region, nil
	}

	if err := upsertRegion(ctx, r.db, region); err != nil {
		return region, err
	}
	return region, nil
}

// DeleteRegion removes a region; missing ids are not an error
func (r *Repository) DeleteRegion(ctx context.Context, id int64) error {
	return busy(r.deleteRegion(ctx, id))
}

func (r *Repository) deleteRegion(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM regions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete region: %w", err)
	}
	return nil
}

// Begin opens a reconciliation transaction
func (r *Repository) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &syncTx{tx: tx}, nil
}

// busy marks lock contention so callers can tell it from a hard failure
func busy(err error) error {
	var se *sqlitedriver.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_BUSY {
		return fmt.Errorf("%w: %w", repository.ErrBusy, err)
	}
	return err
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func upsertRegion(ctx context.Context, q execer, region domain.Region) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO regions (`+regionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			x = excluded.x,
			y = excluded.y,
			width = excluded.width,
			height = excluded.height,
			color = excluded.color
	`, region.ID, region.Name, region.X, region.Y, region.Width, region.Height, region.Color)
	if err != nil {
		return fmt.Errorf("failed to upsert region %d: %w", region.ID, err)
	}
	return nil
}

// syncTx implements repository.Tx
type syncTx struct {
	tx *sql.Tx
}

func (t *syncTx) ClearDevices(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return fmt.Errorf("failed to clear devices: %w", err)
	}
	return nil
}

func (t *syncTx) ClearConnections(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM connections`); err != nil {
		return fmt.Errorf("failed to clear connections: %w", err)
	}
	return nil
}

func (t *syncTx) ClearRegions(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM regions`); err != nil {
		return fmt.Errorf("failed to clear regions: %w", err)
	}
	return nil
}

func (t *syncTx) UpsertDevice(ctx context.Context, device domain.Device) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role
	`, device.ID, device.Name, device.Role)
	if err != nil {
		return fmt.Errorf("failed to upsert device %d: %w", device.ID, err)
	}
	return nil
}

func (t *syncTx) InsertConnection(ctx context.Context, conn *domain.Connection) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO connections (cable_id, port_a_id, port_a_name, port_a_device, port_b_id, port_b_name, port_b_device)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, conn.CableID,
		int64PtrToNull(conn.PortA.ID), conn.PortA.Name, conn.PortA.Device,
		int64PtrToNull(conn.PortB.ID), conn.PortB.Name, conn.PortB.Device)
	if err != nil {
		return fmt.Errorf("failed to insert connection for cable %d: %w", conn.CableID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read connection id: %w", err)
	}
	conn.ID = id
	return nil
}

func (t *syncTx) UpsertRegion(ctx context.Context, region domain.Region) error {
	region.ApplyDefaults()
	return upsertRegion(ctx, t.tx, region)
}

func (t *syncTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *syncTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}
