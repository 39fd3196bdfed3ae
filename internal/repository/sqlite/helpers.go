package sqlite

import (
	"context"
	"database/sql"
)

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// nullToInt64Ptr converts sql.NullInt64 to *int64
func nullToInt64Ptr(ni sql.NullInt64) *int64 {
	if ni.Valid {
		v := ni.Int64
		return &v
	}
	return nil
}

// int64PtrToNull converts *int64 to sql.NullInt64
func int64PtrToNull(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// ============================================================================
// Column lists
// ============================================================================
//
// Column order must match between the constant, the scan in the matching
// query function and every INSERT using the same list.

const (
	deviceColumns     = "id, name, role"
	positionColumns   = "device_id, x, y"
	connectionColumns = "id, cable_id, port_a_id, port_a_name, port_a_device, port_b_id, port_b_name, port_b_device"
	regionColumns     = "id, name, x, y, width, height, color"
)
