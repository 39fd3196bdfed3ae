// Package repository defines the data access interfaces for the mirror.
//
// Store exposes reads and the direct client mutations (positions, regions).
// Reconciliation writes go through Tx so a run can span one transaction
// or commit per phase, depending on the configured commit mode.
//
// # Upsert semantics
//
// Devices, positions and regions match by key and overwrite in place.
// Connections have no natural key and are insert-only; a full clear at the
// start of every run is what keeps cable rows from accumulating.
//
// # SQLite Implementation
//
// The sqlite subpackage implements Store on modernc.org/sqlite in WAL mode,
// so readers keep seeing the last committed mirror while a run is open.
package repository
