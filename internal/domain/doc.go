// Package domain defines the core types of the inventory mirror.
//
// The mirror holds four collections: devices, positions, connections and
// regions. Devices, connections and regions are refreshed from the upstream
// inventory API by a reconciliation run. Positions are authored only by
// clients laying out the topology canvas and are never touched by sync.
//
// # Identity
//
// Device and region identifiers are assigned upstream and reused locally.
// Connection identifiers are local surrogates; a re-sync produces fresh
// connection rows, so the cable identifier is the only stable link back to
// the upstream record.
//
// # Design Principles
//
// - Plain value types, no database or transport dependencies
// - Defaults are named constants and applied by constructors, not callers
package domain
