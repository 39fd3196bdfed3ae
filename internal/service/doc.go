// Package service implements the netmirror business logic.
//
// ReconcileService replaces the local mirror with the upstream inventory in
// a fixed sequence of phases (devices, then connections, then regions) and
// publishes an event for every item it writes. RegionService and
// PositionService are the direct mutation paths used by clients.
// InventoryService serves the read views.
//
// # Event System
//
// EventBus delivers events synchronously, in subscription order. A handler
// that returns an error or panics is logged and reported in the
// PublishResult; the remaining handlers still run. BridgeNotifications wires
// completion events to the live fan-out.
package service
