// Package handler implements the HTTP layer of netmirror.
//
// InventoryHandler serves the mirror read views, the direct position and
// region mutations, the sync trigger and the snapshot export. NewRouter
// mounts it on a chi router together with /ws, /metrics and /healthz.
//
// # Response Format
//
// Success responses return JSON data. Error responses return JSON with an
// {error, details} structure. A sync trigger while a run is active answers
// 409 Conflict.
package handler
