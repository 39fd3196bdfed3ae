package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"netmirror/internal/codec"
	"netmirror/internal/domain"
	"netmirror/internal/logging"
	"netmirror/internal/repository"
	"netmirror/internal/service"
)

// maxBodyBytes bounds request bodies for positions and regions
const maxBodyBytes = 4 << 20

// busyRetryAfter is the Retry-After hint, in seconds, for a locked store
const busyRetryAfter = "5"

// Reconciler triggers and reports reconciliation runs
type Reconciler interface {
	Run(ctx context.Context) (*service.RunResult, error)
	Status() service.Status
}

// InventoryHandler handles mirror API requests
type InventoryHandler struct {
	inventory *service.InventoryService
	regions   *service.RegionService
	positions *service.PositionService
	sync      Reconciler
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(inventory *service.InventoryService, regions *service.RegionService, positions *service.PositionService, sync Reconciler) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		regions:   regions,
		positions: positions,
		sync:      sync,
	}
}

// ErrorResponse is the body of every API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StatusResponse acknowledges a mutation
type StatusResponse struct {
	Status string `json:"status"`
}

// TriggerSync runs one reconciliation and waits for it to finish
func (h *InventoryHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abort a run halfway
	ctx := context.WithoutCancel(r.Context())

	if _, err := h.sync.Run(ctx); err != nil {
		if errors.Is(err, service.ErrSyncInProgress) {
			h.writeError(w, "Sync already running", err.Error(), http.StatusConflict)
			return
		}
		logging.Error().Err(err).Msg("Sync request failed")
		h.writeError(w, "Sync failed", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, StatusResponse{Status: "updated"}, http.StatusOK)
}

// SyncStatus returns the current phase and last run
func (h *InventoryHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.sync.Status(), http.StatusOK)
}

// ListDevices returns all devices
func (h *InventoryHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.inventory.Devices(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list devices")
		h.writeError(w, "Failed to list devices", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, devices, http.StatusOK)
}

// GetTopology returns every connection as a device/port pair
func (h *InventoryHandler) GetTopology(w http.ResponseWriter, r *http.Request) {
	links, err := h.inventory.Topology(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to get topology")
		h.writeError(w, "Failed to get topology", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, links, http.StatusOK)
}

// GetPositions returns positions keyed by device id
func (h *InventoryHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.Get(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to get positions")
		h.writeError(w, "Failed to get positions", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, positions, http.StatusOK)
}

// SavePositions upserts a batch of positions
func (h *InventoryHandler) SavePositions(w http.ResponseWriter, r *http.Request) {
	var updates map[string]domain.Point
	if err := h.decode(w, r, &updates); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.positions.Save(r.Context(), updates); err != nil {
		if errors.Is(err, service.ErrInvalidPosition) {
			h.writeError(w, "Invalid positions", err.Error(), http.StatusBadRequest)
			return
		}
		logging.Error().Err(err).Msg("Failed to save positions")
		h.writeStoreError(w, "Failed to save positions", err)
		return
	}

	h.writeJSON(w, StatusResponse{Status: "ok"}, http.StatusOK)
}

// ClearPositions removes every stored position
func (h *InventoryHandler) ClearPositions(w http.ResponseWriter, r *http.Request) {
	if err := h.positions.Clear(r.Context()); err != nil {
		logging.Error().Err(err).Msg("Failed to clear positions")
		h.writeStoreError(w, "Failed to clear positions", err)
		return
	}

	h.writeJSON(w, StatusResponse{Status: "cleared"}, http.StatusOK)
}

// ListRegions returns all regions
func (h *InventoryHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.regions.List(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list regions")
		h.writeError(w, "Failed to list regions", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, regions, http.StatusOK)
}

// SaveRegion creates or overwrites a region
func (h *InventoryHandler) SaveRegion(w http.ResponseWriter, r *http.Request) {
	var in domain.RegionInput
	if err := h.decode(w, r, &in); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	region, err := h.regions.Save(r.Context(), in)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRegion) {
			h.writeError(w, "Invalid region", err.Error(), http.StatusBadRequest)
			return
		}
		logging.Error().Err(err).Msg("Failed to save region")
		h.writeStoreError(w, "Failed to save region", err)
		return
	}

	h.writeJSON(w, struct {
		Status string `json:"status"`
		ID     int64  `json:"id"`
	}{Status: "ok", ID: region.ID}, http.StatusOK)
}

// DeleteRegion removes a region; unknown ids still succeed
func (h *InventoryHandler) DeleteRegion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, "Invalid region ID", "Region ID must be an integer", http.StatusBadRequest)
		return
	}

	if err := h.regions.Delete(r.Context(), id); err != nil {
		logging.Error().Err(err).Int64("region_id", id).Msg("Failed to delete region")
		h.writeStoreError(w, "Failed to delete region", err)
		return
	}

	h.writeJSON(w, StatusResponse{Status: "deleted"}, http.StatusOK)
}

// Export downloads the whole mirror in the format named by the route
func (h *InventoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	exporter, err := codec.ForFormat(format)
	if err != nil {
		h.writeError(w, "Unsupported format", err.Error(), http.StatusNotFound)
		return
	}

	snapshot, err := h.inventory.Snapshot(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to read snapshot")
		h.writeError(w, "Failed to export", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=netmirror.%s", exporter.Format()))
	if err := exporter.Export(snapshot, w); err != nil {
		// Headers are already sent
		logging.Error().Err(err).Str("format", format).Msg("Failed to write export")
	}
}

// Health reports liveness
func (h *InventoryHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.sync.Status()
	h.writeJSON(w, map[string]any{
		"status": "ok",
		"phase":  st.Phase,
	}, http.StatusOK)
}

// Helper methods

func (h *InventoryHandler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}

func (h *InventoryHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode JSON")
	}
}

// writeStoreError answers 503 with Retry-After while a sync holds the
// database lock, 500 otherwise
func (h *InventoryHandler) writeStoreError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, repository.ErrBusy) {
		w.Header().Set("Retry-After", busyRetryAfter)
		h.writeError(w, msg, "Store is locked by a running sync, retry shortly", http.StatusServiceUnavailable)
		return
	}
	h.writeError(w, msg, err.Error(), http.StatusInternalServerError)
}

func (h *InventoryHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode error response")
	}
}
