package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"netmirror/internal/logging"
	"netmirror/internal/metrics"
	"netmirror/internal/repository"
	"netmirror/internal/upstream"
)

// Source is the upstream inventory as seen by reconciliation
type Source interface {
	Devices(ctx context.Context) ([]upstream.DeviceRecord, error)
	Cables(ctx context.Context) ([]upstream.CableRecord, error)
	Sites(ctx context.Context) ([]upstream.SiteRecord, error)
}

// Phase is a step of a reconciliation run
type Phase string

const (
	PhaseIdle              Phase = "IDLE"
	PhaseClearing          Phase = "CLEARING"
	PhaseFetchingDevices   Phase = "FETCHING_DEVICES"
	PhaseSavingDevices     Phase = "SAVING_DEVICES"
	PhaseFetchingCables    Phase = "FETCHING_CABLES"
	PhaseSavingConnections Phase = "SAVING_CONNECTIONS"
	PhaseFetchingSites     Phase = "FETCHING_SITES"
	PhaseSavingRegions     Phase = "SAVING_REGIONS"
	PhaseComplete          Phase = "COMPLETE"
)

// CommitMode selects where a run commits its writes
type CommitMode string

const (
	// CommitAtomic runs everything in one transaction; a failed run
	// leaves the previous mirror untouched.
	CommitAtomic CommitMode = "atomic"
	// CommitPhased commits after clearing and after every saving phase,
	// so a failed run leaves the phases that finished.
	CommitPhased CommitMode = "phased"
)

// ErrSyncInProgress is returned when a run is triggered while another is active
var ErrSyncInProgress = errors.New("reconciliation already in progress")

// PhaseError wraps the failure of a run with the phase it happened in
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("reconciliation failed in %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// RunResult summarizes a completed run
type RunResult struct {
	Devices       int           `json:"devices"`
	Connections   int           `json:"connections"`
	SkippedCables int           `json:"skipped_cables"`
	Regions       int           `json:"regions"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration_ns"`
}

// FailurePayload is published with EventSyncFailed
type FailurePayload struct {
	Phase Phase  `json:"phase"`
	Error string `json:"error"`
}

// Status is a point-in-time view of the engine
type Status struct {
	Phase      Phase      `json:"phase"`
	Running    bool       `json:"running"`
	CommitMode CommitMode `json:"commit_mode"`
	LastResult *RunResult `json:"last_result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

// ReconcileService replaces the local mirror with the upstream inventory
type ReconcileService struct {
	store    repository.Store
	source   Source
	eventBus *EventBus
	mode     CommitMode

	runMu sync.Mutex

	mu        sync.RWMutex
	phase     Phase
	last      *RunResult
	lastErr   error
	lastRunAt *time.Time
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(store repository.Store, source Source, eventBus *EventBus, mode CommitMode) *ReconcileService {
	if mode == "" {
		mode = CommitAtomic
	}
	return &ReconcileService{
		store:    store,
		source:   source,
		eventBus: eventBus,
		mode:     mode,
		phase:    PhaseIdle,
	}
}

// Status returns the current phase and the outcome of the last run
func (s *ReconcileService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Phase:      s.phase,
		Running:    s.phase != PhaseIdle,
		CommitMode: s.mode,
		LastRunAt:  s.lastRunAt,
	}
	if s.last != nil {
		res := *s.last
		st.LastResult = &res
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Run performs one full reconciliation. It returns ErrSyncInProgress
// without touching the store when another run holds the lock.
func (s *ReconcileService) Run(ctx context.Context) (*RunResult, error) {
	if !s.runMu.TryLock() {
		metrics.SyncRunsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrSyncInProgress
	}
	defer s.runMu.Unlock()

	r := &run{
		svc:    s,
		result: RunResult{StartedAt: time.Now()},
	}

	logging.Info().Str("commit_mode", string(s.mode)).Msg("Reconciliation started")
	s.eventBus.Publish(Event{Type: EventSyncStarted})

	err := r.execute(ctx)
	r.result.Duration = time.Since(r.result.StartedAt)
	if err != nil {
		r.rollback()
		phase := r.phase
		var pe *PhaseError
		if errors.As(err, &pe) {
			phase = pe.Phase
		}
		s.finish(nil, err)

		metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("phase", string(phase)).Msg("Reconciliation failed")
		s.eventBus.Publish(Event{
			Type:    EventSyncFailed,
			Payload: FailurePayload{Phase: phase, Error: err.Error()},
		})
		return nil, err
	}

	result := r.result
	s.setPhase(PhaseComplete)
	metrics.SyncRunsTotal.WithLabelValues("completed").Inc()
	logging.Info().
		Int("devices", result.Devices).
		Int("connections", result.Connections).
		Int("skipped_cables", result.SkippedCables).
		Int("regions", result.Regions).
		Dur("duration", result.Duration).
		Msg("Reconciliation completed")
	s.eventBus.Publish(Event{Type: EventSyncCompleted, Payload: result})
	s.finish(&result, nil)

	return &result, nil
}

func (s *ReconcileService) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *ReconcileService) finish(result *RunResult, err error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseIdle
	s.lastRunAt = &now
	s.lastErr = err
	if result != nil {
		s.last = result
	}
}

// run carries the state of one reconciliation
type run struct {
	svc        *ReconcileService
	tx         repository.Tx
	result     RunResult
	phase      Phase
	phaseStart time.Time
}

func (r *run) enter(p Phase) {
	if r.phase != "" {
		metrics.RecordPhase(string(r.phase), r.phaseStart)
	}
	r.phase = p
	r.phaseStart = time.Now()
	r.svc.setPhase(p)
	logging.Debug().Str("phase", string(p)).Msg("Reconciliation phase")
}

func (r *run) fail(err error) error {
	return &PhaseError{Phase: r.phase, Err: err}
}

// checkpoint commits and reopens the transaction in phased mode
func (r *run) checkpoint(ctx context.Context) error {
	if r.svc.mode != CommitPhased {
		return nil
	}
	if err := r.tx.Commit(); err != nil {
		return r.fail(err)
	}
	tx, err := r.svc.store.Begin(ctx)
	if err != nil {
		r.tx = nil
		return r.fail(err)
	}
	r.tx = tx
	return nil
}

func (r *run) rollback() {
	if r.tx == nil {
		return
	}
	if err := r.tx.Rollback(); err != nil {
		logging.Warn().Err(err).Msg("Failed to roll back reconciliation")
	}
	r.tx = nil
}

func (r *run) execute(ctx context.Context) error {
	r.enter(PhaseClearing)
	tx, err := r.svc.store.Begin(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.tx = tx
	if err := r.tx.ClearDevices(ctx); err != nil {
		return r.fail(err)
	}
	if err := r.tx.ClearConnections(ctx); err != nil {
		return r.fail(err)
	}
	if err := r.tx.ClearRegions(ctx); err != nil {
		return r.fail(err)
	}
	if err := r.checkpoint(ctx); err != nil {
		return err
	}

	if err := r.syncDevices(ctx); err != nil {
		return err
	}
	if err := r.syncConnections(ctx); err != nil {
		return err
	}
	if err := r.syncRegions(ctx); err != nil {
		return err
	}

	if err := r.tx.Commit(); err != nil {
		return r.fail(err)
	}
	r.tx = nil
	metrics.RecordPhase(string(r.phase), r.phaseStart)
	return nil
}

func (r *run) syncDevices(ctx context.Context) error {
	r.enter(PhaseFetchingDevices)
	records, err := r.svc.source.Devices(ctx)
	if err != nil {
		return r.fail(err)
	}

	r.enter(PhaseSavingDevices)
	for _, rec := range records {
		device := NormalizeDevice(rec)
		if err := r.tx.UpsertDevice(ctx, device); err != nil {
			return r.fail(err)
		}
		r.result.Devices++
		r.svc.eventBus.Publish(Event{Type: EventDeviceAdded, Payload: device})
	}
	metrics.SyncEntitiesWritten.WithLabelValues("device").Add(float64(r.result.Devices))
	logging.Info().Int("count", r.result.Devices).Msg("Devices saved")
	return r.checkpoint(ctx)
}

func (r *run) syncConnections(ctx context.Context) error {
	r.enter(PhaseFetchingCables)
	records, err := r.svc.source.Cables(ctx)
	if err != nil {
		return r.fail(err)
	}

	r.enter(PhaseSavingConnections)
	for _, rec := range records {
		conn, ok := NormalizeCable(rec)
		if !ok {
			r.result.SkippedCables++
			logSkippedCable(rec)
			continue
		}
		if err := r.tx.InsertConnection(ctx, &conn); err != nil {
			return r.fail(err)
		}
		r.result.Connections++
		r.svc.eventBus.Publish(Event{Type: EventConnectionAdded, Payload: conn})
	}
	metrics.SyncEntitiesWritten.WithLabelValues("connection").Add(float64(r.result.Connections))
	metrics.SyncCablesSkipped.Add(float64(r.result.SkippedCables))
	logging.Info().
		Int("count", r.result.Connections).
		Int("skipped", r.result.SkippedCables).
		Msg("Connections saved")
	return r.checkpoint(ctx)
}

func (r *run) syncRegions(ctx context.Context) error {
	r.enter(PhaseFetchingSites)
	records, err := r.svc.source.Sites(ctx)
	if err != nil {
		return r.fail(err)
	}

	r.enter(PhaseSavingRegions)
	for k, rec := range records {
		region := NormalizeSite(k, rec)
		if err := r.tx.UpsertRegion(ctx, region); err != nil {
			return r.fail(err)
		}
		r.result.Regions++
		r.svc.eventBus.Publish(Event{Type: EventRegionAdded, Payload: region})
	}
	metrics.SyncEntitiesWritten.WithLabelValues("region").Add(float64(r.result.Regions))
	logging.Info().Int("count", r.result.Regions).Msg("Regions saved")
	return nil
}

func logSkippedCable(rec upstream.CableRecord) {
	ev := logging.Debug()
	if rec.Malformed != nil {
		ev = logging.Warn().Err(rec.Malformed)
	}
	if rec.ID != nil {
		ev = ev.Int64("cable_id", *rec.ID)
	}
	switch {
	case rec.Malformed != nil:
		ev.Msg("Skipping malformed cable")
	case rec.ID == nil:
		ev.Msg("Skipping cable without id")
	default:
		ev.Msg("Skipping cable without terminations")
	}
}
