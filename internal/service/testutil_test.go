package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"netmirror/internal/logging"
	"netmirror/internal/repository/sqlite"
	"netmirror/internal/upstream"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func newTestStore(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

// fakeSource serves canned upstream records. An error set for a collection
// fails that fetch.
type fakeSource struct {
	devices []upstream.DeviceRecord
	cables  []upstream.CableRecord
	sites   []upstream.SiteRecord

	devicesErr error
	cablesErr  error
	sitesErr   error

	// block, when set, holds Devices until it is closed
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSource) Devices(ctx context.Context) ([]upstream.DeviceRecord, error) {
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	return f.devices, f.devicesErr
}

func (f *fakeSource) Cables(ctx context.Context) ([]upstream.CableRecord, error) {
	return f.cables, f.cablesErr
}

func (f *fakeSource) Sites(ctx context.Context) ([]upstream.SiteRecord, error) {
	return f.sites, f.sitesErr
}

func termination(portID int64, port, device string) []upstream.Termination {
	return []upstream.Termination{{
		ObjectType: "dcim.interface",
		ObjectID:   int64Ptr(portID),
		Object: &upstream.TerminationObject{
			ID:     int64Ptr(portID),
			Name:   strPtr(port),
			Device: &upstream.NamedRef{ID: int64Ptr(1), Name: device},
		},
	}}
}

// sampleSource has two devices, one valid and one dangling cable, one site
func sampleSource() *fakeSource {
	return &fakeSource{
		devices: []upstream.DeviceRecord{
			{ID: 1, Name: "core-sw", Role: &upstream.NamedRef{Name: "switch"}},
			{ID: 2, Name: "edge-rtr"},
		},
		cables: []upstream.CableRecord{
			{ID: int64Ptr(10), ATerminations: termination(100, "eth0", "core-sw"), BTerminations: termination(200, "ge-0/0/0", "edge-rtr")},
			{ID: int64Ptr(11), ATerminations: termination(101, "eth1", "core-sw")},
		},
		sites: []upstream.SiteRecord{{ID: 5, Name: "HQ"}},
	}
}

// recorder captures every event type published on a bus
type recorder struct {
	mu     sync.Mutex
	events []Event
}

var allEvents = []EventType{
	EventSyncStarted, EventDeviceAdded, EventConnectionAdded, EventRegionAdded,
	EventSyncCompleted, EventSyncFailed, EventRegionUpdated, EventRegionDeleted,
	EventPositionsUpdated,
}

func record(bus *EventBus) *recorder {
	r := &recorder{}
	for _, et := range allEvents {
		bus.Subscribe(et, "recorder", func(ev Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
			return nil
		})
	}
	return r
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
