package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmirror/internal/domain"
	"netmirror/internal/hub"
	"netmirror/internal/logging"
	"netmirror/internal/repository/sqlite"
	"netmirror/internal/service"
	"netmirror/internal/upstream"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

const devicesJSON = `{"count": 2, "results": [
	{"id": 1, "name": "core-sw", "role": {"id": 3, "name": "switch"}},
	{"id": 2, "name": "edge-rtr", "role": null}
]}`

const cablesJSON = `{"count": 2, "results": [
	{"id": 10,
	 "a_terminations": [{"object_type": "dcim.interface", "object_id": 100, "object": {"id": 100, "name": "eth0", "device": {"id": 1, "name": "core-sw"}}}],
	 "b_terminations": [{"object_type": "dcim.interface", "object_id": 200, "object": {"id": 200, "name": "ge-0/0/0", "device": {"id": 2, "name": "edge-rtr"}}}]},
	{"id": 11, "a_terminations": [], "b_terminations": []}
]}`

const sitesJSON = `{"count": 2, "results": [{"id": 5, "name": "HQ"}, {"id": 6, "name": "DR"}]}`

type testEnv struct {
	server   *httptest.Server
	store    *sqlite.Repository
	live     *hub.Hub
	failing  atomic.Bool
	upstream *httptest.Server
}

func newTestEnv(t *testing.T, opts ...sqlite.Option) *testEnv {
	t.Helper()
	env := &testEnv{}

	env.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.failing.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/api/dcim/devices/":
			fmt.Fprint(w, devicesJSON)
		case "/api/dcim/cables/":
			fmt.Fprint(w, cablesJSON)
		case "/api/dcim/sites/":
			fmt.Fprint(w, sitesJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(env.upstream.Close)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "mirror.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	env.store = store

	bus := service.NewEventBus()
	env.live = hub.New(hub.Options{})
	service.BridgeNotifications(bus, env.live)

	client := upstream.New(upstream.Options{BaseURL: env.upstream.URL + "/api", Token: "t"})
	inv := NewInventoryHandler(
		service.NewInventoryService(store),
		service.NewRegionService(store, bus),
		service.NewPositionService(store, bus, nil),
		service.NewReconcileService(store, client, bus, service.CommitAtomic),
	)
	env.server = httptest.NewServer(NewRouter(RouterConfig{Inventory: inv, Live: env.live}))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.server.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// liveChannel is a hub channel that records signals
type liveChannel struct {
	id uint64

	mu   sync.Mutex
	msgs []string
}

func (c *liveChannel) ID() uint64 { return c.id }

func (c *liveChannel) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(msg))
	return nil
}

func (c *liveChannel) Close() error { return nil }

func (c *liveChannel) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestTriggerSync(t *testing.T) {
	env := newTestEnv(t)
	watcher := &liveChannel{id: 1 << 40}
	require.True(t, env.live.Register(watcher))

	resp, body := env.do(t, http.MethodPost, "/api/update", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"status":"updated"}`, string(body))
	assert.Equal(t, []string{"netbox_updated"}, watcher.received())

	t.Run("devices", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/api/devices", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var devices []domain.Device
		require.NoError(t, json.Unmarshal(body, &devices))
		assert.Equal(t, []domain.Device{
			{ID: 1, Name: "core-sw", Role: "switch"},
			{ID: 2, Name: "edge-rtr", Role: "unknown"},
		}, devices)
	})

	t.Run("topology", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/api/topology", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `[{"cable_id":10,"port_a":{"device":"core-sw","name":"eth0"},"port_b":{"device":"edge-rtr","name":"ge-0/0/0"}}]`, string(body))
	})

	t.Run("regions", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/api/regions", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var regions []domain.Region
		require.NoError(t, json.Unmarshal(body, &regions))
		require.Len(t, regions, 2)
		assert.Equal(t, 50.0, regions[0].X)
		assert.Equal(t, 600.0, regions[1].X)
	})

	t.Run("status", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/api/sync/status", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var st service.Status
		require.NoError(t, json.Unmarshal(body, &st))
		assert.Equal(t, service.PhaseIdle, st.Phase)
		require.NotNil(t, st.LastResult)
		assert.Equal(t, 1, st.LastResult.SkippedCables)
	})
}

func TestTriggerSyncUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/update", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.failing.Store(true)
	resp, body := env.do(t, http.MethodPost, "/api/update", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "Sync failed", errResp.Error)
	assert.Contains(t, errResp.Details, "503")

	// previous mirror is still served
	_, body = env.do(t, http.MethodGet, "/api/devices", "")
	var devices []domain.Device
	require.NoError(t, json.Unmarshal(body, &devices))
	assert.Len(t, devices, 2)
}

func TestPositionsAPI(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/positions", `{"1": {"x": 10, "y": 20}, "2": {"x": 5.5, "y": -1}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"1":{"x":10,"y":20},"2":{"x":5.5,"y":-1}}`, string(body))

	t.Run("bad key", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/api/positions", `{"sw1": {"x": 1, "y": 1}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad body", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/api/positions", `[1,2`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("survive sync", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/api/update", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_, body := env.do(t, http.MethodGet, "/api/positions", "")
		assert.JSONEq(t, `{"1":{"x":10,"y":20},"2":{"x":5.5,"y":-1}}`, string(body))
	})

	t.Run("clear", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodDelete, "/api/positions", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_, body := env.do(t, http.MethodGet, "/api/positions", "")
		assert.JSONEq(t, `{}`, string(body))
	})
}

func TestRegionsAPI(t *testing.T) {
	env := newTestEnv(t)
	watcher := &liveChannel{id: 1 << 41}
	require.True(t, env.live.Register(watcher))

	resp, body := env.do(t, http.MethodPost, "/api/regions", `{"name": "Lab", "x": 1, "y": 2, "width": 30, "height": 40}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var saved struct {
		Status string `json:"status"`
		ID     int64  `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, "ok", saved.Status)
	assert.NotZero(t, saved.ID)

	_, body = env.do(t, http.MethodGet, "/api/regions", "")
	var regions []domain.Region
	require.NoError(t, json.Unmarshal(body, &regions))
	require.Len(t, regions, 1)
	assert.Equal(t, domain.DefaultRegionColor, regions[0].Color)

	resp, body = env.do(t, http.MethodDelete, fmt.Sprintf("/api/regions/%d", saved.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"deleted"}`, string(body))

	assert.Equal(t, []string{"region_updated", "region_updated"}, watcher.received())

	t.Run("delete missing", func(t *testing.T) {
		resp, body := env.do(t, http.MethodDelete, "/api/regions/9999", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status":"deleted"}`, string(body))
	})

	t.Run("delete bad id", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodDelete, "/api/regions/abc", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing name", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/api/regions", `{"x": 1}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/update", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("json", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/api/export/json", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "netmirror.json")

		var snap domain.Snapshot
		require.NoError(t, json.Unmarshal(body, &snap))
		assert.Len(t, snap.Devices, 2)
		assert.Len(t, snap.Connections, 1)
		assert.Len(t, snap.Regions, 2)
	})

	t.Run("yaml", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/api/export/yaml", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, bytes.Contains(body, []byte("cable_id: 10")))
	})

	t.Run("unknown format", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodGet, "/api/export/ansible", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// busyReconciler always reports a run in progress
type busyReconciler struct {
	calls atomic.Int32
}

func (b *busyReconciler) Run(ctx context.Context) (*service.RunResult, error) {
	b.calls.Add(1)
	return nil, service.ErrSyncInProgress
}

func (b *busyReconciler) Status() service.Status {
	return service.Status{Phase: service.PhaseSavingDevices, Running: true}
}

func TestDirectWritesDuringSync(t *testing.T) {
	env := newTestEnv(t, sqlite.WithBusyTimeout(50*time.Millisecond))
	ctx := context.Background()

	// hold the write lock the way an atomic run does
	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ClearDevices(ctx))

	resp, body := env.do(t, http.MethodPost, "/api/positions", `{"1": {"x": 1, "y": 2}}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))

	resp, _ = env.do(t, http.MethodPost, "/api/regions", `{"name": "Lab", "x": 0, "y": 0, "width": 10, "height": 10}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/regions/3", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, tx.Rollback())
	resp, body = env.do(t, http.MethodPost, "/api/positions", `{"1": {"x": 1, "y": 2}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestTriggerSyncConflict(t *testing.T) {
	rec := &busyReconciler{}
	inv := NewInventoryHandler(nil, nil, nil, rec)
	srv := httptest.NewServer(NewRouter(RouterConfig{Inventory: inv}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/update", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.EqualValues(t, 1, rec.calls.Load())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","phase":"IDLE"}`, string(body))

	env.do(t, http.MethodGet, "/api/devices", "")
	resp, body = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "netmirror_api_requests_total")
	assert.Contains(t, string(body), `route="/api/devices"`)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/devices", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.local")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
