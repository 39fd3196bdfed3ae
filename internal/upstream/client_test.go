package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSendsAuthAndSinglePageParams(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/dcim/devices/", r.URL.Path)
		assert.Equal(t, "Token abc123", r.Header.Get("Authorization"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "1", r.URL.Query().Get("_depth"))

		// next is ignored by the single page strategy
		fmt.Fprint(w, `{"count": 3, "next": "http://example/next", "results": [
			{"id": 1, "name": "sw1", "role": {"id": 4, "name": "switch"}},
			{"id": 2, "name": "r1"}
		]}`)
	})

	c := New(Options{BaseURL: srv.URL + "/api/", Token: "abc123"})
	devices, err := c.Devices(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	require.Len(t, devices, 2)
	assert.Equal(t, int64(1), devices[0].ID)
	require.NotNil(t, devices[0].Role)
	assert.Equal(t, "switch", devices[0].Role.Name)
	assert.Nil(t, devices[1].Role)
}

func TestClientBearerScheme(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"results": []}`)
	})

	c := New(Options{BaseURL: srv.URL, Token: "tok", AuthScheme: "Bearer"})
	sites, err := c.Sites(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestClientNon2xxFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid token", http.StatusForbidden)
	})

	c := New(Options{BaseURL: srv.URL, Token: "bad"})
	_, err := c.Cables(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "invalid token", statusErr.Body)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Options{BaseURL: base})
	_, err := c.Devices(context.Background())
	require.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestClientNotConfigured(t *testing.T) {
	c := New(Options{})
	_, err := c.Devices(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientDecodesCableTerminations(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{
			"id": 77,
			"a_terminations": [{"object_type": "dcim.interface", "object_id": 5, "object": {"id": 5, "name": "eth0", "device": {"id": 1, "name": "sw1"}}}],
			"b_terminations": []
		}]}`)
	})

	c := New(Options{BaseURL: srv.URL})
	cables, err := c.Cables(context.Background())
	require.NoError(t, err)
	require.Len(t, cables, 1)
	require.NotNil(t, cables[0].ID)
	assert.Equal(t, int64(77), *cables[0].ID)
	assert.NoError(t, cables[0].Malformed)
	require.Len(t, cables[0].ATerminations, 1)
	assert.Equal(t, "eth0", *cables[0].ATerminations[0].Object.Name)
	assert.Equal(t, "sw1", cables[0].ATerminations[0].Object.Device.Name)
	assert.Empty(t, cables[0].BTerminations)
}

func TestClientMarksMalformedCables(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [
			{"id": 10, "a_terminations": [{"object": {"id": "x1", "name": "eth0"}}], "b_terminations": []},
			{"id": 11, "a_terminations": [], "b_terminations": []},
			"not-an-object"
		]}`)
	})

	c := New(Options{BaseURL: srv.URL})
	cables, err := c.Cables(context.Background())
	require.NoError(t, err)
	require.Len(t, cables, 3)

	assert.Error(t, cables[0].Malformed)
	require.NotNil(t, cables[0].ID)
	assert.Equal(t, int64(10), *cables[0].ID)
	assert.Empty(t, cables[0].ATerminations)

	assert.NoError(t, cables[1].Malformed)
	assert.Equal(t, int64(11), *cables[1].ID)

	assert.Error(t, cables[2].Malformed)
	assert.Nil(t, cables[2].ID)
}

func TestFollowNextPaginator(t *testing.T) {
	var srv *httptest.Server
	srv = newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "":
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			fmt.Fprintf(w, `{"next": "%s/dcim/sites/?limit=2&offset=2", "results": [{"id": 1, "name": "a"}, {"id": 2, "name": "b"}]}`, srv.URL)
		case "2":
			fmt.Fprint(w, `{"next": null, "results": [{"id": 3, "name": "c"}]}`)
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	})

	c := New(Options{BaseURL: srv.URL, Paginator: FollowNext{Limit: 2}})
	sites, err := c.Sites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 3)
	assert.Equal(t, "c", sites[2].Name)
}

func TestFollowNextStopsAtMaxPages(t *testing.T) {
	var srv *httptest.Server
	srv = newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"next": "%s/dcim/sites/?limit=1&offset=1", "results": [{"id": 1}]}`, srv.URL)
	})

	c := New(Options{BaseURL: srv.URL, Paginator: FollowNext{Limit: 1, MaxPages: 3}})
	_, err := c.Sites(context.Background())
	assert.ErrorContains(t, err, "more than 3 pages")
}

func TestSetCredentials(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token rotated", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"results": []}`)
	})

	c := New(Options{BaseURL: "http://stale.invalid", Token: "old"})
	c.SetCredentials(srv.URL, "rotated", "")
	_, err := c.Devices(context.Background())
	require.NoError(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	assert.Equal(t, EndpointSites, metricsEndpoint(EndpointSites))
	assert.Equal(t, EndpointCables, metricsEndpoint("https://nb/api/dcim/cables/?offset=1000"))
	assert.Equal(t, "other", metricsEndpoint("https://nb/api/ipam/prefixes/"))
}
