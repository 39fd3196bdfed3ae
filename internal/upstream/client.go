// Package upstream fetches collections from the source-of-truth inventory API.
//
// Every call is a single attempt: transport errors and non-2xx responses
// fail immediately and the caller decides whether to abort. How many pages
// make up a collection is delegated to a Paginator; the default SinglePage
// strategy asks for 1000 items once.
package upstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"netmirror/internal/logging"
	"netmirror/internal/metrics"
)

// Collection endpoints
const (
	EndpointDevices = "dcim/devices/"
	EndpointCables  = "dcim/cables/"
	EndpointSites   = "dcim/sites/"
)

// ErrNotConfigured is returned when no upstream URL is set
var ErrNotConfigured = errors.New("upstream URL not configured")

// StatusError is returned for a non-2xx upstream response
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Options configures a Client
type Options struct {
	BaseURL            string
	Token              string
	AuthScheme         string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Paginator          Paginator
	// HTTPClient overrides the transport built from Timeout/InsecureSkipVerify
	HTTPClient *http.Client
}

// Client talks to the inventory API
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	token      string
	authScheme string

	http      *http.Client
	paginator Paginator
}

// New creates a new upstream client
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed inventory hosts
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	paginator := opts.Paginator
	if paginator == nil {
		paginator = SinglePage{Limit: DefaultPageLimit}
	}

	scheme := opts.AuthScheme
	if scheme == "" {
		scheme = "Token"
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		authScheme: scheme,
		http:       httpClient,
		paginator:  paginator,
	}
}

// SetCredentials swaps base URL and token, e.g. after a config reload
func (c *Client) SetCredentials(baseURL, token, scheme string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.token = token
	if scheme != "" {
		c.authScheme = scheme
	}
}

// FetchCollection returns the results array of a collection endpoint
func (c *Client) FetchCollection(ctx context.Context, endpoint string, params url.Values) ([]json.RawMessage, error) {
	items, err := c.paginator.Collect(ctx, endpoint, params, c.fetchPage)
	if err != nil {
		return nil, err
	}
	logging.Debug().
		Str("endpoint", endpoint).
		Str("pagination", c.paginator.Name()).
		Int("items", len(items)).
		Msg("Fetched upstream collection")
	return items, nil
}

// Devices fetches all devices with nested role objects
func (c *Client) Devices(ctx context.Context) ([]DeviceRecord, error) {
	return fetchTyped[DeviceRecord](ctx, c, EndpointDevices)
}

// Cables fetches all cables with nested termination objects. A cable that
// does not decode is returned with Malformed set so the caller can skip it.
func (c *Client) Cables(ctx context.Context) ([]CableRecord, error) {
	raw, err := c.FetchCollection(ctx, EndpointCables, depthParams())
	if err != nil {
		return nil, err
	}

	out := make([]CableRecord, 0, len(raw))
	for i, item := range raw {
		var rec CableRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			rec = CableRecord{
				ID:        peekID(item),
				Malformed: fmt.Errorf("decode %s[%d]: %w", EndpointCables, i, err),
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Sites fetches all sites
func (c *Client) Sites(ctx context.Context) ([]SiteRecord, error) {
	return fetchTyped[SiteRecord](ctx, c, EndpointSites)
}

func fetchTyped[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	raw, err := c.FetchCollection(ctx, endpoint, depthParams())
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(raw))
	for i, item := range raw {
		var rec T
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", endpoint, i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func depthParams() url.Values {
	return url.Values{"_depth": {"1"}}
}

// peekID reads just the id of a record that failed to decode
func peekID(item json.RawMessage) *int64 {
	var head struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(item, &head); err != nil {
		return nil
	}
	return head.ID
}

// fetchPage performs one GET and decodes the envelope
func (c *Client) fetchPage(ctx context.Context, target string, params url.Values) (*Page, error) {
	c.mu.RLock()
	base, token, scheme := c.baseURL, c.token, c.authScheme
	c.mu.RUnlock()

	if base == "" && !isAbsolute(target) {
		return nil, ErrNotConfigured
	}

	u := target
	if !isAbsolute(target) {
		u = base + "/" + strings.TrimLeft(target, "/")
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", scheme+" "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstream(metricsEndpoint(target), 0, start)
		return nil, fmt.Errorf("upstream %s: %w", target, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstream(metricsEndpoint(target), resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Endpoint: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode %s: %w", target, err)
	}
	return &page, nil
}

func isAbsolute(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

// metricsEndpoint keeps label cardinality bounded when following next links
func metricsEndpoint(target string) string {
	if !isAbsolute(target) {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}
	for _, ep := range []string{EndpointDevices, EndpointCables, EndpointSites} {
		if strings.HasSuffix(u.Path, "/"+ep) {
			return ep
		}
	}
	return "other"
}
