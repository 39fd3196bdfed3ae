package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
)

// DefaultPageLimit is the page size asked for by SinglePage.
// Collections larger than this are truncated; it is a scale ceiling.
const DefaultPageLimit = 1000

// Page is one decoded response envelope
type Page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

// PageFunc fetches one page. target is either an endpoint path with params
// or an absolute URL returned in a previous page's next link.
type PageFunc func(ctx context.Context, target string, params url.Values) (*Page, error)

// Paginator decides how many pages make up a collection
type Paginator interface {
	Collect(ctx context.Context, endpoint string, params url.Values, fetch PageFunc) ([]json.RawMessage, error)
	Name() string
}

// SinglePage requests one page of Limit items and never iterates
type SinglePage struct {
	Limit int
}

// Name returns the strategy identifier
func (p SinglePage) Name() string { return "single" }

// Collect fetches exactly one page
func (p SinglePage) Collect(ctx context.Context, endpoint string, params url.Values, fetch PageFunc) ([]json.RawMessage, error) {
	q := cloneValues(params)
	q.Set("limit", strconv.Itoa(limitOrDefault(p.Limit)))

	page, err := fetch(ctx, endpoint, q)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// FollowNext walks the envelope's next links until exhausted
type FollowNext struct {
	Limit int
	// MaxPages bounds the walk; zero means 1000 pages
	MaxPages int
}

// Name returns the strategy identifier
func (p FollowNext) Name() string { return "follow" }

// Collect fetches pages until next is null
func (p FollowNext) Collect(ctx context.Context, endpoint string, params url.Values, fetch PageFunc) ([]json.RawMessage, error) {
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = 1000
	}

	q := cloneValues(params)
	q.Set("limit", strconv.Itoa(limitOrDefault(p.Limit)))

	var results []json.RawMessage
	target := endpoint
	for i := 0; i < maxPages; i++ {
		page, err := fetch(ctx, target, q)
		if err != nil {
			return nil, err
		}
		results = append(results, page.Results...)

		if page.Next == nil || *page.Next == "" {
			return results, nil
		}
		// next carries its own query string
		target = *page.Next
		q = nil
	}

	return nil, fmt.Errorf("%s: more than %d pages", endpoint, maxPages)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	return limit
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
