package dealintel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrMissingCredentials is returned when the search API key or engine ID is unset.
var ErrMissingCredentials = errors.New("search API credentials not configured")

// Result is one web search hit.
type Result struct {
	Title   string
	Snippet string
	Link    string
}

// Searcher runs a free-text web search.
type Searcher interface {
	// Name identifies the source and is stored as the record's source type.
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// GoogleOptions configures the Custom Search JSON API client.
type GoogleOptions struct {
	BaseURL      string
	APIKey       string
	EngineID     string
	Num          int
	DateRestrict string
	Timeout      time.Duration
}

// GoogleSearcher queries the Google Custom Search JSON API.
type GoogleSearcher struct {
	opts   GoogleOptions
	client *resty.Client
}

// NewGoogleSearcher creates a Google searcher. It fails with
// ErrMissingCredentials before any request is made if either credential is empty.
func NewGoogleSearcher(opts GoogleOptions) (*GoogleSearcher, error) {
	if opts.APIKey == "" || opts.EngineID == "" {
		return nil, ErrMissingCredentials
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if opts.Num <= 0 || opts.Num > 10 {
		opts.Num = 10
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	return &GoogleSearcher{opts: opts, client: client}, nil
}

// Name implements Searcher.
func (g *GoogleSearcher) Name() string { return "google" }

// Search implements Searcher.
func (g *GoogleSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	params := map[string]string{
		"key": g.opts.APIKey,
		"cx":  g.opts.EngineID,
		"q":   query,
		"num": strconv.Itoa(g.opts.Num),
	}
	if g.opts.DateRestrict != "" {
		params["dateRestrict"] = g.opts.DateRestrict
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(g.opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search API returned %d", resp.StatusCode())
	}

	var body struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := make([]Result, 0, len(body.Items))
	for _, it := range body.Items {
		results = append(results, Result{
			Title:   strings.TrimSpace(it.Title),
			Snippet: strings.TrimSpace(it.Snippet),
			Link:    strings.TrimSpace(it.Link),
		})
	}
	return results, nil
}
