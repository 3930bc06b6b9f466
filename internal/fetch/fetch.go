// Package fetch downloads article pages and extracts their readable text.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	log "github.com/sirupsen/logrus"
)

const (
	userAgent    = "nilintel/1.0 (deal research)"
	maxBodyBytes = 5 << 20
	minTextChars = 100
)

// ErrDomainSkipped is returned for URLs on a domain that already failed with
// an HTTP error during this fetcher's lifetime.
var ErrDomainSkipped = errors.New("domain previously failed")

// Fetcher fetches article text via HTTP + readability extraction.
type Fetcher struct {
	client *http.Client

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// New creates a fetcher with the given request timeout.
func New(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		failedDomains: make(map[string]struct{}),
	}
}

// Fetch returns the readable text of the page at articleURL. An empty string
// with a nil error means the page had no extractable article. After an HTTP
// error status, later URLs on the same domain fail fast with ErrDomainSkipped.
func (f *Fetcher) Fetch(ctx context.Context, articleURL string) (string, error) {
	parsed, err := url.Parse(articleURL)
	if err != nil {
		return "", err
	}
	domain := strings.ToLower(parsed.Host)
	if f.domainFailed(domain) {
		return "", ErrDomainSkipped
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		f.markFailed(domain)
		log.Printf("HTTP %d for %s; skipping remaining from %s", resp.StatusCode, articleURL, domain)
		return "", &HTTPError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		log.Debugf("No readable article at %s: %v", articleURL, err)
		return "", nil
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) < minTextChars {
		return "", nil
	}
	return text, nil
}

func (f *Fetcher) domainFailed(domain string) bool {
	if domain == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, failed := f.failedDomains[domain]
	return failed
}

func (f *Fetcher) markFailed(domain string) {
	if domain == "" {
		return
	}
	f.mu.Lock()
	f.failedDomains[domain] = struct{}{}
	f.mu.Unlock()
}

// HTTPError is an error status returned by the article host.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return "fetch: " + http.StatusText(e.Code)
}
