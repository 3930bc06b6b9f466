package dealintel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedSearcher runs queries against an RSS/Atom news search endpoint, such
// as Google News search feeds.
type FeedSearcher struct {
	urlTemplate string
	maxItems    int
	parser      *gofeed.Parser
}

// NewFeedSearcher creates a feed searcher. urlTemplate must contain one %s,
// which is replaced by the URL-escaped query.
func NewFeedSearcher(urlTemplate string, maxItems int, timeout time.Duration) (*FeedSearcher, error) {
	if strings.Count(urlTemplate, "%s") != 1 {
		return nil, fmt.Errorf("feed url template must contain exactly one %%s: %q", urlTemplate)
	}
	if maxItems <= 0 {
		maxItems = 20
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	return &FeedSearcher{urlTemplate: urlTemplate, maxItems: maxItems, parser: parser}, nil
}

// Name implements Searcher.
func (f *FeedSearcher) Name() string { return "news_feed" }

// Search implements Searcher.
func (f *FeedSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	feedURL := fmt.Sprintf(f.urlTemplate, url.QueryEscape(query))
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, item := range feed.Items {
		if len(results) >= f.maxItems {
			break
		}
		if r, ok := feedResult(item); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func feedResult(item *gofeed.Item) (Result, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return Result{}, false
	}

	snippet := item.Description
	if snippet == "" {
		snippet = item.Content
	}
	return Result{Title: title, Snippet: stripHTML(snippet), Link: link}, true
}

func stripHTML(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	s := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(b.String())
	return strings.Join(strings.Fields(s), " ")
}
