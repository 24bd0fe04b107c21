// Package resolver recovers comment and reply-thread identifiers. The
// rendered comment markup carries neither; both are only discoverable by
// fetching the comment's own permalink and scanning the result, one extra
// round-trip per comment.
package resolver

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/avgs/ljmigrate/internal/fetcher"
	"github.com/avgs/ljmigrate/internal/observability"
)

// commentIDPrefix is the element-id prefix LiveJournal gives comment
// container divs (id="ljcmt12345").
const commentIDPrefix = "ljcmt"

var threadIDRe = regexp.MustCompile(`thread=([0-9]+)`)

// Resolver performs the secondary lookups for comment identity and reply
// threading. Every failure is logged and counted, never returned: callers
// get an empty string and substitute their own fallback.
type Resolver struct {
	fetcher fetcher.Fetcher
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Resolver.
func New(f fetcher.Fetcher, metrics *observability.Metrics, logger *slog.Logger) *Resolver {
	return &Resolver{
		fetcher: f,
		metrics: metrics,
		logger:  logger.With("component", "resolver"),
	}
}

// ResolveID fetches the comment permalink and returns the comment's numeric
// identifier: the id attribute of the first element, in document order,
// whose id starts with "ljcmt", with the prefix stripped. Returns "" on any
// fetch or parse failure, or when no such element exists.
func (r *Resolver) ResolveID(ctx context.Context, permalink string) string {
	resp, err := r.fetcher.Fetch(ctx, permalink)
	if err != nil {
		r.metrics.ResolverFailures.Add(1)
		r.logger.Error("comment id fetch failed", "url", permalink, "error", err)
		return ""
	}
	r.metrics.SecondaryFetches.Add(1)
	r.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	doc, err := resp.HTMLNode()
	if err != nil {
		r.metrics.ResolverFailures.Add(1)
		r.logger.Error("comment id parse failed", "url", permalink, "error", err)
		return ""
	}

	nodes, err := htmlquery.QueryAll(doc, `//div[starts-with(@id,"ljcmt")]`)
	if err != nil || len(nodes) == 0 {
		r.metrics.ResolverFailures.Add(1)
		r.logger.Warn("no comment id element found", "url", permalink)
		return ""
	}

	id := htmlquery.SelectAttr(nodes[0], "id")
	return strings.TrimPrefix(id, commentIDPrefix)
}

// ResolveParent fetches the given parent-link URL and returns the reply
// thread identifier: the thread=<digits> query parameter of the first
// anchor, in document order, whose visible text contains "Parent". Returns
// "" on any failure or when no such anchor exists.
func (r *Resolver) ResolveParent(ctx context.Context, parentURL string) string {
	resp, err := r.fetcher.Fetch(ctx, parentURL)
	if err != nil {
		r.metrics.ResolverFailures.Add(1)
		r.logger.Error("parent thread fetch failed", "url", parentURL, "error", err)
		return ""
	}
	r.metrics.SecondaryFetches.Add(1)
	r.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	doc, err := resp.Document()
	if err != nil {
		r.metrics.ResolverFailures.Add(1)
		r.logger.Error("parent thread parse failed", "url", parentURL, "error", err)
		return ""
	}

	var threadID string
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), "Parent") {
			return true
		}
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		m := threadIDRe.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		threadID = m[1]
		return false
	})

	if threadID == "" {
		r.logger.Debug("no parent anchor found, top-level comment", "url", parentURL)
	}
	return threadID
}
