// Package crawler walks a journal archive backward, one page at a time,
// extracting every post on a page concurrently and flushing the results
// before following the "previous" link. Pagination is strictly sequential:
// the previous-page URL is only known once the current page is parsed.
package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/avgs/ljmigrate/internal/config"
	"github.com/avgs/ljmigrate/internal/export"
	"github.com/avgs/ljmigrate/internal/extract"
	"github.com/avgs/ljmigrate/internal/fetcher"
	"github.com/avgs/ljmigrate/internal/observability"
	"github.com/avgs/ljmigrate/internal/types"
)

const (
	fragmentSelector = "div.asset-content"
	prevSelector     = "a.prev"
)

// Crawler drives the page walk. Workers only extract; all shared state
// (the export buffer, the sequence counters) is mutated by the single
// crawl loop, so no locking crosses the component boundary.
type Crawler struct {
	cfg       *config.Config
	fetcher   fetcher.Fetcher
	extractor *extract.Extractor
	writer    *export.Writer
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates a Crawler.
func New(cfg *config.Config, f fetcher.Fetcher, e *extract.Extractor, w *export.Writer, metrics *observability.Metrics, logger *slog.Logger) *Crawler {
	return &Crawler{
		cfg:       cfg,
		fetcher:   f,
		extractor: e,
		writer:    w,
		metrics:   metrics,
		logger:    logger.With("component", "crawler"),
	}
}

// CrawlPage fetches one archive page and extracts every post fragment on it
// under a bounded worker pool. A single fragment's failure is logged and
// excluded; it never aborts its siblings. The returned posts are in
// completion order, not page order. The fragment count is reported
// separately from the posts: the walk's end-of-archive signal is a page
// with no fragments at all, not a page whose fragments all failed. The last
// string is the previous-page URL, or "" when the page has none.
func (c *Crawler) CrawlPage(ctx context.Context, pageURL string) ([]*types.Post, int, string, error) {
	resp, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		c.metrics.PageFetchFailures.Add(1)
		return nil, 0, "", err
	}
	c.metrics.PagesFetched.Add(1)
	c.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	doc, err := resp.Document()
	if err != nil {
		c.metrics.PageFetchFailures.Add(1)
		return nil, 0, "", &types.ParseError{URL: pageURL, Err: err}
	}

	var fragments []*goquery.Selection
	doc.Find(fragmentSelector).Each(func(_ int, sel *goquery.Selection) {
		fragments = append(fragments, sel)
	})

	c.logger.Info("page fetched", "url", pageURL, "posts", len(fragments))

	posts := c.extractAll(ctx, fragments)

	prevURL, _ := doc.Find(prevSelector).First().Attr("href")
	return posts, len(fragments), prevURL, nil
}

// extractAll runs one extraction task per fragment, at most
// engine.concurrency at a time.
func (c *Crawler) extractAll(ctx context.Context, fragments []*goquery.Selection) []*types.Post {
	sem := make(chan struct{}, c.cfg.Engine.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var posts []*types.Post

	for _, fragment := range fragments {
		wg.Add(1)
		sem <- struct{}{}
		go func(fragment *goquery.Selection) {
			defer wg.Done()
			defer func() { <-sem }()

			post, err := c.extractor.Extract(ctx, fragment)
			if err != nil {
				c.logger.Error("post extraction failed", "error", err)
				return
			}
			mu.Lock()
			posts = append(posts, post)
			mu.Unlock()
		}(fragment)
	}

	wg.Wait()
	return posts
}

// Run walks the archive backward from startURL, flushing each page's posts
// before fetching the next. limit > 0 stops the walk once that many posts
// have been handed to the writer; 0 means walk to the end. The walk
// terminates on a page with no post fragments, a page with no previous
// link, or a page-level fetch error, which is returned to the caller.
// A page whose fragments all fail extraction flushes nothing but does not
// end the walk.
func (c *Crawler) Run(ctx context.Context, startURL string, limit int) error {
	url := startURL
	handed := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		posts, fragments, prevURL, err := c.CrawlPage(ctx, url)
		if err != nil {
			return err
		}
		if fragments == 0 {
			c.logger.Info("no post fragments on page, stopping", "url", url)
			return nil
		}

		if limit > 0 && handed+len(posts) > limit {
			posts = posts[:limit-handed]
		}
		if len(posts) > 0 {
			c.writer.Flush(posts)
			handed += len(posts)
		}

		if limit > 0 && handed >= limit {
			c.logger.Info("post limit reached", "limit", limit)
			return nil
		}
		if prevURL == "" {
			c.logger.Info("no previous page, archive exhausted", "url", url)
			return nil
		}

		url = prevURL
		if delay := c.cfg.Engine.PolitenessDelay; delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ArchiveOne extracts and exports the single post on a direct post page.
func (c *Crawler) ArchiveOne(ctx context.Context, postURL string) error {
	resp, err := c.fetcher.Fetch(ctx, postURL)
	if err != nil {
		c.metrics.PageFetchFailures.Add(1)
		return err
	}
	c.metrics.PagesFetched.Add(1)
	c.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	doc, err := resp.Document()
	if err != nil {
		return &types.ParseError{URL: postURL, Err: err}
	}

	post, err := c.extractor.ExtractSingle(ctx, doc)
	if err != nil {
		return err
	}

	c.writer.Flush([]*types.Post{post})
	return nil
}
