// Package extract turns one post fragment on an archive page into a full
// Post record: title and permalink from the nearest preceding header, date
// and comments from secondary fetches of the permalink page.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"

	"github.com/avgs/ljmigrate/internal/dates"
	"github.com/avgs/ljmigrate/internal/fetcher"
	"github.com/avgs/ljmigrate/internal/observability"
	"github.com/avgs/ljmigrate/internal/resolver"
	"github.com/avgs/ljmigrate/internal/types"
)

// Selectors for the LiveJournal page structure.
const (
	headerTag         = "div"
	headerClass       = "asset-header-content-inner"
	titleSelector     = "h2.asset-name.page-header2"
	commentSelector   = "div.comment-inner"
	authorSelector    = "span.ljuser"
	profileSelector   = "a.i-ljuser-profile"
	cmtDateSelector   = "abbr.datetime.comment-datetime"
	cmtLinksSelector  = "div.comment-links"
	permalinkSelector = "a.permalink"
	cmtBodySelector   = "div.comment-body"
	postDateSelector  = "abbr.datetime"
	parentSelector    = `a[href*="thread="]`
)

// Extractor extracts posts and their comments. The fallback comment-id
// counter lives here with lifecycle one run; it is not namespaced against
// remote ids, so a collision with a resolved id is possible. Known gap.
type Extractor struct {
	fetcher  fetcher.Fetcher
	resolver *resolver.Resolver
	metrics  *observability.Metrics
	logger   *slog.Logger

	commentSeq atomic.Int64
}

// New creates an Extractor.
func New(f fetcher.Fetcher, r *resolver.Resolver, metrics *observability.Metrics, logger *slog.Logger) *Extractor {
	return &Extractor{
		fetcher:  f,
		resolver: r,
		metrics:  metrics,
		logger:   logger.With("component", "extractor"),
	}
}

// Extract builds a Post from one asset-content fragment. The enclosing
// header is located by a backward document-order walk, not strict ancestry;
// a fragment without one cannot be attributed and is abandoned with an
// error. Missing fields inside an attributable post degrade to sentinels.
func (e *Extractor) Extract(ctx context.Context, fragment *goquery.Selection) (*types.Post, error) {
	if len(fragment.Nodes) == 0 {
		return nil, &types.ParseError{Selector: headerClass, Err: types.ErrNoHeader}
	}

	headerNode := findPrevious(fragment.Nodes[0], headerTag, headerClass)
	if headerNode == nil {
		e.metrics.ExtractFailures.Add(1)
		return nil, &types.ParseError{Selector: headerClass, Err: types.ErrNoHeader}
	}
	header := goquery.NewDocumentFromNode(headerNode)

	title := strings.TrimSpace(header.Find(titleSelector).First().Text())
	if title == "" {
		title = types.NoTitle
		e.metrics.SentinelSubstitutions.Add(1)
	}

	link, ok := header.Find("a").First().Attr("href")
	if !ok {
		link = types.NoLink
		e.metrics.SentinelSubstitutions.Add(1)
	}

	content, err := fragment.Html()
	if err != nil {
		e.metrics.ExtractFailures.Add(1)
		return nil, &types.ParseError{Selector: "asset-content", Err: err}
	}

	post := &types.Post{
		Title:    title,
		Link:     link,
		Date:     e.extractDate(ctx, link),
		Content:  content,
		Comments: e.extractComments(ctx, link),
	}

	e.metrics.PostsExtracted.Add(1)
	e.logger.Debug("post extracted",
		"title", post.Title,
		"link", post.Link,
		"date", post.Date,
		"comments", len(post.Comments),
	)
	return post, nil
}

// extractDate fetches the post's own page and normalizes the date rendered
// there. The listing page also shows a date, but themes render it
// inconsistently; the permalink page is authoritative. Returns "" when the
// fetch fails or no date element exists; the export layer diverts such
// posts.
func (e *Extractor) extractDate(ctx context.Context, postURL string) string {
	resp, err := e.fetcher.Fetch(ctx, postURL)
	if err != nil {
		e.logger.Error("post date fetch failed", "url", postURL, "error", err)
		return ""
	}
	e.metrics.SecondaryFetches.Add(1)
	e.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	doc, err := resp.Document()
	if err != nil {
		e.logger.Error("post date parse failed", "url", postURL, "error", err)
		return ""
	}

	el := doc.Find(postDateSelector).First()
	if el.Length() == 0 {
		e.logger.Warn("no date element on post page", "url", postURL)
		return ""
	}

	raw := dates.StripOrdinals(strings.TrimSpace(el.Text()))
	return dates.Normalize(raw)
}

// extractComments fetches the post page and assembles its comment list.
// Any failure yields an empty list, never an error: a post without readable
// comments is still worth exporting.
func (e *Extractor) extractComments(ctx context.Context, postURL string) []types.Comment {
	resp, err := e.fetcher.Fetch(ctx, postURL)
	if err != nil {
		e.logger.Error("comments fetch failed", "url", postURL, "error", err)
		return nil
	}
	e.metrics.SecondaryFetches.Add(1)
	e.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	doc, err := resp.Document()
	if err != nil {
		e.logger.Error("comments parse failed", "url", postURL, "error", err)
		return nil
	}

	var comments []types.Comment
	doc.Find(commentSelector).Each(func(_ int, block *goquery.Selection) {
		comments = append(comments, e.extractComment(ctx, block))
	})
	return comments
}

// extractComment extracts a single comment block, resolving its remote id
// and parent thread through the resolver's secondary lookups.
func (e *Extractor) extractComment(ctx context.Context, block *goquery.Selection) types.Comment {
	seq := e.commentSeq.Add(1)

	authorEl := block.Find(authorSelector).First()
	author := strings.TrimSpace(authorEl.Text())
	if author == "" {
		author = types.UnknownAuthor
		e.metrics.SentinelSubstitutions.Add(1)
	}

	profile, ok := authorEl.Find(profileSelector).First().Attr("href")
	if !ok {
		profile = types.NoProfileLink
		e.metrics.SentinelSubstitutions.Add(1)
	}

	date := e.commentDate(block)

	link, ok := block.Find(cmtLinksSelector).First().Find(permalinkSelector).First().Attr("href")
	if !ok {
		link = types.NoLink
		e.metrics.SentinelSubstitutions.Add(1)
	}

	text := types.NoComment
	if body := block.Find(cmtBodySelector).First(); body.Length() > 0 {
		if inner, err := body.Html(); err == nil {
			text = inner
		}
	} else {
		e.metrics.SentinelSubstitutions.Add(1)
	}

	id := e.resolver.ResolveID(ctx, link)
	if id == "" {
		id = strconv.FormatInt(seq, 10)
		e.metrics.FallbackCommentIDs.Add(1)
	}

	parentID := ""
	if parentHref, ok := block.Find(parentSelector).First().Attr("href"); ok {
		parentID = e.resolver.ResolveParent(ctx, parentHref)
	}

	e.metrics.CommentsExtracted.Add(1)
	return types.Comment{
		ID:                id,
		ParentID:          parentID,
		Author:            author,
		AuthorProfileLink: profile,
		Date:              dates.Normalize(dates.StripZone(date)),
		Link:              link,
		Text:              text,
	}
}

// commentDate reads the comment's date, preferring the title attribute of
// the datetime element over its text.
func (e *Extractor) commentDate(block *goquery.Selection) string {
	el := block.Find(cmtDateSelector).First()
	if el.Length() == 0 {
		e.metrics.SentinelSubstitutions.Add(1)
		return types.NoDate
	}
	if title, ok := el.Attr("title"); ok {
		return title
	}
	return strings.TrimSpace(el.Text())
}

// ExtractSingle locates the lone post fragment on a direct post page and
// extracts it. Used by the save-one mode.
func (e *Extractor) ExtractSingle(ctx context.Context, doc *goquery.Document) (*types.Post, error) {
	fragment := doc.Find("div.asset-content").First()
	if fragment.Length() == 0 {
		return nil, fmt.Errorf("no post fragment on page: %w", types.ErrNoPosts)
	}
	return e.Extract(ctx, fragment)
}
