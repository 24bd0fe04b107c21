package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/avgs/ljmigrate/internal/config"
	"github.com/avgs/ljmigrate/internal/fetcher"
	"github.com/avgs/ljmigrate/internal/observability"
	"github.com/avgs/ljmigrate/internal/resolver"
	"github.com/avgs/ljmigrate/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestExtractor(t *testing.T, mux *http.ServeMux) (*Extractor, *httptest.Server, *observability.Metrics) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	f, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	metrics := observability.NewMetrics(testLogger)
	res := resolver.New(f, metrics, testLogger)
	return New(f, res, metrics, testLogger), srv, metrics
}

func fragmentOf(t *testing.T, page string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	frag := doc.Find("div.asset-content").First()
	if frag.Length() == 0 {
		t.Fatalf("fixture has no asset-content fragment")
	}
	return frag
}

func archivePage(postURL string) string {
	return fmt.Sprintf(`<html><body>
		<div class="asset-header">
			<div class="asset-header-content">
				<div class="asset-header-content-inner">
					<h2 class="asset-name page-header2"><a href="%s">First Post</a></h2>
				</div>
			</div>
		</div>
		<div class="asset-content"><p>hello world</p></div>
	</body></html>`, postURL)
}

func TestExtract(t *testing.T) {
	mux := http.NewServeMux()
	e, srv, metrics := newTestExtractor(t, mux)

	postURL := srv.URL + "/post1"
	mux.HandleFunc("/post1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<abbr class="datetime">Mar. 4th, 2015 at 10:30 AM</abbr>
			<div class="comment-inner">
				<span class="ljuser"><a class="i-ljuser-profile" href="http://alice.livejournal.com/profile"><b>alice</b></a></span>
				<abbr class="datetime comment-datetime" title="Mar. 4, 2015 10:35 AM (UTC)">10 hours ago</abbr>
				<div class="comment-body"><p>nice post</p></div>
				<div class="comment-links"><a class="permalink" href="%s/cmt1">Link</a> <a href="%s/post1?thread=5">Parent</a></div>
			</div>
		</body></html>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/cmt1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div id="ljcmt9001">comment</div></body></html>`)
	})

	post, err := e.Extract(context.Background(), fragmentOf(t, archivePage(postURL)))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if post.Title != "First Post" {
		t.Errorf("Title = %q", post.Title)
	}
	if post.Link != postURL {
		t.Errorf("Link = %q, want %q", post.Link, postURL)
	}
	if post.Date != "2015-03-04 10:30:00" {
		t.Errorf("Date = %q, want canonical with ordinal stripped", post.Date)
	}
	if !strings.Contains(post.Content, "hello world") {
		t.Errorf("Content = %q", post.Content)
	}

	if len(post.Comments) != 1 {
		t.Fatalf("got %d comments, want 1", len(post.Comments))
	}
	c := post.Comments[0]
	if c.ID != "9001" {
		t.Errorf("comment ID = %q, want resolved 9001", c.ID)
	}
	if c.ParentID != "5" {
		t.Errorf("comment ParentID = %q, want 5", c.ParentID)
	}
	if c.Author != "alice" {
		t.Errorf("comment Author = %q", c.Author)
	}
	if c.AuthorProfileLink != "http://alice.livejournal.com/profile" {
		t.Errorf("comment profile = %q", c.AuthorProfileLink)
	}
	// Title attribute wins over the rendered relative text; the zone marker
	// is stripped and the result stays in the raw comment form.
	if c.Date != "Mar. 4, 2015 10:35 AM" {
		t.Errorf("comment Date = %q", c.Date)
	}
	if !strings.Contains(c.Text, "nice post") {
		t.Errorf("comment Text = %q", c.Text)
	}

	if got := metrics.PostsExtracted.Load(); got != 1 {
		t.Errorf("PostsExtracted = %d, want 1", got)
	}
	if got := metrics.CommentsExtracted.Load(); got != 1 {
		t.Errorf("CommentsExtracted = %d, want 1", got)
	}
}

func TestExtractMissingHeader(t *testing.T) {
	e, _, metrics := newTestExtractor(t, http.NewServeMux())

	page := `<html><body><div class="asset-content"><p>orphan</p></div></body></html>`
	_, err := e.Extract(context.Background(), fragmentOf(t, page))
	if !errors.Is(err, types.ErrNoHeader) {
		t.Fatalf("err = %v, want ErrNoHeader", err)
	}
	if got := metrics.ExtractFailures.Load(); got != 1 {
		t.Errorf("ExtractFailures = %d, want 1", got)
	}
}

func TestExtractSentinels(t *testing.T) {
	e, _, metrics := newTestExtractor(t, http.NewServeMux())

	// Header present but empty: the post is attributable, so every missing
	// field degrades to its sentinel instead of failing the extraction.
	page := `<html><body>
		<div class="asset-header-content-inner"></div>
		<div class="asset-content"><p>body</p></div>
	</body></html>`

	post, err := e.Extract(context.Background(), fragmentOf(t, page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if post.Title != types.NoTitle {
		t.Errorf("Title = %q, want %q", post.Title, types.NoTitle)
	}
	if post.Link != types.NoLink {
		t.Errorf("Link = %q, want %q", post.Link, types.NoLink)
	}
	if post.Date != "" {
		t.Errorf("Date = %q, want empty when the permalink cannot be fetched", post.Date)
	}
	if len(post.Comments) != 0 {
		t.Errorf("Comments = %v, want none", post.Comments)
	}
	if metrics.SentinelSubstitutions.Load() < 2 {
		t.Errorf("SentinelSubstitutions = %d, want at least 2", metrics.SentinelSubstitutions.Load())
	}
}

func TestExtractCommentFallbackID(t *testing.T) {
	mux := http.NewServeMux()
	e, srv, metrics := newTestExtractor(t, mux)

	postURL := srv.URL + "/post1"
	mux.HandleFunc("/post1", func(w http.ResponseWriter, _ *http.Request) {
		// Bare comment block: no author, no date, no permalink, no body.
		fmt.Fprint(w, `<html><body>
			<abbr class="datetime">Mar. 4, 2015 at 10:30 AM</abbr>
			<div class="comment-inner"></div>
		</body></html>`)
	})

	post, err := e.Extract(context.Background(), fragmentOf(t, archivePage(postURL)))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(post.Comments) != 1 {
		t.Fatalf("got %d comments, want 1", len(post.Comments))
	}

	c := post.Comments[0]
	if c.ID != "1" {
		t.Errorf("comment ID = %q, want fallback sequence 1", c.ID)
	}
	if c.ParentID != "" {
		t.Errorf("comment ParentID = %q, want empty for top level", c.ParentID)
	}
	if c.Author != types.UnknownAuthor {
		t.Errorf("Author = %q, want %q", c.Author, types.UnknownAuthor)
	}
	if c.AuthorProfileLink != types.NoProfileLink {
		t.Errorf("profile = %q, want %q", c.AuthorProfileLink, types.NoProfileLink)
	}
	if c.Date != types.NoDate {
		t.Errorf("Date = %q, want %q", c.Date, types.NoDate)
	}
	if c.Link != types.NoLink {
		t.Errorf("Link = %q, want %q", c.Link, types.NoLink)
	}
	if c.Text != types.NoComment {
		t.Errorf("Text = %q, want %q", c.Text, types.NoComment)
	}
	if got := metrics.FallbackCommentIDs.Load(); got != 1 {
		t.Errorf("FallbackCommentIDs = %d, want 1", got)
	}
}

func TestExtractSingle(t *testing.T) {
	mux := http.NewServeMux()
	e, srv, _ := newTestExtractor(t, mux)

	postURL := srv.URL + "/post1"
	mux.HandleFunc("/post1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, archivePage(srv.URL+"/post1"))
	})

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(archivePage(postURL)))
	if err != nil {
		t.Fatal(err)
	}
	post, err := e.ExtractSingle(context.Background(), doc)
	if err != nil {
		t.Fatalf("ExtractSingle: %v", err)
	}
	if post.Title != "First Post" {
		t.Errorf("Title = %q", post.Title)
	}

	empty, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.ExtractSingle(context.Background(), empty); !errors.Is(err, types.ErrNoPosts) {
		t.Errorf("err = %v, want ErrNoPosts", err)
	}
}
