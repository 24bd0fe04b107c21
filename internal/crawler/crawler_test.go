package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/avgs/ljmigrate/internal/config"
	"github.com/avgs/ljmigrate/internal/export"
	"github.com/avgs/ljmigrate/internal/extract"
	"github.com/avgs/ljmigrate/internal/fetcher"
	"github.com/avgs/ljmigrate/internal/observability"
	"github.com/avgs/ljmigrate/internal/resolver"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testArchive struct {
	crawler *Crawler
	writer  *export.Writer
	srv     *httptest.Server
	dir     string
	metrics *observability.Metrics
}

func newTestArchive(t *testing.T, mux *http.ServeMux) *testArchive {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Engine.PolitenessDelay = 0
	cfg.Export.OutputDir = dir

	metrics := observability.NewMetrics(testLogger)
	f, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	w, err := export.NewWriter(&cfg.Export, srv.URL, metrics, testLogger)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	res := resolver.New(f, metrics, testLogger)
	ext := extract.New(f, res, metrics, testLogger)

	return &testArchive{
		crawler: New(cfg, f, ext, w, metrics, testLogger),
		writer:  w,
		srv:     srv,
		dir:     dir,
		metrics: metrics,
	}
}

func postEntry(title, postURL string) string {
	return fmt.Sprintf(`
		<div class="asset-header">
			<div class="asset-header-content-inner">
				<h2 class="asset-name page-header2"><a href="%s">%s</a></h2>
			</div>
		</div>
		<div class="asset-content"><p>body of %s</p></div>`, postURL, title, title)
}

func postPage(date, comments string) string {
	return fmt.Sprintf(`<html><body>
		<abbr class="datetime">%s</abbr>
		%s
	</body></html>`, date, comments)
}

func commentBlock(permalink, parentLink string) string {
	parent := ""
	if parentLink != "" {
		parent = fmt.Sprintf(`<a href="%s">Parent</a>`, parentLink)
	}
	return fmt.Sprintf(`
		<div class="comment-inner">
			<span class="ljuser"><a class="i-ljuser-profile" href="http://alice.livejournal.com/profile"><b>alice</b></a></span>
			<abbr class="datetime comment-datetime" title="Mar. 4, 2015 10:35 AM (UTC)">earlier</abbr>
			<div class="comment-body"><p>a reply</p></div>
			<div class="comment-links"><a class="permalink" href="%s">Link</a> %s</div>
		</div>`, permalink, parent)
}

func TestRunWalksArchive(t *testing.T) {
	mux := http.NewServeMux()
	a := newTestArchive(t, mux)
	base := a.srv.URL

	// Two listing pages linked by a.prev, two posts on the first, one on
	// the second. Post one carries a threaded comment, post two a top-level
	// one.
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>%s%s<a class="prev" href="%s/page2">Previous</a></body></html>`,
			postEntry("Alpha", base+"/post1"), postEntry("Beta", base+"/post2"), base)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>%s</body></html>`, postEntry("Gamma", base+"/post3"))
	})

	mux.HandleFunc("/post1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, postPage("Mar. 4th, 2015 at 10:30 AM",
			commentBlock(base+"/cmt1", base+"/post1?thread=5")))
	})
	mux.HandleFunc("/post2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, postPage("Mar. 5, 2015 at 8:00 AM", commentBlock(base+"/cmt2", "")))
	})
	mux.HandleFunc("/post3", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, postPage("June 1st, 2014 at 9:05 PM", ""))
	})
	mux.HandleFunc("/cmt1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div id="ljcmt9001">c</div></body></html>`)
	})
	mux.HandleFunc("/cmt2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div id="ljcmt9002">c</div></body></html>`)
	})

	if err := a.crawler.Run(context.Background(), base+"/", 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := a.writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	chunk2015 := readFile(t, filepath.Join(a.dir, "livejournal_export_2015_1.xml"))
	if got := strings.Count(chunk2015, "<item>"); got != 2 {
		t.Fatalf("2015 chunk has %d items, want 2", got)
	}
	for _, want := range []string{"Alpha", "Beta", "2015-03-04 10:30:00", "2015-03-05 08:00:00"} {
		if !strings.Contains(chunk2015, want) {
			t.Errorf("2015 chunk missing %q", want)
		}
	}
	if !strings.Contains(chunk2015, "<wp:comment_parent>5</wp:comment_parent>") {
		t.Errorf("threaded comment lost its parent id:\n%s", chunk2015)
	}
	if !strings.Contains(chunk2015, "<wp:comment_parent>0</wp:comment_parent>") {
		t.Errorf("top-level comment should carry parent 0")
	}
	if !strings.Contains(chunk2015, "<wp:comment_id>9001</wp:comment_id>") {
		t.Errorf("resolved comment id missing")
	}

	chunk2014 := readFile(t, filepath.Join(a.dir, "livejournal_export_2014_1.xml"))
	if !strings.Contains(chunk2014, "Gamma") || !strings.Contains(chunk2014, "2014-06-01 21:05:00") {
		t.Errorf("2014 chunk wrong:\n%s", chunk2014)
	}

	if got := a.metrics.PagesFetched.Load(); got != 2 {
		t.Errorf("PagesFetched = %d, want 2", got)
	}
	if got := a.metrics.PostsExtracted.Load(); got != 3 {
		t.Errorf("PostsExtracted = %d, want 3", got)
	}
}

func TestRunHonorsLimit(t *testing.T) {
	mux := http.NewServeMux()
	a := newTestArchive(t, mux)
	base := a.srv.URL

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>%s%s<a class="prev" href="%s/never">Previous</a></body></html>`,
			postEntry("Alpha", base+"/post1"), postEntry("Beta", base+"/post2"), base)
	})
	mux.HandleFunc("/post1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, postPage("Mar. 4, 2015 at 10:30 AM", ""))
	})
	mux.HandleFunc("/post2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, postPage("Mar. 5, 2015 at 8:00 AM", ""))
	})
	mux.HandleFunc("/never", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("crawl continued past the limit")
	})

	if err := a.crawler.Run(context.Background(), base+"/", 1); err != nil {
		t.Fatalf("Run: %v", err)
	}

	chunk := readFile(t, filepath.Join(a.dir, "livejournal_export_2015_1.xml"))
	if got := strings.Count(chunk, "<item>"); got != 1 {
		t.Errorf("chunk has %d items, want 1", got)
	}
}

func TestRunFetchErrorIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	a := newTestArchive(t, mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})

	err := a.crawler.Run(context.Background(), a.srv.URL+"/", 0)
	if err == nil {
		t.Fatal("Run returned nil on a page-level fetch error")
	}
	if got := a.metrics.PageFetchFailures.Load(); got != 1 {
		t.Errorf("PageFetchFailures = %d, want 1", got)
	}
}

// A fragment without a locatable header is dropped from the page's posts
// without failing the page.
func TestCrawlPageSkipsHeaderlessFragment(t *testing.T) {
	mux := http.NewServeMux()
	a := newTestArchive(t, mux)
	base := a.srv.URL

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<div class="asset-content"><p>orphan fragment</p></div>
			%s
		</body></html>`, postEntry("Alpha", base+"/post1"))
	})
	mux.HandleFunc("/post1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, postPage("Mar. 4, 2015 at 10:30 AM", ""))
	})

	posts, fragments, prevURL, err := a.crawler.CrawlPage(context.Background(), base+"/")
	if err != nil {
		t.Fatalf("CrawlPage: %v", err)
	}
	if fragments != 2 {
		t.Errorf("fragments = %d, want 2", fragments)
	}
	if prevURL != "" {
		t.Errorf("prevURL = %q, want empty", prevURL)
	}
	if len(posts) != 1 || posts[0].Title != "Alpha" {
		titles := make([]string, 0, len(posts))
		for _, p := range posts {
			titles = append(titles, p.Title)
		}
		sort.Strings(titles)
		t.Errorf("posts = %v, want just Alpha", titles)
	}
	if got := a.metrics.ExtractFailures.Load(); got != 1 {
		t.Errorf("ExtractFailures = %d, want 1", got)
	}
}

// A page whose only fragment fails extraction must not end the walk: the
// end-of-archive signal is a page with no fragments, not a page with no
// extractable posts.
func TestRunContinuesPastAllFailedPage(t *testing.T) {
	mux := http.NewServeMux()
	a := newTestArchive(t, mux)
	base := a.srv.URL

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<div class="asset-content"><p>orphan fragment</p></div>
			<a class="prev" href="%s/page2">Previous</a>
		</body></html>`, base)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>%s</body></html>`, postEntry("Gamma", base+"/post3"))
	})
	mux.HandleFunc("/post3", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, postPage("June 1st, 2014 at 9:05 PM", ""))
	})

	if err := a.crawler.Run(context.Background(), base+"/", 0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	chunk := readFile(t, filepath.Join(a.dir, "livejournal_export_2014_1.xml"))
	if !strings.Contains(chunk, "Gamma") {
		t.Errorf("post beyond the failed page was not exported:\n%s", chunk)
	}
	if got := a.metrics.PagesFetched.Load(); got != 2 {
		t.Errorf("PagesFetched = %d, want 2", got)
	}
	if got := a.metrics.ExtractFailures.Load(); got != 1 {
		t.Errorf("ExtractFailures = %d, want 1", got)
	}
}

func TestRunStopsOnFragmentlessPage(t *testing.T) {
	mux := http.NewServeMux()
	a := newTestArchive(t, mux)
	base := a.srv.URL

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>%s<a class="prev" href="%s/page2">Previous</a></body></html>`,
			postEntry("Alpha", base+"/post1"), base)
	})
	mux.HandleFunc("/post1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, postPage("Mar. 4, 2015 at 10:30 AM", ""))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body><p>empty archive tail</p><a class="prev" href="%s/never">Previous</a></body></html>`, base)
	})
	mux.HandleFunc("/never", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("crawl continued past a fragmentless page")
	})

	if err := a.crawler.Run(context.Background(), base+"/", 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	chunk := readFile(t, filepath.Join(a.dir, "livejournal_export_2015_1.xml"))
	if !strings.Contains(chunk, "Alpha") {
		t.Errorf("first page's post missing:\n%s", chunk)
	}
}

func TestArchiveOne(t *testing.T) {
	mux := http.NewServeMux()
	a := newTestArchive(t, mux)
	base := a.srv.URL

	mux.HandleFunc("/post1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			%s
			<abbr class="datetime">Mar. 4, 2015 at 10:30 AM</abbr>
		</body></html>`, postEntry("Solo", base+"/post1"))
	})

	if err := a.crawler.ArchiveOne(context.Background(), base+"/post1"); err != nil {
		t.Fatalf("ArchiveOne: %v", err)
	}

	chunk := readFile(t, filepath.Join(a.dir, "livejournal_export_2015_1.xml"))
	if !strings.Contains(chunk, "Solo") {
		t.Errorf("chunk missing the post:\n%s", chunk)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
