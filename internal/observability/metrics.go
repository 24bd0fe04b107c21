package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational metrics for the export run. Every
// degrade-to-sentinel and diversion path in the pipeline increments a
// counter here, so failure rates are observable rather than only logged.
type Metrics struct {
	// Fetch metrics
	PagesFetched      atomic.Int64
	PageFetchFailures atomic.Int64
	SecondaryFetches  atomic.Int64
	BytesDownloaded   atomic.Int64

	// Extraction metrics
	PostsExtracted        atomic.Int64
	ExtractFailures       atomic.Int64
	SentinelSubstitutions atomic.Int64
	CommentsExtracted     atomic.Int64

	// Resolver metrics
	ResolverFailures   atomic.Int64
	FallbackCommentIDs atomic.Int64

	// Export metrics
	ChunksWritten    atomic.Int64
	ChunkFailures    atomic.Int64
	PostsExported    atomic.Int64
	PostsDiverted    atomic.Int64
	CommentsDiverted atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"ljmigrate_pages_fetched_total", "Total archive pages fetched", m.PagesFetched.Load()},
		{"ljmigrate_page_fetch_failures_total", "Total page-level fetch failures", m.PageFetchFailures.Load()},
		{"ljmigrate_secondary_fetches_total", "Total per-post and per-comment secondary fetches", m.SecondaryFetches.Load()},
		{"ljmigrate_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"ljmigrate_posts_extracted_total", "Total posts extracted", m.PostsExtracted.Load()},
		{"ljmigrate_extract_failures_total", "Total post extractions abandoned", m.ExtractFailures.Load()},
		{"ljmigrate_sentinel_substitutions_total", "Total fields replaced by a sentinel value", m.SentinelSubstitutions.Load()},
		{"ljmigrate_comments_extracted_total", "Total comments extracted", m.CommentsExtracted.Load()},
		{"ljmigrate_resolver_failures_total", "Total id/parent resolver lookups that returned empty", m.ResolverFailures.Load()},
		{"ljmigrate_fallback_comment_ids_total", "Total comments assigned a local fallback id", m.FallbackCommentIDs.Load()},
		{"ljmigrate_chunks_written_total", "Total chunk files written", m.ChunksWritten.Load()},
		{"ljmigrate_chunk_failures_total", "Total chunk write failures", m.ChunkFailures.Load()},
		{"ljmigrate_posts_exported_total", "Total posts written to chunks", m.PostsExported.Load()},
		{"ljmigrate_posts_diverted_total", "Total posts diverted for unparseable dates", m.PostsDiverted.Load()},
		{"ljmigrate_comments_diverted_total", "Total comments skipped by the strict date reparse", m.CommentsDiverted.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_fetched":          m.PagesFetched.Load(),
		"page_fetch_failures":    m.PageFetchFailures.Load(),
		"secondary_fetches":      m.SecondaryFetches.Load(),
		"bytes_downloaded":       m.BytesDownloaded.Load(),
		"posts_extracted":        m.PostsExtracted.Load(),
		"extract_failures":       m.ExtractFailures.Load(),
		"sentinel_substitutions": m.SentinelSubstitutions.Load(),
		"comments_extracted":     m.CommentsExtracted.Load(),
		"resolver_failures":      m.ResolverFailures.Load(),
		"fallback_comment_ids":   m.FallbackCommentIDs.Load(),
		"chunks_written":         m.ChunksWritten.Load(),
		"chunk_failures":         m.ChunkFailures.Load(),
		"posts_exported":         m.PostsExported.Load(),
		"posts_diverted":         m.PostsDiverted.Load(),
		"comments_diverted":      m.CommentsDiverted.Load(),
	}
}
