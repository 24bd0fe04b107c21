// Package export serializes completed posts into WXR chunk files, keeps the
// run's index and diversion ledgers, and owns the per-year sequence
// counters. Counters advance monotonically for the run's lifetime and are
// never rolled back, even when a chunk write fails.
package export

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/avgs/ljmigrate/internal/config"
	"github.com/avgs/ljmigrate/internal/dates"
	"github.com/avgs/ljmigrate/internal/observability"
	"github.com/avgs/ljmigrate/internal/types"
)

// Ledger and log filenames within the output directory.
const (
	indexFile         = "index.csv"
	postDivertFile    = "invalid_post_dates.csv"
	commentDivertFile = "invalid_comment_dates.csv"
	runLogFile        = "log.txt"
)

// Mirror receives every successfully chunked post. Optional; a nil Mirror
// is skipped.
type Mirror interface {
	Store(ctx context.Context, posts []*types.Post) error
	Close(ctx context.Context) error
}

// Writer buffers nothing itself: each Flush partitions the posts it is
// handed by year, splits them into fixed-size batches, and writes one WXR
// chunk per batch. Ownership of a Post transfers here on Flush.
type Writer struct {
	dir       string
	baseURL   string
	batchSize int

	mu     sync.Mutex
	seq    map[int]int // year -> next chunk sequence number
	postID map[int]int // year -> last assigned post id
	rows   []types.IndexRow

	index      *csvLedger
	postDivert *csvLedger
	cmtDivert  *csvLedger
	runLog     *RunLog
	mirror     Mirror

	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Writer rooted at cfg.OutputDir.
func NewWriter(cfg *config.ExportConfig, baseURL string, metrics *observability.Metrics, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &Writer{
		dir:        cfg.OutputDir,
		baseURL:    baseURL,
		batchSize:  cfg.BatchSize,
		seq:        make(map[int]int),
		postID:     make(map[int]int),
		index:      newCSVLedger(filepath.Join(cfg.OutputDir, indexFile), "Title", "Date", "XML File"),
		postDivert: newCSVLedger(filepath.Join(cfg.OutputDir, postDivertFile), "Title", "URL"),
		cmtDivert:  newCSVLedger(filepath.Join(cfg.OutputDir, commentDivertFile), "Title", "URL"),
		runLog:     NewRunLog(filepath.Join(cfg.OutputDir, runLogFile)),
		metrics:    metrics,
		logger:     logger.With("component", "export_writer"),
	}, nil
}

// SetMirror attaches an archive mirror that receives exported posts.
func (w *Writer) SetMirror(m Mirror) {
	w.mirror = m
}

// Flush partitions posts by calendar year and writes them out in batches of
// at most batchSize, preserving arrival order. A post whose date is not a
// canonical timestamp is diverted to the post ledger and excluded from
// every chunk; it is not retried. Chunk write failures are absorbed: the
// batch's posts are lost to the export and the sequence number is consumed.
func (w *Writer) Flush(posts []*types.Post) {
	w.mu.Lock()
	defer w.mu.Unlock()

	byYear := make(map[int][]*types.Post)
	var years []int
	for _, post := range posts {
		year, ok := dates.Year(post.Date)
		if !ok {
			w.divertPost(post)
			continue
		}
		if _, seen := byYear[year]; !seen {
			years = append(years, year)
		}
		byYear[year] = append(byYear[year], post)
	}

	for _, year := range years {
		yearPosts := byYear[year]
		if _, ok := w.seq[year]; !ok {
			w.seq[year] = 1
		}
		for start := 0; start < len(yearPosts); start += w.batchSize {
			end := start + w.batchSize
			if end > len(yearPosts) {
				end = len(yearPosts)
			}
			w.writeChunk(year, yearPosts[start:end])
		}
	}
}

// writeChunk serializes one batch into a chunk file and records its posts
// in the index ledger. The year's sequence number advances whether or not
// the write succeeds.
func (w *Writer) writeChunk(year int, posts []*types.Post) {
	filename := fmt.Sprintf("livejournal_export_%d_%d.xml", year, w.seq[year])
	w.seq[year]++

	doc := newWXRDocument(w.baseURL)
	for _, post := range posts {
		doc.Channel.Items = append(doc.Channel.Items, w.buildItem(year, post))
	}

	data, err := xml.Marshal(doc)
	if err == nil {
		err = os.WriteFile(filepath.Join(w.dir, filename), data, 0o644)
	}
	if err != nil {
		w.metrics.ChunkFailures.Add(1)
		w.logger.Error("failed to save chunk", "file", filename, "error", err)
		for _, post := range posts {
			if lerr := w.runLog.Failed(post.Title, post.Link); lerr != nil {
				w.logger.Error("run log write failed", "error", lerr)
			}
		}
		return
	}

	w.metrics.ChunksWritten.Add(1)
	w.metrics.PostsExported.Add(int64(len(posts)))
	w.logger.Info("saved chunk", "file", filename, "posts", len(posts))

	for _, post := range posts {
		if lerr := w.runLog.Saved(post.Title, post.Link, filename); lerr != nil {
			w.logger.Error("run log write failed", "error", lerr)
		}
		row := types.IndexRow{Title: post.Title, Date: post.Date, ChunkFile: filename}
		w.rows = append(w.rows, row)
		if lerr := w.index.Append(row.Title, row.Date, row.ChunkFile); lerr != nil {
			w.logger.Error("index ledger write failed", "error", lerr)
		}
	}

	if w.mirror != nil {
		if err := w.mirror.Store(context.Background(), posts); err != nil {
			w.logger.Error("mirror store failed", "error", err)
		}
	}
}

// buildItem converts one post into a WXR item, assigning the next per-year
// post id. Comments are re-parsed with the strict comment-date layout:
// a comment that fails it is skipped and its owning post is recorded in the
// comment diversion ledger, even when the post's own date was valid.
func (w *Writer) buildItem(year int, post *types.Post) wxrItem {
	w.postID[year]++
	pid := strconv.Itoa(w.postID[year])

	item := wxrItem{
		Title:      post.Title,
		Creator:    AuthorAttribution,
		Content:    post.Content + "\n\n<a href='" + post.Link + "'>Original Post</a>",
		Excerpt:    "",
		PostID:     pid,
		PostDate:   post.Date,
		PostParent: "0",
		MenuOrder:  "0",
		Status:     "publish",
		PostType:   "post",
	}

	for i := range post.Comments {
		comment := &post.Comments[i]
		comment.PostID = pid
		canonical, ok := dates.ReparseComment(comment.Date)
		if !ok {
			w.divertComment(post)
			continue
		}
		parent := comment.ParentID
		if parent == "" {
			parent = "0"
		}
		item.Comments = append(item.Comments, wxrComment{
			Type:        "comment",
			Approved:    "1",
			Parent:      parent,
			ID:          comment.ID,
			PostID:      comment.PostID,
			Author:      comment.Author,
			AuthorEmail: "",
			AuthorURL:   comment.AuthorProfileLink,
			Date:        canonical,
			Content:     comment.Text,
		})
	}

	return item
}

// divertPost records a post whose date failed normalization and excludes it
// from the export.
func (w *Writer) divertPost(post *types.Post) {
	w.metrics.PostsDiverted.Add(1)
	w.logger.Warn("post diverted, unparseable date", "title", post.Title, "link", post.Link, "date", post.Date)
	if err := w.postDivert.Append(post.Title, post.Link); err != nil {
		w.logger.Error("post diversion ledger write failed", "error", err)
	}
	if err := w.runLog.Failed(post.Title, post.Link); err != nil {
		w.logger.Error("run log write failed", "error", err)
	}
}

// divertComment records the owning post of a comment whose strict date
// reparse failed. The post itself stays in its chunk; only the comment is
// dropped.
func (w *Writer) divertComment(post *types.Post) {
	w.metrics.CommentsDiverted.Add(1)
	w.logger.Warn("comment diverted, strict date reparse failed", "title", post.Title, "link", post.Link)
	if err := w.cmtDivert.Append(post.Title, post.Link); err != nil {
		w.logger.Error("comment diversion ledger write failed", "error", err)
	}
	if err := w.runLog.Failed(post.Title, post.Link); err != nil {
		w.logger.Error("run log write failed", "error", err)
	}
}

// Close writes the final timestamped full-index file and shuts down the
// mirror.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	filename := fmt.Sprintf("livejournal_export_%s.csv", time.Now().Format("20060102150405"))
	final := newCSVLedger(filepath.Join(w.dir, filename), "Title", "Date", "XML File")
	for _, row := range w.rows {
		if err := final.Append(row.Title, row.Date, row.ChunkFile); err != nil {
			return err
		}
	}
	w.logger.Info("saved final index", "file", filename, "posts", len(w.rows))

	if w.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.mirror.Close(ctx); err != nil {
			return fmt.Errorf("close mirror: %w", err)
		}
	}
	return nil
}
