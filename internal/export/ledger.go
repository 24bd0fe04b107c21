package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/avgs/ljmigrate/internal/types"
)

// csvLedger is an append-only tabular file. The header row is written on
// first use; each Append opens, writes, and closes, so the ledger survives
// a crash mid-run with everything recorded so far intact.
type csvLedger struct {
	path   string
	header []string
	mu     sync.Mutex
}

func newCSVLedger(path string, header ...string) *csvLedger {
	return &csvLedger{path: path, header: header}
}

// Append writes one row, creating the file with its header if needed.
func (l *csvLedger) Append(row ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &types.ExportError{File: l.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &types.ExportError{File: l.path, Err: err}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(l.header); err != nil {
			return &types.ExportError{File: l.path, Err: err}
		}
	}
	if err := w.Write(row); err != nil {
		return &types.ExportError{File: l.path, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &types.ExportError{File: l.path, Err: err}
	}
	return nil
}

// RunLog is the plain-text append-only record of every save and failure
// event, independent of the process log stream.
type RunLog struct {
	path string
	mu   sync.Mutex
}

// NewRunLog creates a run log writing to path.
func NewRunLog(path string) *RunLog {
	return &RunLog{path: path}
}

// Saved records a post successfully written to a chunk file.
func (l *RunLog) Saved(title, link, chunkFile string) error {
	return l.append(fmt.Sprintf("Saved post: %s - %s to %s\n", title, link, chunkFile))
}

// Failed records a post that could not be saved.
func (l *RunLog) Failed(title, link string) error {
	return l.append(fmt.Sprintf("Failed to save post: %s - %s\n", title, link))
}

func (l *RunLog) append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &types.ExportError{File: l.path, Err: err}
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return &types.ExportError{File: l.path, Err: err}
	}
	return nil
}
