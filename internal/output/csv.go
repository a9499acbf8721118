// Package output writes enriched records as UTF-8 CSV.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

// CSVSink appends records to a CSV file. Rows become permanent only when
// Commit follows a Flush; until then Rollback or Close cut the file back to
// the last committed length, whatever the csv writer already spilled to disk.
type CSVSink struct {
	file *os.File
	w    *csv.Writer

	rows          int
	flushed       int64
	flushedRows   int
	committed     int64
	committedRows int
}

// OpenCSV opens path for writing. When fresh is set the file is truncated;
// otherwise rows are appended. The header is written whenever the file starts
// out empty, so it appears exactly once.
func OpenCSV(path string, fresh bool) (*CSVSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY
	if fresh {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat output %s: %w", path, err)
	}

	s := &CSVSink{file: f, w: csv.NewWriter(f), flushed: info.Size(), committed: info.Size()}
	if info.Size() == 0 {
		if err := s.w.Write(vocab.Header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := s.Flush(); err != nil {
			_ = f.Close()
			return nil, err
		}
		s.Commit()
	}
	return s, nil
}

// Write buffers one row per record.
func (s *CSVSink) Write(records []vocab.Record) error {
	for _, rec := range records {
		if err := s.w.Write(rec.Row()); err != nil {
			return fmt.Errorf("write row %q: %w", rec.Word, err)
		}
	}
	s.rows += len(records)
	return nil
}

// Flush pushes buffered rows to the file and syncs it to disk.
func (s *CSVSink) Flush() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}
	s.flushed, s.flushedRows = info.Size(), s.rows
	return nil
}

// Commit makes the rows of the last successful Flush permanent.
func (s *CSVSink) Commit() {
	s.committed, s.committedRows = s.flushed, s.flushedRows
}

// Rollback drops rows written since the last Commit, including any the csv
// writer already pushed to the file.
func (s *CSVSink) Rollback() error {
	s.w = csv.NewWriter(s.file)
	s.rows, s.flushedRows = s.committedRows, s.committedRows
	s.flushed = s.committed
	if err := s.file.Truncate(s.committed); err != nil {
		return fmt.Errorf("truncate output: %w", err)
	}
	if _, err := s.file.Seek(s.committed, io.SeekStart); err != nil {
		return fmt.Errorf("seek output: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	return nil
}

// Rows reports how many records were written through this sink and not
// rolled back.
func (s *CSVSink) Rows() int {
	return s.rows
}

// Close rolls back uncommitted rows and closes the file.
func (s *CSVSink) Close() error {
	if s.file == nil {
		return nil
	}
	rbErr := s.Rollback()
	err := s.file.Close()
	s.file = nil
	if rbErr != nil {
		return rbErr
	}
	if err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
