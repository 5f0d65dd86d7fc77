// Package logdisk stores harvested job logs as gzip files on the local
// filesystem, one file per job.
package logdisk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Store writes logs under <root>/<owner>_<name>/<runID>/<jobID>.log.gz.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a disk-backed log store rooted at root. The directory is
// created on first write, not here.
func NewStore(root string, logger *slog.Logger) *Store {
	return &Store{root: root, logger: logger}
}

// Store compresses raw and writes it to disk, returning the locator path
// relative to the store root.
func (s *Store) Store(_ context.Context, owner, name string, runID, jobID int64, raw []byte) (string, error) {
	rel := filepath.Join(
		fmt.Sprintf("%s_%s", sanitize(owner), sanitize(name)),
		fmt.Sprintf("%d", runID),
		fmt.Sprintf("%d.log.gz", jobID),
	)
	abs := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	// Write to a temp file and rename so a crash mid-write never leaves a
	// truncated gzip behind the final name.
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".log-*")
	if err != nil {
		return "", fmt.Errorf("create temp log file: %w", err)
	}
	tmpName := tmp.Name()

	gw := gzip.NewWriter(tmp)
	if _, err := gw.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("compress log: %w", err)
	}
	if err := gw.Close(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("flush compressed log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close temp log file: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("place log file: %w", err)
	}

	return rel, nil
}

// Read decompresses the log at locator and returns at most maxBytes of
// decompressed text. maxBytes <= 0 means no limit. Invalid UTF-8 sequences
// are replaced so callers always get printable text.
func (s *Store) Read(_ context.Context, locator string, maxBytes int64) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(locator))

	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", driven.ErrLogNotFound
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("open gzip stream: %w", err)
	}
	defer func() { _ = gr.Close() }()

	var r io.Reader = gr
	if maxBytes > 0 {
		r = io.LimitReader(gr, maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read log file: %w", err)
	}

	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// Sweep removes log files whose modification time is older than olderThan and
// returns how many were deleted. Empty run and repo directories left behind
// are pruned as well. A missing root means nothing to sweep.
func (s *Store) Sweep(olderThan time.Time) (int, error) {
	removed := 0

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			s.logger.Warn("sweep: cannot visit path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".log.gz") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("sweep: cannot stat log file", "path", path, "error", err)
			return nil
		}
		if !info.ModTime().Before(olderThan) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			s.logger.Warn("sweep: cannot remove log file", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("walk log directory: %w", err)
	}

	s.pruneEmptyDirs()

	return removed, nil
}

// pruneEmptyDirs removes empty run directories, then empty repo directories.
// Best effort: failures are ignored since the next sweep retries.
func (s *Store) pruneEmptyDirs() {
	repoDirs, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	for _, repoDir := range repoDirs {
		if !repoDir.IsDir() {
			continue
		}
		repoPath := filepath.Join(s.root, repoDir.Name())
		runDirs, err := os.ReadDir(repoPath)
		if err != nil {
			continue
		}
		for _, runDir := range runDirs {
			if runDir.IsDir() {
				// Remove succeeds only when empty.
				_ = os.Remove(filepath.Join(repoPath, runDir.Name()))
			}
		}
		_ = os.Remove(repoPath)
	}
}

// sanitize keeps path components safe when owner or repo names carry
// separators or dots.
func sanitize(part string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", "..", "-")
	return replacer.Replace(part)
}
