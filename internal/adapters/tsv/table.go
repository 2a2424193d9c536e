// Package tsv implements the durable user and session tables on tab-separated files.
//
// Every mutation reads the whole file, builds the new contents in a temporary file
// next to it and renames that file over the live path. Mutators of one table are
// serialized by a mutex owned by the table; readers take no lock because the rename
// guarantees they observe either the old or the new file in full.
//
// Lookups are linear scans and mutations rewrite the whole file, so every operation
// is O(rows). That is fine for administrative user bases, not for high churn.
package tsv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/bilyanhadzhi/auth-server-mjt/internal/errors"
)

const (
	separator = "\t"
	nullValue = "NULL"
)

// ErrInvalidField is returned when a value would break the row framing.
var ErrInvalidField = errors.New("field contains a tab or line break")

// codec converts between a typed record and its columns.
type codec[T any] struct {
	columns int
	encode  func(T) []string
	decode  func([]string) (T, error)
}

// entry is one line of the file. Corrupt lines keep their raw text so a rewrite
// carries them over untouched.
type entry[T any] struct {
	value T
	raw   string
	ok    bool
}

func valid[T any](v T) entry[T] { return entry[T]{value: v, ok: true} }

// table guards a single file. A path must be owned by exactly one table per process.
type table[T any] struct {
	path   string
	codec  codec[T]
	logger *slog.Logger
	mu     sync.Mutex
}

func newTable[T any](path string, c codec[T], logger *slog.Logger) (*table[T], error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("table path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &table[T]{
		path:   path,
		codec:  c,
		logger: logger.With("component", "tsv", "table", filepath.Base(path)),
	}
	if err := t.ensureFile(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *table[T]) ensureFile() error {
	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return apperrors.Storage(err, t.path, "create table directory")
		}
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return apperrors.Storage(err, t.path, "create table file")
	}
	if err := f.Close(); err != nil {
		return apperrors.Storage(err, t.path, "close table file")
	}
	return nil
}

// load reads every line. Lines with the wrong column count or unparsable values are
// logged and returned as corrupt entries.
func (t *table[T]) load(ctx context.Context) ([]entry[T], error) {
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage(err, t.path, "open table")
	}
	defer f.Close()

	var entries []entry[T]
	// No line length limit: an oversized line is just another corrupt row.
	r := bufio.NewReader(f)
	lineNo := 0
	for {
		line, readErr := r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, apperrors.Storage(readErr, t.path, "read table")
		}
		if line == "" && readErr != nil {
			break
		}
		lineNo++
		text := strings.TrimRight(line, "\r\n")
		if text == "" {
			continue
		}
		fields := strings.Split(text, separator)
		if len(fields) != t.codec.columns {
			t.logger.WarnContext(ctx, "skipping corrupt row",
				"line", lineNo, "columns", len(fields), "want_columns", t.codec.columns)
			entries = append(entries, entry[T]{raw: text})
			continue
		}
		v, decodeErr := t.codec.decode(fields)
		if decodeErr != nil {
			t.logger.WarnContext(ctx, "skipping corrupt row", "line", lineNo, "error", decodeErr)
			entries = append(entries, entry[T]{raw: text})
			continue
		}
		entries = append(entries, valid(v))
	}
	return entries, nil
}

// find returns the first valid record matching pred.
func (t *table[T]) find(ctx context.Context, pred func(T) bool) (T, bool, error) {
	var zero T
	entries, err := t.load(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, e := range entries {
		if e.ok && pred(e.value) {
			return e.value, true, nil
		}
	}
	return zero, false, nil
}

// values returns every valid record.
func (t *table[T]) values(ctx context.Context) ([]T, error) {
	entries, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if e.ok {
			out = append(out, e.value)
		}
	}
	return out, nil
}

// mutate runs the read-modify-rename sequence under the table lock. fn reports
// whether it changed anything; when it did not, the file is left alone.
func (t *table[T]) mutate(ctx context.Context, fn func([]entry[T]) ([]entry[T], bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.load(ctx)
	if err != nil {
		return err
	}
	next, changed, err := fn(entries)
	if err != nil || !changed {
		return err
	}
	return t.replace(next)
}

func (t *table[T]) replace(entries []entry[T]) error {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.ok {
			lines = append(lines, e.raw)
			continue
		}
		fields := t.codec.encode(e.value)
		for _, f := range fields {
			if strings.ContainsAny(f, "\t\r\n") {
				return ErrInvalidField
			}
		}
		lines = append(lines, strings.Join(fields, separator))
	}
	return writeAtomic(t.path, lines)
}

// writeAtomic writes lines to a temporary file in the target directory and renames
// it over path.
func writeAtomic(path string, lines []string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.Storage(err, path, "create temporary table")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("remove temporary table: %w", rmErr))
			}
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, l := range lines {
		if _, werr := w.WriteString(l + "\n"); werr != nil {
			return errors.Join(apperrors.Storage(werr, path, "write temporary table"), tmp.Close())
		}
	}
	if ferr := w.Flush(); ferr != nil {
		return errors.Join(apperrors.Storage(ferr, path, "flush temporary table"), tmp.Close())
	}
	if serr := tmp.Sync(); serr != nil {
		return errors.Join(apperrors.Storage(serr, path, "sync temporary table"), tmp.Close())
	}
	if cerr := tmp.Close(); cerr != nil {
		return apperrors.Storage(cerr, path, "close temporary table")
	}
	if rerr := os.Rename(tmpName, path); rerr != nil {
		return apperrors.Storage(rerr, path, "replace table")
	}
	return nil
}
