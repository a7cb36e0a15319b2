// Package jsonfile provides durable stores backed by one JSON document per
// logical store. Writes are crash-safe (unique temp file + atomic rename,
// never an in-place truncate) and all read-modify-write cycles for one file
// serialize through a per-file lock. Both guarantees are single-process:
// running two instances against the same data directory is unsupported.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNoChange can be returned by an Update callback to skip persisting. The
// Update then succeeds without touching the file.
var ErrNoChange = errors.New("jsonfile: no change")

// File is one durable JSON document of shape T.
type File[T any] struct {
	path string
	def  func() T
	log  zerolog.Logger

	// Serializes every read-modify-write cycle. The rename below is atomic
	// at the OS level, but without this lock two writers could both read
	// the pre-update document and the second write would erase the first.
	mu sync.Mutex
}

// New creates a handle for the document at path. def builds the default
// document used when the file is absent or unreadable.
func New[T any](path string, def func() T, log zerolog.Logger) *File[T] {
	return &File[T]{path: path, def: def, log: log}
}

// Path returns the backing file path.
func (f *File[T]) Path() string {
	return f.path
}

// Init ensures the parent directory and the file exist, writing the default
// document if absent. Idempotent; called implicitly on every read.
func (f *File[T]) Init() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if _, err := os.Stat(f.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	return f.writeAll(f.def())
}

// Read loads and parses the document. Malformed content is treated as data
// loss, not a fatal error: the default document is returned and a warning
// logged, so guard checks never fail on a half-written file. I/O errors are
// returned.
func (f *File[T]) Read() (T, error) {
	if err := f.Init(); err != nil {
		return f.def(), err
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return f.def(), fmt.Errorf("read %s: %w", f.path, err)
	}

	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		f.log.Warn().Err(err).Str("path", f.path).
			Msg("store file corrupt, falling back to default document")
		return f.def(), nil
	}
	return doc, nil
}

// Update runs fn on the current document under the write lock and persists
// the result atomically. fn may return ErrNoChange to skip the write; any
// other error aborts the update, leaving the file untouched.
func (f *File[T]) Update(ctx context.Context, fn func(doc *T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.Read()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return f.writeAll(doc)
}

// writeAll serializes doc to a uniquely named temp file in the same directory
// and renames it over the target. A failure before the rename leaves the
// original file intact.
func (f *File[T]) writeAll(doc T) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", f.path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", f.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", f.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp for %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", f.path, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename over %s: %w", f.path, err)
	}
	return nil
}
