package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterDoc struct {
	Count int `json:"count"`
}

func newCounterFile(t *testing.T) *File[counterDoc] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counter.json")
	return New(path, func() counterDoc { return counterDoc{} }, zerolog.Nop())
}

func TestFile_InitCreatesDefaultDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "store.json")
	f := New(path, func() counterDoc { return counterDoc{Count: 7} }, zerolog.Nop())

	require.NoError(t, f.Init())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc counterDoc
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 7, doc.Count)

	// Idempotent: a second Init must not reset existing content.
	require.NoError(t, f.Update(context.Background(), func(d *counterDoc) error {
		d.Count = 42
		return nil
	}))
	require.NoError(t, f.Init())
	doc, err = f.Read()
	require.NoError(t, err)
	assert.Equal(t, 42, doc.Count)
}

func TestFile_ReadCorruptFallsBackToDefault(t *testing.T) {
	f := newCounterFile(t)
	require.NoError(t, f.Init())
	require.NoError(t, os.WriteFile(f.Path(), []byte(`{"count": [truncated`), 0o644))

	doc, err := f.Read()
	require.NoError(t, err, "corruption is data loss, not an error")
	assert.Equal(t, 0, doc.Count)
}

func TestFile_UpdatePersistsAtomically(t *testing.T) {
	f := newCounterFile(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.Update(ctx, func(d *counterDoc) error {
			d.Count++
			return nil
		}))
	}

	doc, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Count)

	// No temp droppings left behind after successful writes.
	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}

func TestFile_UpdateErrNoChangeSkipsWrite(t *testing.T) {
	f := newCounterFile(t)
	ctx := context.Background()
	require.NoError(t, f.Update(ctx, func(d *counterDoc) error {
		d.Count = 5
		return nil
	}))

	before, err := os.ReadFile(f.Path())
	require.NoError(t, err)

	require.NoError(t, f.Update(ctx, func(d *counterDoc) error {
		d.Count = 99 // Discarded.
		return ErrNoChange
	}))

	after, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFile_UpdateCallbackErrorLeavesFileUntouched(t *testing.T) {
	f := newCounterFile(t)
	ctx := context.Background()
	require.NoError(t, f.Update(ctx, func(d *counterDoc) error {
		d.Count = 5
		return nil
	}))

	boom := errors.New("boom")
	err := f.Update(ctx, func(d *counterDoc) error {
		d.Count = 0
		return boom
	})
	require.ErrorIs(t, err, boom)

	doc, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 5, doc.Count)
}

func TestFile_CrashedWriterLeavesTargetValid(t *testing.T) {
	// A writer that dies between temp-file write and rename leaves a stray
	// temp sibling; the committed document must be unaffected by it.
	f := newCounterFile(t)
	ctx := context.Background()
	require.NoError(t, f.Update(ctx, func(d *counterDoc) error {
		d.Count = 11
		return nil
	}))

	stray := f.Path() + ".tmp-1234"
	require.NoError(t, os.WriteFile(stray, []byte(`{"count": 99`), 0o644))

	doc, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 11, doc.Count)

	raw, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.True(t, json.Valid(raw), "target file must stay valid JSON")
}

func TestFile_ConcurrentUpdatesLoseNoIncrements(t *testing.T) {
	f := newCounterFile(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.Update(ctx, func(d *counterDoc) error {
				d.Count++
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, n, doc.Count, "interleaved read-modify-write lost updates")
}

func TestFile_UpdateHonorsCanceledContext(t *testing.T) {
	f := newCounterFile(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.Update(ctx, func(d *counterDoc) error {
		d.Count++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
