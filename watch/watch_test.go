package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	ingested []string
	removed  []string
}

func (s *recordingSink) Ingest(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested = append(s.ingested, filepath.Base(path))
	return nil
}

func (s *recordingSink) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, filepath.Base(path))
	return nil
}

func (s *recordingSink) snapshot() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ingested), slices.Clone(s.removed)
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()

	_, err := New(dir, nil)
	assert.ErrorIs(t, err, ErrSinkRequired)

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(file, &recordingSink{})
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = New(filepath.Join(dir, "missing"), &recordingSink{})
	assert.Error(t, err)

	_, err = New(dir, &recordingSink{}, WithDebounce(-time.Second))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	hiddenFile := filepath.Join(dir, ".notes.txt.swp")
	require.NoError(t, os.WriteFile(hiddenFile, []byte("x"), 0o644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name string
		ev   fsnotify.Event
		want action
	}{
		{"create file", fsnotify.Event{Name: file, Op: fsnotify.Create}, actionIngest},
		{"write file", fsnotify.Event{Name: file, Op: fsnotify.Write}, actionIngest},
		{"remove file", fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Remove}, actionRemove},
		{"rename file", fsnotify.Event{Name: filepath.Join(dir, "old.txt"), Op: fsnotify.Rename}, actionRemove},
		{"chmod ignored", fsnotify.Event{Name: file, Op: fsnotify.Chmod}, actionNone},
		{"directory ignored", fsnotify.Event{Name: sub, Op: fsnotify.Create}, actionNone},
		{"hidden ignored", fsnotify.Event{Name: hiddenFile, Op: fsnotify.Write}, actionNone},
		{"vanished before stat", fsnotify.Event{Name: filepath.Join(dir, "tmp.txt"), Op: fsnotify.Create}, actionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.ev))
		})
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("h"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	sink := &recordingSink{}
	w, err := New(dir, sink)
	require.NoError(t, err)

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ingested, _ := sink.snapshot()
	assert.ElementsMatch(t, []string{"a.txt", "b.md"}, ingested)
}

func TestRun_DebouncesAndRemoves(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	w, err := New(dir, sink, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("second"), 0o644))

	assert.Eventually(t, func() bool {
		ingested, _ := sink.snapshot()
		return len(ingested) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, removed := sink.snapshot()
		return slices.Equal(removed, []string{"report.txt"})
	}, 2*time.Second, 10*time.Millisecond)

	ingested, _ := sink.snapshot()
	assert.Equal(t, []string{"report.txt"}, ingested, "rapid writes collapse into one ingest")
}
