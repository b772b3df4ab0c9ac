package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/dmitrijs2005/fitsync/internal/repositories/records"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSyncer struct {
	mu    sync.Mutex
	calls []models.Collection
}

func (r *recordingSyncer) IncrementalSync(_ context.Context, c models.Collection) models.CollectionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return models.CollectionResult{Collection: c, Success: true, Synced: true}
}

func (r *recordingSyncer) Calls() []models.Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Collection(nil), r.calls...)
}

type noSelfWrites struct{}

func (noSelfWrites) LastWrite(models.Collection) (records.Digest, bool) { return records.Digest{}, false }

func startWatcher(t *testing.T, dir string, syncer Syncer, self SelfWrites) {
	t.Helper()
	w := New(afero.NewOsFs(), dir, 50*time.Millisecond, syncer, self, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// give fsnotify a moment to register the directory
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_TriggersIncrementalSyncOnce(t *testing.T) {
	dir := t.TempDir()
	syncer := &recordingSyncer{}
	startWatcher(t, dir, syncer, noSelfWrites{})

	path := filepath.Join(dir, models.CollectionDiet.BlobName())
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`[{"id":1,"date":"2024-01-01"}]`), 0o644))
	}

	require.Eventually(t, func() bool { return len(syncer.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []models.Collection{models.CollectionDiet}, syncer.Calls())
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	syncer := &recordingSyncer{}
	startWatcher(t, dir, syncer, noSelfWrites{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, models.CollectionExercise.BlobName()+".tmp"), []byte("[]"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, syncer.Calls())
}

func TestWatcher_SuppressesOwnWrites(t *testing.T) {
	dir := t.TempDir()
	store := records.NewFileStore(afero.NewOsFs(), dir)
	syncer := &recordingSyncer{}
	startWatcher(t, dir, syncer, store)

	require.NoError(t, store.Save(context.Background(), models.CollectionExercise, []models.Record{{ID: 1, Date: "2024-01-01"}}))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, syncer.Calls())
}

func TestWatcher_ExistingContentIsNotResynced(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`[{"id":1,"date":"2024-01-01"}]`)
	path := filepath.Join(dir, models.CollectionExercise.BlobName())
	require.NoError(t, os.WriteFile(path, content, 0o644))

	syncer := &recordingSyncer{}
	startWatcher(t, dir, syncer, noSelfWrites{})

	// same bytes rewritten
	require.NoError(t, os.WriteFile(path, content, 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, syncer.Calls())

	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	require.Eventually(t, func() bool { return len(syncer.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestMatch(t *testing.T) {
	w := New(afero.NewMemMapFs(), "/data", time.Second, &recordingSyncer{}, noSelfWrites{}, logging.Nop())

	tests := []struct {
		name string
		ev   fsnotify.Event
		want models.Collection
		ok   bool
	}{
		{"write", fsnotify.Event{Name: "/data/diet-data.json", Op: fsnotify.Write}, models.CollectionDiet, true},
		{"create", fsnotify.Event{Name: "/data/exercise-data.json", Op: fsnotify.Create}, models.CollectionExercise, true},
		{"remove", fsnotify.Event{Name: "/data/diet-data.json", Op: fsnotify.Remove}, "", false},
		{"tmp", fsnotify.Event{Name: "/data/diet-data.json.tmp", Op: fsnotify.Create}, "", false},
		{"metadata", fsnotify.Event{Name: "/data/sync-metadata.json", Op: fsnotify.Write}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := w.match(tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
