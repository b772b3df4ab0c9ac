// Package watcher pushes local collection changes to the remote store shortly
// after they are written.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/dmitrijs2005/fitsync/internal/repositories/records"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// Syncer performs a single-collection sync.
type Syncer interface {
	IncrementalSync(ctx context.Context, c models.Collection) models.CollectionResult
}

// SelfWrites reports the content the sync process itself last wrote, so the
// watcher does not push its own merge results back.
type SelfWrites interface {
	LastWrite(c models.Collection) (records.Digest, bool)
}

type Watcher struct {
	fs       afero.Fs
	dir      string
	debounce time.Duration
	syncer   Syncer
	self     SelfWrites
	log      logging.Logger

	mu     sync.Mutex
	timers map[models.Collection]*time.Timer
	seen   map[models.Collection]records.Digest

	triggers chan models.Collection
}

func New(fsys afero.Fs, dir string, debounce time.Duration, syncer Syncer, self SelfWrites, log logging.Logger) *Watcher {
	return &Watcher{
		fs:       fsys,
		dir:      dir,
		debounce: debounce,
		syncer:   syncer,
		self:     self,
		log:      log,
		timers:   make(map[models.Collection]*time.Timer),
		seen:     make(map[models.Collection]records.Digest),
		triggers: make(chan models.Collection, len(models.AllCollections)),
	}
}

// Run watches the data directory until ctx is cancelled. Content present
// when Run starts is treated as already synced.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	for _, c := range models.AllCollections {
		if d, ok, err := w.digest(c); err == nil && ok {
			w.seen[c] = d
		}
	}

	w.log.Info(ctx, "watching collection files", "dir", w.dir, "debounce", w.debounce.String())
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if c, ok := w.match(ev); ok {
				w.schedule(c)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "watcher error", "error", err)

		case c := <-w.triggers:
			w.handle(ctx, c)
		}
	}
}

// match maps an event to the collection whose file it touches. Temp files
// and removals are ignored; the atomic replace shows up as a create.
func (w *Watcher) match(ev fsnotify.Event) (models.Collection, bool) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return "", false
	}
	name := filepath.Base(ev.Name)
	if strings.HasSuffix(name, ".tmp") {
		return "", false
	}
	for _, c := range models.AllCollections {
		if name == c.BlobName() {
			return c, true
		}
	}
	return "", false
}

func (w *Watcher) schedule(c models.Collection) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[c]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[c] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, c)
		w.mu.Unlock()
		select {
		case w.triggers <- c:
		default:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for c, t := range w.timers {
		t.Stop()
		delete(w.timers, c)
	}
}

func (w *Watcher) handle(ctx context.Context, c models.Collection) {
	d, ok, err := w.digest(c)
	if err != nil {
		w.log.Warn(ctx, "read collection file", "collection", c, "error", err)
		return
	}
	if !ok {
		return
	}
	if own, ok := w.self.LastWrite(c); ok && own == d {
		w.seen[c] = d
		return
	}
	if prev, ok := w.seen[c]; ok && prev == d {
		return
	}

	w.log.Info(ctx, "local change detected", "collection", c)
	res := w.syncer.IncrementalSync(ctx, c)
	if !res.Success {
		w.log.Error(ctx, "incremental sync failed", "collection", c, "error", res.Error, "reauth_required", res.ReauthRequired)
		return
	}

	// the sync may have rewritten the file with merged content
	if after, ok, err := w.digest(c); err == nil && ok {
		w.seen[c] = after
	} else {
		w.seen[c] = d
	}
}

func (w *Watcher) digest(c models.Collection) (records.Digest, bool, error) {
	data, err := afero.ReadFile(w.fs, filepath.Join(w.dir, c.BlobName()))
	if errors.Is(err, fs.ErrNotExist) {
		return records.Digest{}, false, nil
	}
	if err != nil {
		return records.Digest{}, false, err
	}
	return records.DigestOf(data), true, nil
}
