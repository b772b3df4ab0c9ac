package records

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/spf13/afero"
)

// Digest identifies file content.
type Digest [sha256.Size]byte

func DigestOf(data []byte) Digest { return sha256.Sum256(data) }

type FileStore struct {
	fs  afero.Fs
	dir string
	now func() time.Time

	mu      sync.Mutex
	written map[models.Collection]Digest
}

func NewFileStore(fsys afero.Fs, dir string) *FileStore {
	return &FileStore{
		fs:      fsys,
		dir:     dir,
		now:     time.Now,
		written: make(map[models.Collection]Digest),
	}
}

// Dir is the directory holding the collection files.
func (s *FileStore) Dir() string { return s.dir }

// Path is the file of collection c.
func (s *FileStore) Path(c models.Collection) string {
	return filepath.Join(s.dir, c.BlobName())
}

// Load returns every record of c, tombstones included. A missing or empty
// file is an empty collection.
func (s *FileStore) Load(ctx context.Context, c models.Collection) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(c)
}

func (s *FileStore) load(c models.Collection) ([]models.Record, error) {
	data, err := afero.ReadFile(s.fs, s.Path(c))
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Record{}, nil
	}

	var out []models.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", c, err)
	}
	if out == nil {
		out = []models.Record{}
	}
	return out, nil
}

// Save replaces collection c with records.
func (s *FileStore) Save(ctx context.Context, c models.Collection, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(c, records)
}

func (s *FileStore) save(c models.Collection, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", c, err)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	path := s.Path(c)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", c, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", c, err)
	}
	s.written[c] = DigestOf(data)
	return nil
}

// LastWrite returns the digest of the content this store last wrote for c.
func (s *FileStore) LastWrite(c models.Collection) (Digest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.written[c]
	return d, ok
}

// List returns the live records of c, newest first.
func (s *FileStore) List(ctx context.Context, c models.Collection) ([]models.Record, error) {
	all, err := s.Load(ctx, c)
	if err != nil {
		return nil, err
	}
	live := make([]models.Record, 0, len(all))
	for _, r := range all {
		if !r.Deleted {
			live = append(live, r)
		}
	}
	models.SortNewestFirst(live)
	return live, nil
}

// Append assigns rec a fresh id (milliseconds since the epoch, bumped past
// the largest existing id) and stores it.
func (s *FileStore) Append(ctx context.Context, c models.Collection, rec models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(c)
	if err != nil {
		return models.Record{}, err
	}

	id := s.now().UnixMilli()
	for _, r := range all {
		if r.ID >= id {
			id = r.ID + 1
		}
	}
	rec.ID = id
	rec.Deleted = false
	if err := models.ValidateRecord(rec); err != nil {
		return models.Record{}, err
	}

	all = append(all, rec)
	models.SortNewestFirst(all)
	if err := s.save(c, all); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// MarkDeleted turns record id into a tombstone so the deletion reaches other
// devices on the next sync. Tombstones are never purged.
func (s *FileStore) MarkDeleted(ctx context.Context, c models.Collection, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(c)
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		if all[i].Deleted {
			return nil
		}
		all[i].Deleted = true
		return s.save(c, all)
	}
	return fmt.Errorf("%w: %s record %d", common.ErrNotFound, c, id)
}
