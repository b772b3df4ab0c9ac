package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/dmitrijs2005/fitsync/internal/remote"
)

// journal records the order of auth and remote calls across fakes.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// fakeAuth behaves like a session whose token may start out expired.
type fakeAuth struct {
	j          *journal
	expired    bool
	refreshErr error
	refreshes  int
	calls      int
	// failAfter makes calls beyond this count fail with reauthorization.
	failAfter int
}

func (a *fakeAuth) EnsureValid(context.Context) error {
	a.calls++
	if a.failAfter > 0 && a.calls > a.failAfter {
		return common.ErrReauthorizationRequired
	}
	if !a.expired {
		return nil
	}
	a.refreshes++
	if a.j != nil {
		a.j.add("refresh")
	}
	if a.refreshErr != nil {
		return a.refreshErr
	}
	a.expired = false
	return nil
}

// fakeRemote is an in-memory remote.Store that keeps blobs as JSON.
type fakeRemote struct {
	j       *journal
	blobs   map[string][]byte
	findErr map[string]error
	putErr  map[string]error
	puts    []string
}

func newFakeRemote(j *journal) *fakeRemote {
	return &fakeRemote{j: j, blobs: map[string][]byte{}, findErr: map[string]error{}, putErr: map[string]error{}}
}

func (f *fakeRemote) FindByName(_ context.Context, name string) (*remote.BlobRef, error) {
	if f.j != nil {
		f.j.add("find " + name)
	}
	if err := f.findErr[name]; err != nil {
		return nil, err
	}
	if _, ok := f.blobs[name]; !ok {
		return nil, nil
	}
	return &remote.BlobRef{ID: name, Name: name}, nil
}

func (f *fakeRemote) GetJSON(_ context.Context, ref *remote.BlobRef, v any) error {
	if err := json.Unmarshal(f.blobs[ref.ID], v); err != nil {
		return errors.Join(common.ErrRemoteRead, err)
	}
	return nil
}

func (f *fakeRemote) PutJSON(_ context.Context, name string, v any) error {
	if f.j != nil {
		f.j.add("put " + name)
	}
	if err := f.putErr[name]; err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.blobs[name] = b
	f.puts = append(f.puts, name)
	return nil
}

func (f *fakeRemote) seed(c models.Collection, blob models.CollectionBlob) {
	b, _ := json.Marshal(blob)
	f.blobs[c.BlobName()] = b
}

func (f *fakeRemote) collection(c models.Collection) (models.CollectionBlob, bool) {
	raw, ok := f.blobs[c.BlobName()]
	if !ok {
		return models.CollectionBlob{}, false
	}
	var blob models.CollectionBlob
	_ = json.Unmarshal(raw, &blob)
	return blob, true
}

func (f *fakeRemote) metadata() (models.SyncMetadata, bool) {
	raw, ok := f.blobs[common.MetadataBlobName]
	if !ok {
		return models.SyncMetadata{}, false
	}
	var md models.SyncMetadata
	_ = json.Unmarshal(raw, &md)
	return md, true
}

type fakeLocal struct {
	data    map[models.Collection][]models.Record
	saves   map[models.Collection]int
	loadErr error
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{data: map[models.Collection][]models.Record{}, saves: map[models.Collection]int{}}
}

func (l *fakeLocal) Load(_ context.Context, c models.Collection) ([]models.Record, error) {
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return append([]models.Record(nil), l.data[c]...), nil
}

func (l *fakeLocal) Save(_ context.Context, c models.Collection, records []models.Record) error {
	l.data[c] = append([]models.Record(nil), records...)
	l.saves[c]++
	return nil
}

type memVersions struct {
	v      map[models.Collection]int64
	setErr error
}

func newMemVersions() *memVersions { return &memVersions{v: map[models.Collection]int64{}} }

func (m *memVersions) Get(_ context.Context, c models.Collection) (int64, error) { return m.v[c], nil }

func (m *memVersions) All(context.Context) (map[models.Collection]int64, error) {
	out := make(map[models.Collection]int64, len(models.AllCollections))
	for _, c := range models.AllCollections {
		out[c] = m.v[c]
	}
	return out, nil
}

func (m *memVersions) Set(_ context.Context, c models.Collection, v int64) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.v[c] = v
	return nil
}
