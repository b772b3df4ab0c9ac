package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/merge"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/dmitrijs2005/fitsync/internal/remote"
	"github.com/google/uuid"
)

// Authenticator guarantees a usable access token before remote calls.
type Authenticator interface {
	EnsureValid(ctx context.Context) error
}

// LocalStore is the local persistence of the collections.
type LocalStore interface {
	Load(ctx context.Context, c models.Collection) ([]models.Record, error)
	Save(ctx context.Context, c models.Collection, records []models.Record) error
}

// Coordinator runs full and incremental sync passes. Passes started through
// the same Coordinator never overlap.
type Coordinator struct {
	mu sync.Mutex

	auth     Authenticator
	remote   remote.Store
	local    LocalStore
	versions VersionStore
	meta     *MetadataStore
	deviceID string
	log      logging.Logger
	now      func() time.Time
}

func NewCoordinator(auth Authenticator, store remote.Store, local LocalStore, versions VersionStore, deviceID string, log logging.Logger) *Coordinator {
	return &Coordinator{
		auth:     auth,
		remote:   store,
		local:    local,
		versions: versions,
		meta:     NewMetadataStore(store, deviceID, log),
		deviceID: deviceID,
		log:      log,
		now:      time.Now,
	}
}

// FullSync syncs every collection, exercise first, and then records the
// pass in the sync metadata blob. A collection's failure does not stop the
// next one; a reauthorization failure stops the rest of the pass.
func (c *Coordinator) FullSync(ctx context.Context) models.SyncResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.With("run_id", uuid.NewString(), "pass", "full")
	start := c.now()
	res := models.SyncResult{
		Timestamp: start,
		Results:   make(map[models.Collection]models.CollectionResult, len(models.AllCollections)),
	}
	log.Info(ctx, "sync started")

	if err := c.auth.EnsureValid(ctx); err != nil {
		log.Error(ctx, "sync aborted", "error", err)
		res.Error = err.Error()
		res.ReauthRequired = errors.Is(err, common.ErrReauthorizationRequired)
		res.Results = nil
		return res
	}

	allOK, anyOK := true, false
	for _, col := range models.AllCollections {
		if res.ReauthRequired {
			res.Results[col] = models.CollectionResult{
				Collection:     col,
				Error:          common.ErrReauthorizationRequired.Error(),
				ReauthRequired: true,
			}
			continue
		}
		r := c.syncCollection(ctx, log, col, false)
		res.Results[col] = r
		allOK = allOK && r.Success
		anyOK = anyOK || r.Synced
		if r.ReauthRequired {
			res.ReauthRequired = true
			allOK = false
		}
	}

	if anyOK && !res.ReauthRequired {
		if err := c.saveMetadata(ctx, res); err != nil {
			log.Error(ctx, "sync metadata not saved", "error", err)
			res.Error = err.Error()
			res.ReauthRequired = errors.Is(err, common.ErrReauthorizationRequired)
			allOK = false
		}
	}
	if !allOK && res.Error == "" {
		res.Error = failedCollections(res.Results)
	}
	res.Success = allOK

	log.Info(ctx, "sync finished", "success", res.Success, "elapsed", c.now().Sub(start))
	return res
}

// IncrementalSync pushes a single collection right after a local change.
// The merged data is always written back locally.
func (c *Coordinator) IncrementalSync(ctx context.Context, col models.Collection) models.CollectionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.With("run_id", uuid.NewString(), "pass", "incremental")
	return c.syncCollection(ctx, log, col, true)
}

// Status reports the remote metadata together with the local counters.
func (c *Coordinator) Status(ctx context.Context) (models.SyncStatus, error) {
	st := models.SyncStatus{CurrentDevice: c.deviceID}
	versions, err := c.versions.All(ctx)
	if err != nil {
		return st, err
	}
	st.LocalVersions = versions

	if err := c.auth.EnsureValid(ctx); err != nil {
		return st, err
	}
	md := c.meta.Load(ctx)
	st.LastSyncTime = md.LastSyncTime
	st.ExerciseVersion = md.ExerciseVersion
	st.DietVersion = md.DietVersion
	st.DeviceID = md.DeviceID
	return st, nil
}

func (c *Coordinator) syncCollection(ctx context.Context, log logging.Logger, col models.Collection, alwaysWriteLocal bool) (r models.CollectionResult) {
	log = log.With("collection", col.String())
	r.Collection = col

	fail := func(step string, err error) models.CollectionResult {
		log.Error(ctx, "collection sync failed", "step", step, "error", err)
		r.Success = false
		r.Error = fmt.Sprintf("%s: %v", step, err)
		r.ReauthRequired = errors.Is(err, common.ErrReauthorizationRequired)
		return r
	}
	defer func() {
		if p := recover(); p != nil {
			r = fail("panic", fmt.Errorf("%v", p))
		}
	}()

	if err := c.auth.EnsureValid(ctx); err != nil {
		return fail("auth", err)
	}

	local, err := c.local.Load(ctx, col)
	if err != nil {
		return fail("load local", err)
	}
	localVersion, err := c.versions.Get(ctx, col)
	if err != nil {
		return fail("load version", err)
	}

	var blob models.CollectionBlob
	found, err := remote.GetByName(ctx, c.remote, col.BlobName(), &blob)
	if err != nil {
		return fail("download", err)
	}

	data, version := local, localVersion+1
	if found {
		m := merge.Merge(local, blob.Data, localVersion, blob.Version)
		r.Conflicts = m.HasConflicts
		if alwaysWriteLocal || m.HasConflicts || len(m.Data) != len(local) {
			if err := c.local.Save(ctx, col, m.Data); err != nil {
				return fail("save local", err)
			}
		}
		data, version = m.Data, m.Version
	} else {
		log.Info(ctx, "no remote copy, uploading local collection")
	}

	out := models.CollectionBlob{
		Version:      version,
		LastModified: c.now().UTC(),
		DeviceID:     c.deviceID,
		Data:         data,
	}
	if out.Data == nil {
		out.Data = []models.Record{}
	}
	if err := c.remote.PutJSON(ctx, col.BlobName(), out); err != nil {
		return fail("upload", err)
	}
	r.Synced = true

	if err := c.versions.Set(ctx, col, version); err != nil {
		return fail("store version", err)
	}

	r.Success = true
	r.Version = version
	r.Records = len(data)
	log.Info(ctx, "collection synced", "version", version, "conflicts", r.Conflicts, "records", r.Records)
	return r
}

func (c *Coordinator) saveMetadata(ctx context.Context, res models.SyncResult) error {
	if err := c.auth.EnsureValid(ctx); err != nil {
		return err
	}
	versions, err := c.versions.All(ctx)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	md := models.SyncMetadata{LastSyncTime: &now, DeviceID: c.deviceID}
	for col, v := range versions {
		md.SetVersion(col, v)
	}
	return c.meta.Save(ctx, md)
}

func failedCollections(results map[models.Collection]models.CollectionResult) string {
	var msg string
	for _, col := range models.AllCollections {
		r, ok := results[col]
		if !ok || r.Success {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		msg += col.String() + ": " + r.Error
	}
	return msg
}
