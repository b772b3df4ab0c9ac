package syncer

import (
	"context"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/dmitrijs2005/fitsync/internal/remote"
)

// MetadataStore reads and writes the sync-metadata blob.
type MetadataStore struct {
	store    remote.Store
	deviceID string
	log      logging.Logger
}

func NewMetadataStore(store remote.Store, deviceID string, log logging.Logger) *MetadataStore {
	return &MetadataStore{store: store, deviceID: deviceID, log: log}
}

// Load returns the remote metadata, or zero versions stamped with this
// device when the blob is absent or cannot be read.
func (m *MetadataStore) Load(ctx context.Context) models.SyncMetadata {
	defaults := models.SyncMetadata{DeviceID: m.deviceID}

	var md models.SyncMetadata
	found, err := remote.GetByName(ctx, m.store, common.MetadataBlobName, &md)
	if err != nil {
		m.log.Warn(ctx, "sync metadata unreadable, using defaults", "error", err)
		return defaults
	}
	if !found {
		return defaults
	}
	return md
}

func (m *MetadataStore) Save(ctx context.Context, md models.SyncMetadata) error {
	return m.store.PutJSON(ctx, common.MetadataBlobName, md)
}
