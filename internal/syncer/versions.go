package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/dmitrijs2005/fitsync/internal/repositories/metadata"
)

// VersionStore keeps the local version counter of each collection across
// restarts.
type VersionStore interface {
	Get(ctx context.Context, c models.Collection) (int64, error)
	Set(ctx context.Context, c models.Collection, v int64) error
	// All returns the counter of every collection; missing ones are 0.
	All(ctx context.Context) (map[models.Collection]int64, error)
}

const versionPrefix = "version"

// DBVersionStore stores counters as version:<collection> in the metadata
// table. A missing counter reads as 0.
type DBVersionStore struct {
	repo metadata.Repository
}

func NewDBVersionStore(repo metadata.Repository) *DBVersionStore {
	return &DBVersionStore{repo: repo}
}

func (d *DBVersionStore) Get(ctx context.Context, c models.Collection) (int64, error) {
	var v int64
	if _, err := metadata.GetJSON(ctx, d.repo, metadata.Key(versionPrefix, c.String()), &v); err != nil {
		return 0, fmt.Errorf("load %s version: %w", c, err)
	}
	return v, nil
}

func (d *DBVersionStore) Set(ctx context.Context, c models.Collection, v int64) error {
	if err := metadata.SetJSON(ctx, d.repo, metadata.Key(versionPrefix, c.String()), v); err != nil {
		return fmt.Errorf("store %s version: %w", c, err)
	}
	return nil
}

func (d *DBVersionStore) All(ctx context.Context) (map[models.Collection]int64, error) {
	rows, err := d.repo.List(ctx, metadata.Key(versionPrefix, ""))
	if err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}

	out := make(map[models.Collection]int64, len(models.AllCollections))
	for _, c := range models.AllCollections {
		out[c] = 0
	}
	for key, raw := range rows {
		c, err := models.ParseCollection(strings.TrimPrefix(key, metadata.Key(versionPrefix, "")))
		if err != nil {
			continue
		}
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s version: %w", c, err)
		}
		out[c] = v
	}
	return out, nil
}
