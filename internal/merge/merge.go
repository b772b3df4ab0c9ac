// Package merge reconciles a local and a remote copy of one collection.
//
// Merging works on whole records keyed by id. A tombstone on either side
// wins over a live copy, a record present on one side only survives unless
// it is a remote tombstone, and when both sides hold a live copy the later
// business date wins with ties going to the local copy. The merged version
// is one past the larger input version; divergent input versions are
// reported as a conflict.
//
// The package does no I/O.
package merge

import "github.com/dmitrijs2005/fitsync/internal/models"

// Result is the outcome of a merge.
type Result struct {
	Data         []models.Record
	Version      int64
	HasConflicts bool
}

// Merge combines local and remote. Neither input slice is modified.
func Merge(local, remote []models.Record, localVersion, remoteVersion int64) Result {
	localByID, localOrder := index(local)
	remoteByID, remoteOrder := index(remote)

	ids := make([]int64, 0, len(localOrder)+len(remoteOrder))
	ids = append(ids, localOrder...)
	for _, id := range remoteOrder {
		if _, ok := localByID[id]; !ok {
			ids = append(ids, id)
		}
	}

	merged := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		l, inLocal := localByID[id]
		r, inRemote := remoteByID[id]

		switch {
		case inLocal && inRemote:
			merged = append(merged, resolve(l, r))
		case inLocal:
			merged = append(merged, l)
		case !r.Deleted:
			merged = append(merged, r)
		}
	}

	models.SortNewestFirst(merged)

	return Result{
		Data:         merged,
		Version:      max(localVersion, remoteVersion) + 1,
		HasConflicts: localVersion != remoteVersion,
	}
}

// resolve picks one of two copies of the same record.
func resolve(local, remote models.Record) models.Record {
	if local.Deleted {
		return local
	}
	if remote.Deleted {
		return remote
	}
	if remote.Time().After(local.Time()) {
		return remote
	}
	return local
}

// index maps records by id, the last occurrence of a repeated id winning,
// and returns the distinct ids in first-seen order.
func index(records []models.Record) (map[int64]models.Record, []int64) {
	byID := make(map[int64]models.Record, len(records))
	order := make([]int64, 0, len(records))
	for _, r := range records {
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
	}
	return byID, order
}
