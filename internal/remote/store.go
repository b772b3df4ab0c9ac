// Package remote provides named-blob storage inside a private per-application
// area: the Google Drive appDataFolder, or a bucket prefix on S3.
//
// Blobs are addressed by exact name. PutJSON updates the blob found under a
// name in place and otherwise creates it; there is no concurrency token, so
// concurrent writers of one name see last-write-wins.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
)

// BlobRef identifies a stored blob.
type BlobRef struct {
	ID           string
	Name         string
	ModifiedTime time.Time
}

// Store is the remote blob protocol consumed by the sync coordinator.
type Store interface {
	// FindByName returns the first non-trashed blob named name, or nil
	// when there is none.
	FindByName(ctx context.Context, name string) (*BlobRef, error)
	// GetJSON downloads ref and decodes it into v. Failures wrap common.ErrRemoteRead.
	GetJSON(ctx context.Context, ref *BlobRef, v any) error
	// PutJSON stores v under name. Failures wrap common.ErrRemoteWrite.
	PutJSON(ctx context.Context, name string, v any) error
}

// GetByName looks name up and decodes it into v. found is false, with a nil
// error, when the blob does not exist.
func GetByName(ctx context.Context, s Store, name string, v any) (found bool, err error) {
	ref, err := s.FindByName(ctx, name)
	if err != nil {
		return false, err
	}
	if ref == nil {
		return false, nil
	}
	if err := s.GetJSON(ctx, ref, v); err != nil {
		return false, err
	}
	return true, nil
}

const contentTypeJSON = "application/json"

func encode(name string, v any) ([]byte, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", common.ErrRemoteWrite, name, err)
	}
	return body, nil
}

func readErr(op, name string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", common.ErrRemoteRead, op, name, err)
}

func writeErr(op, name string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", common.ErrRemoteWrite, op, name, err)
}
