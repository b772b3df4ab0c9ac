package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const appDataFolder = "appDataFolder"

// DriveStore keeps blobs in the Drive appDataFolder of the signed-in user.
type DriveStore struct {
	svc *drive.Service
}

// NewDriveStore builds a store on top of an authenticated HTTP client.
// Extra options are appended after the client option.
func NewDriveStore(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*DriveStore, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveStore{svc: svc}, nil
}

func (s *DriveStore) FindByName(ctx context.Context, name string) (*BlobRef, error) {
	list, err := s.svc.Files.List().
		Spaces(appDataFolder).
		Q(nameQuery(name)).
		PageSize(1).
		Fields("files(id, name, modifiedTime)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, readErr("find", name, err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}

	f := list.Files[0]
	ref := &BlobRef{ID: f.Id, Name: f.Name}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		ref.ModifiedTime = t
	}
	return ref, nil
}

func (s *DriveStore) GetJSON(ctx context.Context, ref *BlobRef, v any) error {
	resp, err := s.svc.Files.Get(ref.ID).Context(ctx).Download()
	if err != nil {
		return readErr("download", ref.Name, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return readErr("decode", ref.Name, err)
	}
	return nil
}

func (s *DriveStore) PutJSON(ctx context.Context, name string, v any) error {
	body, err := encode(name, v)
	if err != nil {
		return err
	}

	ref, err := s.FindByName(ctx, name)
	if err != nil {
		return writeErr("lookup", name, err)
	}

	media := googleapi.ContentType(contentTypeJSON)
	if ref != nil {
		_, err = s.svc.Files.Update(ref.ID, &drive.File{}).
			Media(bytes.NewReader(body), media).
			Context(ctx).
			Do()
		if err != nil {
			return writeErr("update", name, err)
		}
		return nil
	}

	_, err = s.svc.Files.Create(&drive.File{
		Name:     name,
		Parents:  []string{appDataFolder},
		MimeType: contentTypeJSON,
	}).
		Media(bytes.NewReader(body), media).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return writeErr("create", name, err)
	}
	return nil
}

func nameQuery(name string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(name)
	return fmt.Sprintf("name='%s' and trashed=false", escaped)
}
