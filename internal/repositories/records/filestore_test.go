package records

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*FileStore, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s := NewFileStore(fsys, "/data")
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return s, fsys
}

func record(t *testing.T, date string, kv ...any) models.Record {
	t.Helper()
	r := models.Record{Date: date}
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, r.SetField(kv[i].(string), kv[i+1]))
	}
	return r
}

func TestLoad_MissingAndEmptyFile(t *testing.T) {
	s, fsys := newStore(t)
	ctx := context.Background()

	got, err := s.Load(ctx, models.CollectionExercise)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	require.NoError(t, afero.WriteFile(fsys, s.Path(models.CollectionExercise), []byte("  \n"), 0o644))
	got, err = s.Load(ctx, models.CollectionExercise)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_Corrupt(t *testing.T) {
	s, fsys := newStore(t)
	require.NoError(t, afero.WriteFile(fsys, s.Path(models.CollectionDiet), []byte("{"), 0o644))

	_, err := s.Load(context.Background(), models.CollectionDiet)
	require.Error(t, err)
}

func TestSaveLoad_PreservesUnknownFields(t *testing.T) {
	s, fsys := newStore(t)
	ctx := context.Background()

	raw := `[{"id":1,"date":"2024-01-01","calories":420,"meal":{"name":"oats","tags":["a"]}}]`
	require.NoError(t, afero.WriteFile(fsys, s.Path(models.CollectionDiet), []byte(raw), 0o644))

	recs, err := s.Load(ctx, models.CollectionDiet)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, models.CollectionDiet, recs))

	data, err := afero.ReadFile(fsys, s.Path(models.CollectionDiet))
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(data))

	exists, err := afero.Exists(fsys, s.Path(models.CollectionDiet)+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSave_NilWritesEmptyArrayAndTracksDigest(t *testing.T) {
	s, fsys := newStore(t)

	_, ok := s.LastWrite(models.CollectionExercise)
	assert.False(t, ok)

	require.NoError(t, s.Save(context.Background(), models.CollectionExercise, nil))

	data, err := afero.ReadFile(fsys, s.Path(models.CollectionExercise))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	d, ok := s.LastWrite(models.CollectionExercise)
	require.True(t, ok)
	assert.Equal(t, DigestOf(data), d)
}

func TestAppend_AssignsIncreasingIDsAndSorts(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, models.CollectionExercise, record(t, "2024-01-01", "type", "run"))
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), first.ID)

	second, err := s.Append(ctx, models.CollectionExercise, record(t, "2024-02-01", "type", "swim"))
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)

	all, err := s.Load(ctx, models.CollectionExercise)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	var kind string
	ok, err := all[1].Field("type", &kind)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run", kind)
}

func TestAppend_RejectsInvalidDate(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.Append(context.Background(), models.CollectionDiet, record(t, "01/02/2024"))
	require.ErrorIs(t, err, common.ErrInvalidRecord)
}

func TestMarkDeleted_ListHidesTombstones(t *testing.T) {
	s, fsys := newStore(t)
	ctx := context.Background()

	a, err := s.Append(ctx, models.CollectionDiet, record(t, "2024-01-01"))
	require.NoError(t, err)
	b, err := s.Append(ctx, models.CollectionDiet, record(t, "2024-01-02"))
	require.NoError(t, err)

	require.NoError(t, s.MarkDeleted(ctx, models.CollectionDiet, a.ID))
	require.NoError(t, s.MarkDeleted(ctx, models.CollectionDiet, a.ID))

	live, err := s.List(ctx, models.CollectionDiet)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, b.ID, live[0].ID)

	all, err := s.Load(ctx, models.CollectionDiet)
	require.NoError(t, err)
	require.Len(t, all, 2)

	data, err := afero.ReadFile(fsys, s.Path(models.CollectionDiet))
	require.NoError(t, err)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	tombstones := 0
	for _, r := range raw {
		if r["deleted"] == true {
			tombstones++
		}
	}
	assert.Equal(t, 1, tombstones)

	err = s.MarkDeleted(ctx, models.CollectionDiet, 999)
	require.ErrorIs(t, err, common.ErrNotFound)
}
