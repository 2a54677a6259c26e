package store

import (
	"context"
	"testing"

	"github.com/erazemk/terenec/internal/db"
	"github.com/erazemk/terenec/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftPersistence(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	d, err := GetDraft(ctx, database, 1)
	require.NoError(t, err)
	assert.Nil(t, d)

	draft := model.Draft{
		Tasks: []model.Task{{ID: "t1", Token: "t1", Origin: model.OriginDraft, JobID: 1, Name: "Inspect"}},
	}
	require.NoError(t, SaveDraft(ctx, database, 1, draft))

	draft.Tasks = append(draft.Tasks, model.Task{ID: "t2", Origin: model.OriginDraft, Name: "Clean"})
	require.NoError(t, SaveDraft(ctx, database, 1, draft))

	got, err := GetDraft(ctx, database, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "Clean", got.Tasks[1].Name)
	assert.Equal(t, model.OriginDraft, got.Tasks[0].Origin)

	require.NoError(t, DeleteDraft(ctx, database, 1))
	got, err = GetDraft(ctx, database, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDraftPersistenceKeepsLocalMediaPaths(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	draft := model.Draft{
		Media: []model.MediaItem{
			{ID: "m1", Token: "m1", Origin: model.OriginDraft, JobID: 1, Kind: model.MediaImage, LocalRef: "media/a.jpg"},
			{ID: "m2", Token: "m2", Origin: model.OriginDraft, JobID: 1, Kind: model.MediaVideo, LocalRef: "media/b.mp4"},
		},
	}
	require.NoError(t, SaveDraft(ctx, database, 1, draft))

	got, err := GetDraft(ctx, database, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Media, 2)
	assert.Equal(t, "media/a.jpg", got.Media[0].LocalRef)
	assert.Equal(t, "media/b.mp4", got.Media[1].LocalRef)
}
