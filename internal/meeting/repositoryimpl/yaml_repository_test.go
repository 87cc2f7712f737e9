package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskforest/internal/meeting"
	"github.com/kazz187/taskforest/pkg/cerr"
	"github.com/kazz187/taskforest/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewSQLiteStorage(ctx, ":memory:")
	require.NoError(t, err)
	repo := NewYAMLRepository(s)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m := &meeting.Meeting{ID: "m1", TaskID: "t1", Title: "Sync", StartTime: start, Duration: 600, CreatedAt: start}
	require.NoError(t, repo.Create(ctx, m))
	assert.True(t, cerr.IsCode(repo.Create(ctx, m), cerr.AlreadyExists))
	require.NoError(t, repo.Create(ctx, &meeting.Meeting{ID: "m0", TaskID: "t1", StartTime: start.Add(-time.Hour), Duration: 60}))
	require.NoError(t, repo.Create(ctx, &meeting.Meeting{ID: "m2", TaskID: "t2", StartTime: start, Duration: 60}))

	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(start))

	got.CalendarEventID = "evt"
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "evt", got.CalendarEventID)

	list, err := repo.ListByTask(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m0", list[0].ID)

	require.NoError(t, repo.Delete(ctx, "m1"))
	assert.True(t, cerr.IsCode(repo.Delete(ctx, "m1"), cerr.NotFound))
	assert.True(t, cerr.IsCode(repo.Update(ctx, m), cerr.NotFound))
}
