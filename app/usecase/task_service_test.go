package usecase

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsync/internal/domain/entity"
)

func TestTaskService_UpsertRequiresID(t *testing.T) {
	svc := NewTaskService(newMemTaskRepo(), newFakeSource(), discardLogger())

	_, err := svc.Upsert(context.Background(), UpsertTaskInput{Name: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrInvalidArgument))

	_, err = svc.Upsert(context.Background(), UpsertTaskInput{TaskID: "t", Status: "paused"})
	assert.True(t, errors.Is(err, entity.ErrInvalidArgument))
}

func TestTaskService_UpsertKeepsOffsetOnConflict(t *testing.T) {
	repo := newMemTaskRepo()
	repo.seed(entity.Task{TaskID: "t1", Name: "old", LastOffset: 40, Status: entity.TaskStatusCompleted})
	svc := NewTaskService(repo, newFakeSource(), discardLogger())

	task, err := svc.Upsert(context.Background(), UpsertTaskInput{TaskID: "t1", Name: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", task.Name)
	assert.Equal(t, int64(40), task.LastOffset)
	assert.Equal(t, entity.TaskStatusIdle, task.Status)
	assert.NotNil(t, task.LastRun)
}

func TestTaskService_ResetOffset(t *testing.T) {
	repo := newMemTaskRepo()
	repo.seed(entity.Task{TaskID: "t1", LastOffset: 77, Status: entity.TaskStatusError})
	svc := NewTaskService(repo, newFakeSource(), discardLogger())
	ctx := context.Background()

	task, err := svc.ResetOffset(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, int64(0), task.LastOffset)
	assert.Equal(t, entity.TaskStatusIdle, task.Status)

	unknown, err := svc.ResetOffset(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestTaskService_AdvanceOffsetNeverMovesBackwards(t *testing.T) {
	repo := newMemTaskRepo()
	repo.seed(entity.Task{TaskID: "t1", LastOffset: 10})
	svc := NewTaskService(repo, newFakeSource(), discardLogger())
	ctx := context.Background()

	task, err := svc.AdvanceOffset(ctx, "t1", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(10), task.LastOffset)

	task, err = svc.AdvanceOffset(ctx, "t1", -4)
	require.NoError(t, err)
	assert.Equal(t, int64(10), task.LastOffset)

	task, err = svc.AdvanceOffset(ctx, "t1", 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), task.LastOffset)

	missing, err := svc.AdvanceOffset(ctx, "ghost", 3)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTaskService_SetStatusStampsLastRun(t *testing.T) {
	repo := newMemTaskRepo()
	repo.seed(entity.Task{TaskID: "t1", Status: entity.TaskStatusIdle})
	svc := NewTaskService(repo, newFakeSource(), discardLogger())

	task, err := svc.SetStatus(context.Background(), "t1", entity.TaskStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusRunning, task.Status)
	assert.NotNil(t, task.LastRun)

	_, err = svc.SetStatus(context.Background(), "t1", "bogus")
	assert.True(t, errors.Is(err, entity.ErrInvalidArgument))
}

func TestTaskService_ListActive(t *testing.T) {
	repo := newMemTaskRepo()
	repo.seed(entity.Task{TaskID: "a", Status: entity.TaskStatusIdle})
	repo.seed(entity.Task{TaskID: "b", Status: entity.TaskStatusCompleted})
	repo.seed(entity.Task{TaskID: "c", Status: entity.TaskStatusRunning})
	repo.seed(entity.Task{TaskID: "d", Status: entity.TaskStatusError})
	svc := NewTaskService(repo, newFakeSource(), discardLogger())

	active, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, task := range active {
		ids = append(ids, task.TaskID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	all, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestTaskService_SyncFromSourceSkipsFailedGroups(t *testing.T) {
	src := newFakeSource()
	src.groups = []entity.TaskGroup{{ID: "g1"}, {ID: "g2"}}
	src.groupErr["g1"] = errors.New("boom")
	src.tasks["g2"] = []entity.UpstreamTask{{ID: "t2", Name: "Backend"}, {ID: "", Name: "blank"}}
	repo := newMemTaskRepo()
	svc := NewTaskService(repo, src, discardLogger())

	tasks, err := svc.SyncFromSource(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t2", tasks[0].TaskID)
	assert.Equal(t, "Backend", tasks[0].Name)
	assert.Equal(t, entity.TaskStatusIdle, tasks[0].Status)
}

func TestTaskService_SyncFromSourceFallsBack(t *testing.T) {
	src := newFakeSource()
	src.fallback = []entity.UpstreamTask{{ID: "mock-1", Name: "Mock"}}
	repo := newMemTaskRepo()
	svc := NewTaskService(repo, src, discardLogger())

	tasks, err := svc.SyncFromSource(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "mock-1", tasks[0].TaskID)
}

func TestTaskService_SyncFromSourceOmitsFailedUpserts(t *testing.T) {
	src := newFakeSource()
	src.groups = []entity.TaskGroup{{ID: "g"}}
	src.tasks["g"] = []entity.UpstreamTask{{ID: "ok"}, {ID: "bad"}}
	repo := newMemTaskRepo()
	repo.upsertErr["bad"] = errors.New("write failed")
	svc := NewTaskService(repo, src, discardLogger())

	tasks, err := svc.SyncFromSource(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "ok", tasks[0].TaskID)
}

func TestTaskService_SyncFromSourceFailsOnGroupListing(t *testing.T) {
	src := newFakeSource()
	src.groupsErr = errors.Mark(errors.New("401"), entity.ErrUpstreamAuth)
	svc := NewTaskService(newMemTaskRepo(), src, discardLogger())

	_, err := svc.SyncFromSource(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrUpstreamAuth))
}
