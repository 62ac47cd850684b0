package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsync/internal/domain/entity"
)

func TestJobService_CreateValidates(t *testing.T) {
	svc := NewJobService(newMemJobRepo(), discardLogger())
	ctx := context.Background()

	cases := []CreateJobInput{
		{JobTitle: "t", JobDescription: "d"},
		{SourceTaskID: "task", JobDescription: "d"},
		{SourceTaskID: "task", JobTitle: "  ", JobDescription: "d"},
		{SourceTaskID: "task", JobTitle: "t"},
	}
	for _, in := range cases {
		_, err := svc.Create(ctx, in)
		require.Error(t, err)
		assert.True(t, errors.Is(err, entity.ErrInvalidArgument), "input %+v", in)
	}
}

func TestJobService_CreateAssignsIdentity(t *testing.T) {
	repo := newMemJobRepo()
	svc := NewJobService(repo, discardLogger())

	posted := time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("X", 3600))
	job, err := svc.Create(context.Background(), CreateJobInput{
		SourceTaskID:   "task-1",
		JobTitle:       "Go Dev",
		JobDescription: "Write services",
		DatePosted:     &posted,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.False(t, job.Processed)
	assert.False(t, job.CreatedAt.IsZero())
	require.NotNil(t, job.DatePosted)
	assert.Equal(t, time.UTC, job.DatePosted.Location())

	got, err := svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Go Dev", got.JobTitle)
}

func TestJobService_BulkInsertDedupsByNormalizedTitle(t *testing.T) {
	repo := newMemJobRepo()
	svc := NewJobService(repo, discardLogger())

	rows := []entity.RawRecord{
		{"title": entity.String("Designer")},
		{"jobTitle": entity.String(" Designer ")},
	}
	res, err := svc.BulkInsert(context.Background(), "task-1", rows)
	require.NoError(t, err)
	assert.Equal(t, entity.BulkResult{Created: 1, Skipped: 1}, res)

	stored, _ := repo.ListByTask(context.Background(), "task-1")
	require.Len(t, stored, 1)
	assert.Equal(t, "Designer", stored[0].JobTitle)
	assert.Equal(t, "No description available", stored[0].JobDescription)
	assert.False(t, stored[0].Processed)
	assert.Equal(t, "Designer", stored[0].RawData["title"].String())
}

func TestJobService_BulkInsertIsIdempotent(t *testing.T) {
	repo := newMemJobRepo()
	svc := NewJobService(repo, discardLogger())
	ctx := context.Background()
	rows := titled("A", "B", "C")

	first, err := svc.BulkInsert(ctx, "task-1", rows)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)

	second, err := svc.BulkInsert(ctx, "task-1", rows)
	require.NoError(t, err)
	assert.Equal(t, entity.BulkResult{Created: 0, Skipped: 3}, second)

	n, _ := repo.Count(ctx)
	assert.Equal(t, int64(3), n)

	// same titles under another task are distinct
	other, err := svc.BulkInsert(ctx, "task-2", rows)
	require.NoError(t, err)
	assert.Equal(t, 3, other.Created)
}

func TestJobService_BulkInsertIsolatesBadRows(t *testing.T) {
	repo := newMemJobRepo()
	repo.failTitles["Broken"] = true
	svc := NewJobService(repo, discardLogger())

	rows := []entity.RawRecord{
		{"title": entity.String("Good")},
		nil,
		{"title": entity.String("Broken")},
		{"title": entity.String("Also good")},
	}
	res, err := svc.BulkInsert(context.Background(), "task-1", rows)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, res.Failed)
}

func TestJobService_BulkInsertEmpty(t *testing.T) {
	svc := NewJobService(newMemJobRepo(), discardLogger())

	res, err := svc.BulkInsert(context.Background(), "task-1", nil)
	require.NoError(t, err)
	assert.Equal(t, entity.BulkResult{}, res)
}

func TestJobService_ListClampsParams(t *testing.T) {
	repo := newMemJobRepo()
	svc := NewJobService(repo, discardLogger())
	ctx := context.Background()

	titles := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		titles = append(titles, "job-"+string(rune('A'+i%26))+string(rune('a'+i/26)))
	}
	_, err := svc.BulkInsert(ctx, "task-1", titled(titles...))
	require.NoError(t, err)

	jobs, total, err := svc.List(ctx, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)
	assert.Len(t, jobs, MaxPageLimit)

	jobs, _, err = svc.List(ctx, 2, 100)
	require.NoError(t, err)
	assert.Len(t, jobs, 20)

	jobs, _, err = svc.List(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestClampListParams(t *testing.T) {
	cases := []struct{ page, limit, wantPage, wantLimit int }{
		{0, 20, 1, 20},
		{-3, 0, 1, 1},
		{4, 101, 4, 100},
		{2, 50, 2, 50},
	}
	for _, c := range cases {
		p, l := ClampListParams(c.page, c.limit)
		assert.Equal(t, c.wantPage, p)
		assert.Equal(t, c.wantLimit, l)
	}
}

func TestJobService_BlankIdentifiers(t *testing.T) {
	svc := NewJobService(newMemJobRepo(), discardLogger())
	ctx := context.Background()

	jobs, err := svc.ListByTask(ctx, " ")
	require.NoError(t, err)
	assert.Empty(t, jobs)

	n, err := svc.CountByTask(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	job, err := svc.Get(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = svc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, job)

	ok, err := svc.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobService_UpdateAndDelete(t *testing.T) {
	repo := newMemJobRepo()
	svc := NewJobService(repo, discardLogger())
	ctx := context.Background()

	salary := "100k"
	job, err := svc.Create(ctx, CreateJobInput{
		SourceTaskID: "t", JobTitle: "Old", JobDescription: "d", JobSalary: &salary,
	})
	require.NoError(t, err)

	title := "New"
	processed := true
	updated, err := svc.Update(ctx, job.ID, entity.JobPatch{JobTitle: &title, Processed: &processed, ClearSalary: true})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "New", updated.JobTitle)
	assert.True(t, updated.Processed)
	assert.Nil(t, updated.JobSalary)

	empty := ""
	_, err = svc.Update(ctx, job.ID, entity.JobPatch{JobTitle: &empty})
	assert.True(t, errors.Is(err, entity.ErrInvalidArgument))

	missing, err := svc.Update(ctx, "nope", entity.JobPatch{JobTitle: &title})
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := svc.Delete(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	gone, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestJobService_TrimsIdentifiers(t *testing.T) {
	svc := NewJobService(newMemJobRepo(), discardLogger())
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobInput{SourceTaskID: "t", JobTitle: "Go Dev", JobDescription: "d"})
	require.NoError(t, err)
	padded := "  " + job.ID + "\t"

	got, err := svc.Get(ctx, padded)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)

	processed := true
	updated, err := svc.Update(ctx, padded, entity.JobPatch{Processed: &processed})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.Processed)

	same, err := svc.Update(ctx, padded, entity.JobPatch{})
	require.NoError(t, err)
	require.NotNil(t, same)

	ok, err := svc.Delete(ctx, padded)
	require.NoError(t, err)
	assert.True(t, ok)
}
