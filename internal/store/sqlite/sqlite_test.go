package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskhub.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAppliesMigrationsAndImplementsStore(t *testing.T) {
	s := openTestStore(t)
	var _ store.Store = s
}

func TestSqliteDagRunUpsertAndQueryRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := store.DagRunRecord{
		RunID: "run1", Name: "nightly", Source: "cron", Status: types.StatusRunning,
		StartTsMs: 1000, Total: 3,
	}
	require.NoError(t, s.UpsertDagRun(ctx, rec))

	got, err := s.QueryDagRuns(ctx, store.RunQuery{RunID: "run1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nightly", got[0].Name)
	assert.Equal(t, types.StatusRunning, got[0].Status)

	rec.Status = types.StatusSuccess
	rec.SuccessCount = 3
	rec.EndTsMs = 2000
	require.NoError(t, s.UpsertDagRun(ctx, rec))

	got, err = s.QueryDagRuns(ctx, store.RunQuery{RunID: "run1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.StatusSuccess, got[0].Status)
	assert.Equal(t, 3, got[0].SuccessCount)
}

func TestSqliteTaskRunQueryFiltersByWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTaskRun(ctx, store.TaskRunRecord{
		ID: "r1", RunID: "r1", LogicalID: "t1", TaskID: "t1", Name: "t1",
		Status: types.StatusSuccess, StartTsMs: 100,
	}))
	require.NoError(t, s.UpsertTaskRun(ctx, store.TaskRunRecord{
		ID: "r2", RunID: "r2", LogicalID: "t2", TaskID: "t2", Name: "t2",
		Status: types.StatusSuccess, StartTsMs: 9000,
	}))

	got, err := s.QueryTaskRuns(ctx, store.RunQuery{StartTsMs: 0, EndTsMs: 5000})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TaskID)
}

func TestSqliteTaskEventAppendIsOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTaskEvent(ctx, store.TaskEventRecord{
		ID: "e1", RunID: "run1", TaskID: "t1", Type: "task", Event: "task_start", TsMs: 100,
	}))
	require.NoError(t, s.AppendTaskEvent(ctx, store.TaskEventRecord{
		ID: "e2", RunID: "run1", TaskID: "t1", Type: "task", Event: "task_end", TsMs: 200,
	}))

	events, err := s.QueryTaskEvents(ctx, store.RunQuery{RunID: "run1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "task_start", events[0].Event)
	assert.Equal(t, "task_end", events[1].Event)
}

func TestSqliteTemplateCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTemplate(ctx, store.TemplateRecord{
		TemplateID: "tpl1", Name: "greet", TaskJSONTemplate: []byte(`{"task":{}}`),
	}))

	got, ok, err := s.GetTemplate(ctx, "tpl1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "greet", got.Name)

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteTemplate(ctx, "tpl1"))
	_, ok, err = s.GetTemplate(ctx, "tpl1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSqliteWorkerCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.UpsertWorker(ctx, types.WorkerInfo{
		ID: "w1", Host: "10.0.0.1", Port: 9090, Queues: []string{"default"},
		MaxRunningTasks: 4, LastHeartbeat: now,
	}))

	workers, err := s.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "w1", workers[0].ID)
	assert.Equal(t, []string{"default"}, workers[0].Queues)
}

func TestSqliteCronJobCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cj := types.CronJob{
		ID: "c1", Name: "nightly", Spec: "0 0 * * *", Enabled: true,
		NextTime: time.Now(),
		TaskPayload: types.TaskConfig{ID: "t1", ExecType: types.ExecLocal, ExecCommand: "noop"},
	}
	require.NoError(t, s.UpsertCronJob(ctx, cj))

	list, err := s.ListCronJobs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "nightly", list[0].Name)
	assert.Equal(t, "t1", list[0].TaskPayload.ID)

	require.NoError(t, s.DeleteCronJob(ctx, "c1"))
	list, err = s.ListCronJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSqliteWatermarkRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadWatermark(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	next := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	require.NoError(t, s.SaveWatermark(ctx, "c1", next))

	got, ok, err := s.LoadWatermark(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(next))
}

func TestSqliteUserCredentials(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.PasswordHash(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpsertUser(ctx, "alice", "hash1"))
	hash, ok, err := s.PasswordHash(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hash1", hash)

	require.NoError(t, s.UpsertUser(ctx, "alice", "hash2"))
	hash, ok, err = s.PasswordHash(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hash2", hash)
}
