package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// MemStore is an in-memory Store, used by tests and by single-process
// deployments that don't need durability across restarts.
type MemStore struct {
	mu sync.Mutex

	dagRuns   map[string]DagRunRecord
	taskRuns  map[string]TaskRunRecord
	events    []TaskEventRecord
	templates map[string]TemplateRecord
	workers   map[string]types.WorkerInfo
	cronJobs  map[string]types.CronJob
	marks     map[string]time.Time
	users     map[string]string
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		dagRuns:   make(map[string]DagRunRecord),
		taskRuns:  make(map[string]TaskRunRecord),
		templates: make(map[string]TemplateRecord),
		workers:   make(map[string]types.WorkerInfo),
		cronJobs:  make(map[string]types.CronJob),
		marks:     make(map[string]time.Time),
		users:     make(map[string]string),
	}
}

func (m *MemStore) UpsertDagRun(_ context.Context, rec DagRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dagRuns[rec.RunID] = rec
	return nil
}

func (m *MemStore) QueryDagRuns(_ context.Context, q RunQuery) ([]DagRunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DagRunRecord, 0)
	for _, r := range m.dagRuns {
		if !matchRun(q, r.RunID, r.Name, r.StartTsMs) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTsMs < out[j].StartTsMs })
	return limitDagRuns(out, q.Limit), nil
}

func (m *MemStore) UpsertTaskRun(_ context.Context, rec TaskRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskRuns[rec.ID] = rec
	return nil
}

func (m *MemStore) QueryTaskRuns(_ context.Context, q RunQuery) ([]TaskRunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskRunRecord, 0)
	for _, r := range m.taskRuns {
		if !matchRun(q, r.RunID, r.Name, r.StartTsMs) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTsMs < out[j].StartTsMs })
	return limitTaskRuns(out, q.Limit), nil
}

func (m *MemStore) AppendTaskEvent(_ context.Context, rec TaskEventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, rec)
	return nil
}

func (m *MemStore) QueryTaskEvents(_ context.Context, q RunQuery) ([]TaskEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskEventRecord, 0)
	for _, e := range m.events {
		if !matchRun(q, e.RunID, "", e.TsMs) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TsMs < out[j].TsMs })
	return limitTaskEvents(out, q.Limit), nil
}

func (m *MemStore) UpsertTemplate(_ context.Context, rec TemplateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[rec.TemplateID] = rec
	return nil
}

func (m *MemStore) GetTemplate(_ context.Context, id string) (TemplateRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.templates[id]
	return rec, ok, nil
}

func (m *MemStore) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id)
	return nil
}

func (m *MemStore) ListTemplates(_ context.Context) ([]TemplateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TemplateRecord, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

func (m *MemStore) UpsertWorker(_ context.Context, w types.WorkerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.ID] = w
	return nil
}

func (m *MemStore) ListWorkers(_ context.Context) ([]types.WorkerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.WorkerInfo, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w)
	}
	return out, nil
}

func (m *MemStore) UpsertCronJob(_ context.Context, cj types.CronJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cronJobs[cj.ID] = cj
	return nil
}

func (m *MemStore) DeleteCronJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cronJobs, id)
	return nil
}

func (m *MemStore) ListCronJobs(_ context.Context) ([]types.CronJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.CronJob, 0, len(m.cronJobs))
	for _, cj := range m.cronJobs {
		out = append(out, cj)
	}
	return out, nil
}

func (m *MemStore) SaveWatermark(_ context.Context, cronJobID string, nextTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[cronJobID] = nextTime
	return nil
}

func (m *MemStore) LoadWatermark(_ context.Context, cronJobID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.marks[cronJobID]
	return t, ok, nil
}

func (m *MemStore) UpsertUser(_ context.Context, username, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = passwordHash
	return nil
}

func (m *MemStore) PasswordHash(_ context.Context, username string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.users[username]
	return hash, ok, nil
}

func (m *MemStore) Close() error { return nil }

func matchRun(q RunQuery, runID, name string, tsMs int64) bool {
	if q.RunID != "" && q.RunID != runID {
		return false
	}
	if q.Name != "" && q.Name != name {
		return false
	}
	if q.StartTsMs != 0 && tsMs < q.StartTsMs {
		return false
	}
	if q.EndTsMs != 0 && tsMs > q.EndTsMs {
		return false
	}
	return true
}

func limitDagRuns(recs []DagRunRecord, limit int) []DagRunRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}

func limitTaskRuns(recs []TaskRunRecord, limit int) []TaskRunRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}

func limitTaskEvents(recs []TaskEventRecord, limit int) []TaskEventRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
