// Package store defines the persistence boundary (C13): the dag_run,
// task_run, task_event and task_template tables plus worker, cron job,
// watermark and user records behind one interface. MemStore serializes
// every call through a single mutex; the sqlite adapter through a single
// connection, because the underlying engine is single-writer.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// DagRunRecord is a row of the dag_run table.
type DagRunRecord struct {
	RunID        string
	Name         string
	Source       string
	Status       types.TaskStatus
	StartTsMs    int64
	EndTsMs      int64
	Total        int
	SuccessCount int
	FailedCount  int
	SkippedCount int
	Message      string
	DagJSON      json.RawMessage
	WorkflowJSON json.RawMessage
}

// TaskRunRecord is a row of the task_run table.
type TaskRunRecord struct {
	ID             string
	RunID          string
	LogicalID      string
	TaskID         string
	Name           string
	ExecType       types.TaskExecType
	ExecCommand    string
	ExecParamsJSON json.RawMessage
	DepsJSON       json.RawMessage
	Status         types.TaskStatus
	ExitCode       int
	DurationMs     int64
	Message        string
	Stdout         string
	Stderr         string
	Attempt        int
	MaxAttempts    int
	StartTsMs      int64
	EndTsMs        int64
	WorkerID       string
	WorkerHost     string
	WorkerPort     int
	MetadataJSON   json.RawMessage
}

// TaskEventRecord is a row of the task_event table.
type TaskEventRecord struct {
	ID          string
	RunID       string
	TaskID      string
	Type        string
	Event       string
	TsMs        int64
	PayloadJSON json.RawMessage
}

// TemplateRecord is a row of the task_template table.
type TemplateRecord struct {
	TemplateID       string
	Name             string
	Description      string
	TaskJSONTemplate json.RawMessage
	SchemaJSON       json.RawMessage
}

// RunQuery filters dag_run/task_run/task_event listings.
type RunQuery struct {
	RunID     string
	Name      string
	StartTsMs int64
	EndTsMs   int64
	Limit     int
}

// Store is the persistence boundary every concrete adapter (in-memory,
// sqlite) implements.
type Store interface {
	UpsertDagRun(ctx context.Context, rec DagRunRecord) error
	QueryDagRuns(ctx context.Context, q RunQuery) ([]DagRunRecord, error)

	UpsertTaskRun(ctx context.Context, rec TaskRunRecord) error
	QueryTaskRuns(ctx context.Context, q RunQuery) ([]TaskRunRecord, error)

	AppendTaskEvent(ctx context.Context, rec TaskEventRecord) error
	QueryTaskEvents(ctx context.Context, q RunQuery) ([]TaskEventRecord, error)

	UpsertTemplate(ctx context.Context, rec TemplateRecord) error
	GetTemplate(ctx context.Context, templateID string) (TemplateRecord, bool, error)
	DeleteTemplate(ctx context.Context, templateID string) error
	ListTemplates(ctx context.Context) ([]TemplateRecord, error)

	UpsertWorker(ctx context.Context, w types.WorkerInfo) error
	ListWorkers(ctx context.Context) ([]types.WorkerInfo, error)

	UpsertCronJob(ctx context.Context, cj types.CronJob) error
	DeleteCronJob(ctx context.Context, id string) error
	ListCronJobs(ctx context.Context) ([]types.CronJob, error)

	// Watermark stores a next-fire checkpoint per cron job (SPEC_FULL.md
	// addition, grounded on the teacher's catchup/watermark design).
	// Neither the service nor the cron scheduler calls these methods;
	// StartCron re-adds stored jobs without consulting a watermark.
	SaveWatermark(ctx context.Context, cronJobID string, nextTime time.Time) error
	LoadWatermark(ctx context.Context, cronJobID string) (time.Time, bool, error)

	UpsertUser(ctx context.Context, username, passwordHash string) error
	PasswordHash(ctx context.Context, username string) (hash string, ok bool, err error)

	Close() error
}
