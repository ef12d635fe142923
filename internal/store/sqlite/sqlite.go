// Package sqlite implements the SQL persistence adapter (C18): a
// modernc.org/sqlite-backed Store with pressly/goose/v3 migrations,
// covering the four tables from §6 plus the worker/cron/watermark/auth
// additions from the expanded spec.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a sqlite-backed store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and applies
// any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is single-writer; avoid SQLITE_BUSY races

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) UpsertDagRun(ctx context.Context, r store.DagRunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dag_run (run_id, name, source, status, start_ts_ms, end_ts_ms, total, success_count, failed_count, skipped_count, message, dag_json, workflow_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(run_id) DO UPDATE SET
			status=excluded.status, end_ts_ms=excluded.end_ts_ms, total=excluded.total,
			success_count=excluded.success_count, failed_count=excluded.failed_count,
			skipped_count=excluded.skipped_count, message=excluded.message,
			dag_json=excluded.dag_json, workflow_json=excluded.workflow_json`,
		r.RunID, r.Name, r.Source, int(r.Status), r.StartTsMs, r.EndTsMs, r.Total,
		r.SuccessCount, r.FailedCount, r.SkippedCount, r.Message, string(r.DagJSON), string(r.WorkflowJSON))
	return err
}

func (s *Store) QueryDagRuns(ctx context.Context, q store.RunQuery) ([]store.DagRunRecord, error) {
	where, args := buildRunFilter(q, "run_id", "name", "start_ts_ms")
	limit := clampLimit(q.Limit, 500)
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, source, status, start_ts_ms, end_ts_ms, total, success_count, failed_count, skipped_count, message, dag_json, workflow_json
		FROM dag_run `+where+` ORDER BY start_ts_ms ASC LIMIT ?`, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DagRunRecord
	for rows.Next() {
		var r store.DagRunRecord
		var status int
		var dagJSON, wfJSON string
		if err := rows.Scan(&r.RunID, &r.Name, &r.Source, &status, &r.StartTsMs, &r.EndTsMs, &r.Total,
			&r.SuccessCount, &r.FailedCount, &r.SkippedCount, &r.Message, &dagJSON, &wfJSON); err != nil {
			return nil, err
		}
		r.Status = types.TaskStatus(status)
		r.DagJSON = json.RawMessage(dagJSON)
		r.WorkflowJSON = json.RawMessage(wfJSON)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpsertTaskRun(ctx context.Context, r store.TaskRunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_run (id, run_id, logical_id, task_id, name, exec_type, exec_command, exec_params_json, deps_json,
			status, exit_code, duration_ms, message, stdout, stderr, attempt, max_attempts, start_ts_ms, end_ts_ms,
			worker_id, worker_host, worker_port, metadata_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(run_id, logical_id) DO UPDATE SET
			status=excluded.status, exit_code=excluded.exit_code, duration_ms=excluded.duration_ms,
			message=excluded.message, stdout=excluded.stdout, stderr=excluded.stderr, attempt=excluded.attempt,
			end_ts_ms=excluded.end_ts_ms, worker_id=excluded.worker_id, worker_host=excluded.worker_host,
			worker_port=excluded.worker_port, metadata_json=excluded.metadata_json`,
		r.ID, r.RunID, r.LogicalID, r.TaskID, r.Name, int(r.ExecType), r.ExecCommand, string(r.ExecParamsJSON), string(r.DepsJSON),
		int(r.Status), r.ExitCode, r.DurationMs, r.Message, r.Stdout, r.Stderr, r.Attempt, r.MaxAttempts, r.StartTsMs, r.EndTsMs,
		r.WorkerID, r.WorkerHost, r.WorkerPort, string(r.MetadataJSON))
	return err
}

func (s *Store) QueryTaskRuns(ctx context.Context, q store.RunQuery) ([]store.TaskRunRecord, error) {
	where, args := buildRunFilter(q, "run_id", "name", "start_ts_ms")
	limit := clampLimit(q.Limit, 1000)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, logical_id, task_id, name, exec_type, exec_command, exec_params_json, deps_json,
			status, exit_code, duration_ms, message, stdout, stderr, attempt, max_attempts, start_ts_ms, end_ts_ms,
			worker_id, worker_host, worker_port, metadata_json
		FROM task_run `+where+` ORDER BY start_ts_ms ASC LIMIT ?`, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TaskRunRecord
	for rows.Next() {
		var r store.TaskRunRecord
		var execType, status int
		var execParams, deps, metadata string
		if err := rows.Scan(&r.ID, &r.RunID, &r.LogicalID, &r.TaskID, &r.Name, &execType, &r.ExecCommand, &execParams, &deps,
			&status, &r.ExitCode, &r.DurationMs, &r.Message, &r.Stdout, &r.Stderr, &r.Attempt, &r.MaxAttempts, &r.StartTsMs, &r.EndTsMs,
			&r.WorkerID, &r.WorkerHost, &r.WorkerPort, &metadata); err != nil {
			return nil, err
		}
		r.ExecType = types.TaskExecType(execType)
		r.Status = types.TaskStatus(status)
		r.ExecParamsJSON = json.RawMessage(execParams)
		r.DepsJSON = json.RawMessage(deps)
		r.MetadataJSON = json.RawMessage(metadata)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) AppendTaskEvent(ctx context.Context, e store.TaskEventRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_event (id, run_id, task_id, type, event, ts_ms, payload_json) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.RunID, e.TaskID, e.Type, e.Event, e.TsMs, string(e.PayloadJSON))
	return err
}

func (s *Store) QueryTaskEvents(ctx context.Context, q store.RunQuery) ([]store.TaskEventRecord, error) {
	where, args := buildRunFilter(q, "run_id", "", "ts_ms")
	limit := clampLimit(q.Limit, 1000)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, task_id, type, event, ts_ms, payload_json FROM task_event `+where+` ORDER BY ts_ms ASC LIMIT ?`,
		append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TaskEventRecord
	for rows.Next() {
		var e store.TaskEventRecord
		var payload string
		if err := rows.Scan(&e.ID, &e.RunID, &e.TaskID, &e.Type, &e.Event, &e.TsMs, &payload); err != nil {
			return nil, err
		}
		e.PayloadJSON = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpsertTemplate(ctx context.Context, t store.TemplateRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_template (template_id, name, description, task_json_template, schema_json) VALUES (?,?,?,?,?)
		ON CONFLICT(template_id) DO UPDATE SET name=excluded.name, description=excluded.description,
			task_json_template=excluded.task_json_template, schema_json=excluded.schema_json`,
		t.TemplateID, t.Name, t.Description, string(t.TaskJSONTemplate), string(t.SchemaJSON))
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (store.TemplateRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT template_id, name, description, task_json_template, schema_json FROM task_template WHERE template_id = ?`, id)
	var t store.TemplateRecord
	var tpl, schema string
	if err := row.Scan(&t.TemplateID, &t.Name, &t.Description, &tpl, &schema); err != nil {
		if err == sql.ErrNoRows {
			return store.TemplateRecord{}, false, nil
		}
		return store.TemplateRecord{}, false, err
	}
	t.TaskJSONTemplate = json.RawMessage(tpl)
	t.SchemaJSON = json.RawMessage(schema)
	return t, true, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_template WHERE template_id = ?`, id)
	return err
}

func (s *Store) ListTemplates(ctx context.Context) ([]store.TemplateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT template_id, name, description, task_json_template, schema_json FROM task_template`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.TemplateRecord
	for rows.Next() {
		var t store.TemplateRecord
		var tpl, schema string
		if err := rows.Scan(&t.TemplateID, &t.Name, &t.Description, &tpl, &schema); err != nil {
			return nil, err
		}
		t.TaskJSONTemplate = json.RawMessage(tpl)
		t.SchemaJSON = json.RawMessage(schema)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpsertWorker(ctx context.Context, w types.WorkerInfo) error {
	queuesJSON, _ := json.Marshal(w.Queues)
	labelsJSON, _ := json.Marshal(w.Labels)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker (id, host, port, queues_json, labels_json, running_tasks, max_tasks, last_heartbeat_ms, cooldown_until_ms)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET host=excluded.host, port=excluded.port, queues_json=excluded.queues_json,
			labels_json=excluded.labels_json, running_tasks=excluded.running_tasks, max_tasks=excluded.max_tasks,
			last_heartbeat_ms=excluded.last_heartbeat_ms, cooldown_until_ms=excluded.cooldown_until_ms`,
		w.ID, w.Host, w.Port, string(queuesJSON), string(labelsJSON), w.RunningTasks, w.MaxRunningTasks,
		w.LastHeartbeat.UnixMilli(), w.DispatchCooldownUntil.UnixMilli())
	return err
}

func (s *Store) ListWorkers(ctx context.Context) ([]types.WorkerInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, host, port, queues_json, labels_json, running_tasks, max_tasks, last_heartbeat_ms, cooldown_until_ms FROM worker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.WorkerInfo
	for rows.Next() {
		var w types.WorkerInfo
		var queuesJSON, labelsJSON string
		var heartbeatMs, cooldownMs int64
		if err := rows.Scan(&w.ID, &w.Host, &w.Port, &queuesJSON, &labelsJSON, &w.RunningTasks, &w.MaxRunningTasks, &heartbeatMs, &cooldownMs); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(queuesJSON), &w.Queues)
		json.Unmarshal([]byte(labelsJSON), &w.Labels)
		w.LastHeartbeat = time.UnixMilli(heartbeatMs)
		w.DispatchCooldownUntil = time.UnixMilli(cooldownMs)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) UpsertCronJob(ctx context.Context, cj types.CronJob) error {
	taskJSON, _ := json.Marshal(cj.TaskPayload)
	dagJSON, _ := json.Marshal(cj.DagPayload)
	tplJSON, _ := json.Marshal(cj.TemplatePayload)
	enabled := 0
	if cj.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_job (id, name, spec, target_type, next_time_ms, enabled, task_payload_json, dag_payload_json, template_payload_json)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, spec=excluded.spec, target_type=excluded.target_type,
			next_time_ms=excluded.next_time_ms, enabled=excluded.enabled, task_payload_json=excluded.task_payload_json,
			dag_payload_json=excluded.dag_payload_json, template_payload_json=excluded.template_payload_json`,
		cj.ID, cj.Name, cj.Spec, int(cj.TargetType), cj.NextTime.UnixMilli(), enabled, string(taskJSON), string(dagJSON), string(tplJSON))
	return err
}

func (s *Store) DeleteCronJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cron_job WHERE id = ?`, id)
	return err
}

func (s *Store) ListCronJobs(ctx context.Context) ([]types.CronJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, spec, target_type, next_time_ms, enabled, task_payload_json, dag_payload_json, template_payload_json FROM cron_job`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.CronJob
	for rows.Next() {
		var cj types.CronJob
		var targetType, enabled int
		var nextMs int64
		var taskJSON, dagJSON, tplJSON string
		if err := rows.Scan(&cj.ID, &cj.Name, &cj.Spec, &targetType, &nextMs, &enabled, &taskJSON, &dagJSON, &tplJSON); err != nil {
			return nil, err
		}
		cj.TargetType = types.CronTargetType(targetType)
		cj.NextTime = time.UnixMilli(nextMs)
		cj.Enabled = enabled != 0
		json.Unmarshal([]byte(taskJSON), &cj.TaskPayload)
		json.Unmarshal([]byte(dagJSON), &cj.DagPayload)
		json.Unmarshal([]byte(tplJSON), &cj.TemplatePayload)
		out = append(out, cj)
	}
	return out, rows.Err()
}

func (s *Store) SaveWatermark(ctx context.Context, cronJobID string, nextTime time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_watermark (cron_job_id, next_time_ms) VALUES (?,?)
		ON CONFLICT(cron_job_id) DO UPDATE SET next_time_ms=excluded.next_time_ms`,
		cronJobID, nextTime.UnixMilli())
	return err
}

func (s *Store) LoadWatermark(ctx context.Context, cronJobID string) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT next_time_ms FROM scheduler_watermark WHERE cron_job_id = ?`, cronJobID)
	var ms int64
	if err := row.Scan(&ms); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *Store) UpsertUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_user (username, password_hash) VALUES (?,?)
		ON CONFLICT(username) DO UPDATE SET password_hash=excluded.password_hash`,
		username, passwordHash)
	return err
}

func (s *Store) PasswordHash(ctx context.Context, username string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT password_hash FROM auth_user WHERE username = ?`, username)
	var hash string
	if err := row.Scan(&hash); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return hash, true, nil
}

func buildRunFilter(q store.RunQuery, runIDCol, nameCol, tsCol string) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if q.RunID != "" {
		clauses = append(clauses, runIDCol+" = ?")
		args = append(args, q.RunID)
	}
	if nameCol != "" && q.Name != "" {
		clauses = append(clauses, nameCol+" = ?")
		args = append(args, q.Name)
	}
	if q.StartTsMs != 0 {
		clauses = append(clauses, tsCol+" >= ?")
		args = append(args, q.StartTsMs)
	}
	if q.EndTsMs != 0 {
		clauses = append(clauses, tsCol+" <= ?")
		args = append(args, q.EndTsMs)
	}
	if len(clauses) == 0 {
		return "", args
	}
	where := "WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return max
	}
	if limit > max {
		return max
	}
	return limit
}
