package tasklog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/taskhub/taskhub/internal/types"
)

// FormatLine renders rec in the wire log file format from spec §6:
//
//	ts_ms=[<ms>] level=[LEVEL] stream=STREAM task_id=<id> seq=<n> [dag_run_id=...] [worker_id=...] [attempt=n] [duration_ms=n] msg="<escaped>" [k=v ...]
func FormatLine(rec types.LogRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ts_ms=[%d] level=[%s] stream=%s task_id=%s seq=%d",
		rec.Timestamp.UnixMilli(), rec.Level.String(), rec.Stream.String(), rec.TaskID, rec.Seq)
	if rec.DagRunID != "" {
		fmt.Fprintf(&b, " dag_run_id=%s", rec.DagRunID)
	}
	if rec.WorkerID != "" {
		fmt.Fprintf(&b, " worker_id=%s", rec.WorkerID)
	}
	if rec.Attempt > 0 {
		fmt.Fprintf(&b, " attempt=%d", rec.Attempt)
	}
	if rec.DurationMs > 0 {
		fmt.Fprintf(&b, " duration_ms=%d", rec.DurationMs)
	}
	fmt.Fprintf(&b, " msg=%q", rec.Message)

	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, rec.Fields[k])
	}
	return b.String()
}
