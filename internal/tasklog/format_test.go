package tasklog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskhub/taskhub/internal/types"
)

func TestFormatLineIncludesCoreFields(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	line := FormatLine(types.LogRecord{
		TaskID:    "t1",
		Level:     types.LevelInfo,
		Stream:    types.StreamStdout,
		Message:   "hello world",
		Timestamp: ts,
		Seq:       3,
	})

	assert.Contains(t, line, "ts_ms=[1700000000000]")
	assert.Contains(t, line, "level=[INFO]")
	assert.Contains(t, line, "task_id=t1")
	assert.Contains(t, line, "seq=3")
	assert.Contains(t, line, `msg="hello world"`)
}

func TestFormatLineOmitsZeroOptionalFields(t *testing.T) {
	line := FormatLine(types.LogRecord{TaskID: "t1", Message: "x"})
	assert.NotContains(t, line, "dag_run_id=")
	assert.NotContains(t, line, "worker_id=")
	assert.NotContains(t, line, "attempt=")
	assert.NotContains(t, line, "duration_ms=")
}

func TestFormatLineIncludesOptionalFieldsWhenSet(t *testing.T) {
	line := FormatLine(types.LogRecord{
		TaskID: "t1", Message: "x", DagRunID: "d1", WorkerID: "w1",
		Attempt: 2, DurationMs: 500,
	})
	assert.Contains(t, line, "dag_run_id=d1")
	assert.Contains(t, line, "worker_id=w1")
	assert.Contains(t, line, "attempt=2")
	assert.Contains(t, line, "duration_ms=500")
}

func TestFormatLineSortsExtraFieldsByKey(t *testing.T) {
	line := FormatLine(types.LogRecord{
		TaskID: "t1", Message: "x",
		Fields: map[string]string{"zebra": "1", "alpha": "2"},
	})
	assert.Less(t, indexOf(line, "alpha="), indexOf(line, "zebra="))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
