package tasklog

import (
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// Streamer fans a LogRecord or a task/DAG event out over WebSocket topics
// (C14). Implemented by internal/wshub; kept as an interface here so
// tasklog never imports the hub package.
type Streamer interface {
	BroadcastLog(rec types.LogRecord)
	BroadcastEvent(taskID, runID, event string, extra map[string]string)
}

// Pipeline is the C2 log pipeline: every Append fans out to the ring
// buffer, every registered Sink, and the Streamer.
type Pipeline struct {
	Buffer   *Buffer
	sinks    []Sink
	streamer Streamer
}

// NewPipeline builds a Pipeline with the given sinks and streamer.
func NewPipeline(maxRecords int, streamer Streamer, sinks ...Sink) *Pipeline {
	return &Pipeline{Buffer: NewBuffer(maxRecords), sinks: sinks, streamer: streamer}
}

// Log appends rec to the buffer, fans it out to every sink, and streams it.
func (p *Pipeline) Log(rec types.LogRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec = p.Buffer.Append(rec)
	for _, s := range p.sinks {
		_ = s.Write(rec)
	}
	if p.streamer != nil {
		p.streamer.BroadcastLog(rec)
	}
}

// Event emits a structured task/DAG lifecycle event (task_start,
// attempt_start, attempt_end, task_end, dag_node_ready, dag_node_end,
// dag_node_skipped, ...) both as a log record (stream=Event) and as a
// dedicated WS event broadcast.
func (p *Pipeline) Event(taskID, runID, event string, extra map[string]string) {
	p.Log(types.LogRecord{
		TaskID:  taskID,
		RunID:   runID,
		Stream:  types.StreamEvent,
		Level:   types.LevelInfo,
		Message: event,
		Fields:  extra,
	})
	if p.streamer != nil {
		p.streamer.BroadcastEvent(taskID, runID, event, extra)
	}
}
