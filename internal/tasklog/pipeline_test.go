package tasklog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/types"
)

type stubSink struct {
	records []types.LogRecord
}

func (s *stubSink) Write(rec types.LogRecord) error {
	s.records = append(s.records, rec)
	return nil
}

type stubStreamer struct {
	logs   []types.LogRecord
	events []string
}

func (s *stubStreamer) BroadcastLog(rec types.LogRecord) { s.logs = append(s.logs, rec) }
func (s *stubStreamer) BroadcastEvent(taskID, runID, event string, extra map[string]string) {
	s.events = append(s.events, event)
}

func TestPipelineLogFansOutToBufferSinkAndStreamer(t *testing.T) {
	sink := &stubSink{}
	streamer := &stubStreamer{}
	p := NewPipeline(10, streamer, sink)

	p.Log(types.LogRecord{TaskID: "t1", Message: "hello"})

	require.Len(t, sink.records, 1)
	assert.Equal(t, "hello", sink.records[0].Message)
	require.Len(t, streamer.logs, 1)
	assert.Equal(t, "hello", streamer.logs[0].Message)

	tail := p.Buffer.Tail("t1", "", 10)
	require.Len(t, tail, 1)
}

func TestPipelineLogStampsZeroTimestamp(t *testing.T) {
	p := NewPipeline(10, nil)
	p.Log(types.LogRecord{TaskID: "t1", Message: "x"})
	tail := p.Buffer.Tail("t1", "", 10)
	require.Len(t, tail, 1)
	assert.False(t, tail[0].Timestamp.IsZero())
}

func TestPipelineEventEmitsLogRecordAndStreamsEvent(t *testing.T) {
	streamer := &stubStreamer{}
	p := NewPipeline(10, streamer)

	p.Event("t1", "run1", "task_start", map[string]string{"k": "v"})

	require.Len(t, streamer.events, 1)
	assert.Equal(t, "task_start", streamer.events[0])

	tail := p.Buffer.Tail("t1", "run1", 10)
	require.Len(t, tail, 1)
	assert.Equal(t, types.StreamEvent, tail[0].Stream)
	assert.Equal(t, "task_start", tail[0].Message)
}

func TestPipelineWithNilStreamerDoesNotPanic(t *testing.T) {
	p := NewPipeline(10, nil)
	assert.NotPanics(t, func() {
		p.Log(types.LogRecord{TaskID: "t1", Message: "x"})
		p.Event("t1", "", "task_start", nil)
	})
}
