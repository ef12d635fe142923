package tasklog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/types"
)

func TestBufferAppendAssignsMonotonicSeq(t *testing.T) {
	b := NewBuffer(10)
	r1 := b.Append(types.LogRecord{TaskID: "t1", Message: "one"})
	r2 := b.Append(types.LogRecord{TaskID: "t1", Message: "two"})
	assert.Equal(t, uint64(0), r1.Seq)
	assert.Equal(t, uint64(1), r2.Seq)
}

func TestBufferSeqIsScopedPerRunID(t *testing.T) {
	b := NewBuffer(10)
	a := b.Append(types.LogRecord{TaskID: "t1", RunID: "run-a", Message: "a"})
	c := b.Append(types.LogRecord{TaskID: "t1", RunID: "run-b", Message: "c"})
	assert.Equal(t, uint64(0), a.Seq)
	assert.Equal(t, uint64(0), c.Seq)
}

func TestBufferEvictsOldestBeyondCapacity(t *testing.T) {
	b := NewBuffer(2)
	b.Append(types.LogRecord{TaskID: "t1", Message: "one"})
	b.Append(types.LogRecord{TaskID: "t1", Message: "two"})
	b.Append(types.LogRecord{TaskID: "t1", Message: "three"})

	tail := b.Tail("t1", "", 10)
	require.Len(t, tail, 2)
	assert.Equal(t, "two", tail[0].Message)
	assert.Equal(t, "three", tail[1].Message)
}

func TestBufferQueryFromSeqSkipsEvictedAndReturnsNextFrom(t *testing.T) {
	b := NewBuffer(2)
	for _, m := range []string{"one", "two", "three"} {
		b.Append(types.LogRecord{TaskID: "t1", Message: m})
	}

	res := b.Query("t1", "", 0, 10)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "two", res.Records[0].Message)
	assert.Equal(t, "three", res.Records[1].Message)
	assert.Equal(t, uint64(3), res.NextFrom)
}

func TestBufferQueryRespectsLimit(t *testing.T) {
	b := NewBuffer(10)
	for _, m := range []string{"one", "two", "three"} {
		b.Append(types.LogRecord{TaskID: "t1", Message: m})
	}

	res := b.Query("t1", "", 0, 1)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "one", res.Records[0].Message)
	assert.Equal(t, uint64(1), res.NextFrom)
}

func TestBufferQueryUnknownKeyReturnsEmptyAtSameFrom(t *testing.T) {
	b := NewBuffer(10)
	res := b.Query("ghost", "", 5, 10)
	assert.Empty(t, res.Records)
	assert.Equal(t, uint64(5), res.NextFrom)
}

func TestBufferTailReturnsFewerThanRequestedWithoutPanicking(t *testing.T) {
	b := NewBuffer(10)
	b.Append(types.LogRecord{TaskID: "t1", Message: "only"})
	tail := b.Tail("t1", "", 5)
	require.Len(t, tail, 1)
	assert.Equal(t, "only", tail[0].Message)
}

func TestBufferPruneOlderThanDropsStaleRings(t *testing.T) {
	b := NewBuffer(10)
	now := time.Now()
	b.nowFn = func() time.Time { return now }
	b.Append(types.LogRecord{TaskID: "stale", Message: "x"})

	b.nowFn = func() time.Time { return now.Add(2 * time.Hour) }
	b.Append(types.LogRecord{TaskID: "fresh", Message: "y"})

	pruned := b.PruneOlderThan(time.Hour)
	assert.Equal(t, 1, pruned)
	assert.Empty(t, b.Tail("stale", "", 10))
	assert.Len(t, b.Tail("fresh", "", 10), 1)
}
