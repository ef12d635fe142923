// Package tasklog implements the structured log pipeline (C2): a per-task
// ring buffer, a line formatter, rotating file and console sinks, and a
// WebSocket fan-out hook.
package tasklog

import (
	"sync"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// DefaultPerTaskMaxRecords is the default ring buffer capacity per task.
const DefaultPerTaskMaxRecords = 2000

type taskKey struct {
	taskID string
	runID  string
}

type ring struct {
	records    []types.LogRecord
	nextSeq    uint64
	lastTouch  time.Time
}

// Buffer is the per-task ring buffer keyed by (taskID, runID).
type Buffer struct {
	mu      sync.Mutex
	rings   map[taskKey]*ring
	maxSize int
	nowFn   func() time.Time
}

// NewBuffer creates a Buffer with the given per-task capacity.
func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = DefaultPerTaskMaxRecords
	}
	return &Buffer{rings: make(map[taskKey]*ring), maxSize: maxSize, nowFn: time.Now}
}

// Append assigns the next sequence number for (rec.TaskID, rec.RunID),
// stores rec, and evicts the oldest record once the ring exceeds capacity.
func (b *Buffer) Append(rec types.LogRecord) types.LogRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := taskKey{rec.TaskID, rec.RunID}
	r, ok := b.rings[key]
	if !ok {
		r = &ring{}
		b.rings[key] = r
	}
	rec.Seq = r.nextSeq
	r.nextSeq++
	r.lastTouch = b.nowFn()
	r.records = append(r.records, rec)
	if len(r.records) > b.maxSize {
		r.records = r.records[len(r.records)-b.maxSize:]
	}
	return rec
}

// QueryResult is the page returned by Query.
type QueryResult struct {
	Records  []types.LogRecord
	NextFrom uint64
}

// Query scans for the first record with Seq >= fromSeq (a ring may have
// lost earlier seqs to eviction) and returns up to limit records.
func (b *Buffer) Query(taskID, runID string, fromSeq uint64, limit int) QueryResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rings[taskKey{taskID, runID}]
	if !ok {
		return QueryResult{NextFrom: fromSeq}
	}
	var out []types.LogRecord
	for _, rec := range r.records {
		if rec.Seq < fromSeq {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	next := fromSeq
	if len(out) > 0 {
		next = out[len(out)-1].Seq + 1
	}
	return QueryResult{Records: out, NextFrom: next}
}

// Tail returns the last n records for (taskID, runID).
func (b *Buffer) Tail(taskID, runID string, n int) []types.LogRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rings[taskKey{taskID, runID}]
	if !ok || n <= 0 {
		return nil
	}
	if n >= len(r.records) {
		out := make([]types.LogRecord, len(r.records))
		copy(out, r.records)
		return out
	}
	out := make([]types.LogRecord, n)
	copy(out, r.records[len(r.records)-n:])
	return out
}

// PruneOlderThan drops per-task buffers whose last append was older than
// age.
func (b *Buffer) PruneOlderThan(age time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFn()
	pruned := 0
	for k, r := range b.rings {
		if now.Sub(r.lastTouch) > age {
			delete(b.rings, k)
			pruned++
		}
	}
	return pruned
}
