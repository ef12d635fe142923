package httpapi

import (
	"net/http"
	"strconv"

	"github.com/taskhub/taskhub/internal/store"
)

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// runQueryByRunID builds a single-result RunQuery for a detail lookup.
func runQueryByRunID(id string) store.RunQuery {
	return store.RunQuery{RunID: id, Limit: 1}
}

// runQueryFromRequest builds a store.RunQuery from the common filter
// params shared by /api/dag/runs, /api/dag/task_runs and /api/dag/events,
// clamping limit to [1, maxLimit] with the given default.
func runQueryFromRequest(r *http.Request, defLimit, maxLimit int) store.RunQuery {
	return store.RunQuery{
		RunID:     r.URL.Query().Get("run_id"),
		Name:      r.URL.Query().Get("name"),
		StartTsMs: queryInt64(r, "start_ts_ms", 0),
		EndTsMs:   queryInt64(r, "end_ts_ms", 0),
		Limit:     clamp(queryInt(r, "limit", defLimit), 1, maxLimit),
	}
}
