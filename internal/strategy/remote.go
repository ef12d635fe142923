package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskhub/taskhub/internal/types"
	"github.com/taskhub/taskhub/internal/workerreg"
)

// RemoteRequest is the JSON body POSTed to a worker's execute endpoint.
type RemoteRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	ExecType    string            `json:"exec_type"`
	ExecCommand string            `json:"exec_command"`
	ExecParams  map[string]string `json:"exec_params"`
	TimeoutMs   int64             `json:"timeout_ms"`
	CaptureOutput bool            `json:"capture_output"`
}

// BuildRequestJSON serializes a TaskConfig the way Remote dispatch sends it,
// and the way parseTaskConfig round-trips it back (spec §8 round-trip
// property).
func BuildRequestJSON(cfg types.TaskConfig) ([]byte, error) {
	req := RemoteRequest{
		ID:            cfg.ID,
		Name:          cfg.Name,
		ExecType:      cfg.ExecType.String(),
		ExecCommand:   cfg.ExecCommand,
		ExecParams:    cfg.ExecParams,
		TimeoutMs:     cfg.Timeout.Milliseconds(),
		CaptureOutput: cfg.CaptureOutput,
	}
	return json.Marshal(req)
}

// workerCooldown is how long a worker is cooled down after a failed
// dispatch, per spec §4.2.
const workerCooldown = 5 * time.Second

// NewRemoteStrategy returns the Remote strategy: selects a worker, POSTs the
// request to http://host:port/api/worker/execute, and parses the returned
// TaskResult. 5xx and connection errors mark the worker for cooldown.
// selfWorkerID, when non-empty, is excluded from selection so a worker
// never dispatches Remote tasks to itself.
func NewRemoteStrategy(reg *workerreg.Registry, selfWorkerID string) Strategy {
	return StrategyFunc(func(ctx context.Context, sctx *Context) types.TaskResult {
		return remoteExecute(ctx, sctx, reg, selfWorkerID)
	})
}

func remoteExecute(ctx context.Context, sctx *Context, reg *workerreg.Registry, selfWorkerID string) types.TaskResult {
	start := time.Now()
	queue := sctx.Cfg.Queue
	if queue == "" {
		queue = "default"
	}

	w, ok := reg.PickForQueue(queue, selfWorkerID)
	if !ok {
		return types.Failed("no worker available for queue " + queue)
	}

	body, err := BuildRequestJSON(sctx.Cfg)
	if err != nil {
		return types.Failed("exception: " + err.Error())
	}

	url := fmt.Sprintf("http://%s:%d/api/worker/execute", w.Host, w.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.Failed("exception: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: sctx.RemainingTimeout(30 * time.Second)}
	resp, err := client.Do(req)
	if err != nil {
		reg.MarkDispatchFailure(w.ID, workerCooldown)
		return types.TaskResult{Status: types.StatusFailed, Message: "http transport: " + err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		reg.MarkDispatchFailure(w.ID, workerCooldown)
		return types.TaskResult{Status: types.StatusFailed, Message: fmt.Sprintf("worker returned %s", resp.Status), DurationMs: time.Since(start).Milliseconds()}
	}

	raw, _ := io.ReadAll(resp.Body)
	var result types.TaskResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return types.Failed("exception: invalid worker response: " + err.Error())
	}
	result.WorkerID = w.ID
	result.WorkerHost = w.Host
	result.WorkerPort = w.Port
	if result.DurationMs == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
	}
	return result
}
