package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskConfigWire is the JSON wire shape of a single task (spec §6's "Task
// JSON (single task)"): exec_type is a case-insensitive string, durations
// are millisecond integers, priority is the {-1,0,1,2} integer encoding.
// ToConfig/FromConfig convert to and from the internal TaskConfig, which
// carries no json tags of its own since it is built programmatically by
// the DAG builder and executor as often as it is decoded off the wire.
type TaskConfigWire struct {
	ID              string                     `json:"id"`
	Name            string                     `json:"name"`
	ExecType        string                     `json:"exec_type"`
	ExecCommand     string                     `json:"exec_command"`
	ExecParams      map[string]json.RawMessage `json:"exec_params,omitempty"`
	TimeoutMs       int64                      `json:"timeout_ms"`
	RetryCount      int                        `json:"retry_count"`
	RetryDelayMs    int64                      `json:"retry_delay_ms"`
	RetryExpBackoff bool                       `json:"retry_exp_backoff"`
	Priority        int                        `json:"priority"`
	Queue           string                     `json:"queue"`
	CaptureOutput   bool                       `json:"capture_output"`
	Metadata        map[string]string          `json:"metadata,omitempty"`
	Deps            []string                   `json:"deps,omitempty"`
}

// ToConfig converts a wire task into a TaskConfig, clamping priority for
// ingress per spec §6.
func (w TaskConfigWire) ToConfig() (TaskConfig, error) {
	execType, ok := ParseExecType(w.ExecType)
	if !ok {
		return TaskConfig{}, fmt.Errorf("unknown exec_type %q", w.ExecType)
	}
	var params map[string]string
	if len(w.ExecParams) > 0 {
		params = make(map[string]string, len(w.ExecParams))
		for k, raw := range w.ExecParams {
			params[k] = stringifyParam(raw)
		}
	}
	return TaskConfig{
		ID:                         w.ID,
		Name:                       w.Name,
		ExecType:                   execType,
		ExecCommand:                w.ExecCommand,
		ExecParams:                 params,
		Timeout:                    time.Duration(w.TimeoutMs) * time.Millisecond,
		RetryCount:                 w.RetryCount,
		RetryDelay:                 time.Duration(w.RetryDelayMs) * time.Millisecond,
		RetryUseExponentialBackoff: w.RetryExpBackoff,
		Cancelable:                 true,
		Priority:                   ParsePriority(w.Priority).ClampForIngress(),
		Queue:                      w.Queue,
		Metadata:                   w.Metadata,
		CaptureOutput:              w.CaptureOutput,
		Deps:                       w.Deps,
	}, nil
}

// stringifyParam unwraps a JSON string literal, or dumps any other JSON
// value verbatim, per spec §6's "non-string values are serialized via
// dump so they survive the internal string map".
func stringifyParam(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// FromConfig converts a TaskConfig back to its wire shape, used when
// persisted/rendered task runs are reported back to an HTTP caller.
func FromConfig(cfg TaskConfig) TaskConfigWire {
	var params map[string]json.RawMessage
	if len(cfg.ExecParams) > 0 {
		params = make(map[string]json.RawMessage, len(cfg.ExecParams))
		for k, v := range cfg.ExecParams {
			b, err := json.Marshal(v)
			if err != nil {
				b = []byte(`""`)
			}
			params[k] = b
		}
	}
	return TaskConfigWire{
		ID:              cfg.ID,
		Name:            cfg.Name,
		ExecType:        cfg.ExecType.String(),
		ExecCommand:     cfg.ExecCommand,
		ExecParams:      params,
		TimeoutMs:       cfg.Timeout.Milliseconds(),
		RetryCount:      cfg.RetryCount,
		RetryDelayMs:    cfg.RetryDelay.Milliseconds(),
		RetryExpBackoff: cfg.RetryUseExponentialBackoff,
		Priority:        cfg.Priority.WireInt(),
		Queue:           cfg.Queue,
		CaptureOutput:   cfg.CaptureOutput,
		Metadata:        cfg.Metadata,
		Deps:            cfg.Deps,
	}
}

// WireInt is the inverse of ParsePriority: the {-1,0,1,2} HTTP-surface
// encoding for p.
func (p TaskPriority) WireInt() int {
	switch p {
	case PriorityLow:
		return -1
	case PriorityHigh:
		return 1
	case PriorityCritical:
		return 2
	default:
		return 0
	}
}

// DagConfigWire is the JSON wire shape of a DagConfig.
type DagConfigWire struct {
	FailPolicy  string `json:"fail_policy"`
	MaxParallel int    `json:"max_parallel"`
}

// ToConfig converts a wire DagConfig. An unrecognized fail_policy defaults
// to FailFast.
func (w DagConfigWire) ToConfig() DagConfig {
	fp := FailFast
	if w.FailPolicy == "skip_downstream" {
		fp = SkipDownstream
	}
	return DagConfig{FailPolicy: fp, MaxParallel: w.MaxParallel}
}

// FromDagConfig converts a DagConfig back to its wire shape.
func FromDagConfig(c DagConfig) DagConfigWire {
	return DagConfigWire{FailPolicy: c.FailPolicy.String(), MaxParallel: c.MaxParallel}
}

// DagRunRequestWire is the decoded body of POST /api/dag/run[_async], per
// spec §6: `{name?, config?, tasks:[...], task?}`.
type DagRunRequestWire struct {
	Name   string           `json:"name"`
	Config *DagConfigWire   `json:"config"`
	Tasks  []TaskConfigWire `json:"tasks"`
	Task   *TaskConfigWire  `json:"task"`
}

// ToTasksAndConfig converts the wire request into task specs and a
// DagConfig, mirroring normalizeDagPayload's task/tasks precedence.
func (w DagRunRequestWire) ToTasksAndConfig() ([]TaskConfig, *DagConfig, error) {
	var specs []TaskConfig
	if w.Task != nil {
		cfg, err := w.Task.ToConfig()
		if err != nil {
			return nil, nil, err
		}
		specs = []TaskConfig{cfg}
	} else {
		specs = make([]TaskConfig, 0, len(w.Tasks))
		for _, t := range w.Tasks {
			cfg, err := t.ToConfig()
			if err != nil {
				return nil, nil, err
			}
			specs = append(specs, cfg)
		}
	}
	var dagCfg *DagConfig
	if w.Config != nil {
		c := w.Config.ToConfig()
		dagCfg = &c
	}
	return specs, dagCfg, nil
}

// CronJobWire is the JSON wire shape of a CronJob, for the /api/cron/jobs
// CRUD surface. Exactly one of Task, Dag or Template is populated,
// selected by TargetType.
type CronJobWire struct {
	ID         string           `json:"id,omitempty"`
	Name       string           `json:"name"`
	Spec       string           `json:"spec"`
	TargetType string           `json:"target_type"`
	Enabled    *bool            `json:"enabled,omitempty"`
	Task       *TaskConfigWire  `json:"task,omitempty"`
	Dag        *struct {
		Tasks  []TaskConfigWire `json:"tasks"`
		Config DagConfigWire    `json:"config"`
	} `json:"dag,omitempty"`
	Template *struct {
		TemplateID string         `json:"template_id"`
		Params     map[string]any `json:"params"`
	} `json:"template,omitempty"`
}

// ToJob converts a wire CronJob into the internal CronJob, leaving
// NextTime for the scheduler to compute on first Add.
func (w CronJobWire) ToJob() (CronJob, error) {
	enabled := true
	if w.Enabled != nil {
		enabled = *w.Enabled
	}
	cj := CronJob{ID: w.ID, Name: w.Name, Spec: w.Spec, Enabled: enabled}
	switch lower(w.TargetType) {
	case "dag":
		cj.TargetType = TargetDag
		if w.Dag == nil {
			return CronJob{}, fmt.Errorf("target_type dag requires a dag payload")
		}
		specs := make([]TaskConfig, 0, len(w.Dag.Tasks))
		for _, t := range w.Dag.Tasks {
			cfg, err := t.ToConfig()
			if err != nil {
				return CronJob{}, err
			}
			specs = append(specs, cfg)
		}
		cj.DagPayload = CronDagPayload{Specs: specs, Config: w.Dag.Config.ToConfig()}
	case "template":
		cj.TargetType = TargetTemplate
		if w.Template == nil {
			return CronJob{}, fmt.Errorf("target_type template requires a template payload")
		}
		cj.TemplatePayload = CronTemplatePayload{TemplateID: w.Template.TemplateID, Params: w.Template.Params}
	default:
		cj.TargetType = TargetSingleTask
		if w.Task == nil {
			return CronJob{}, fmt.Errorf("target_type task requires a task payload")
		}
		cfg, err := w.Task.ToConfig()
		if err != nil {
			return CronJob{}, err
		}
		cj.TaskPayload = cfg
	}
	return cj, nil
}

// FromJob converts an internal CronJob back to its wire shape for listing.
func FromJob(cj CronJob) CronJobWire {
	enabled := cj.Enabled
	w := CronJobWire{ID: cj.ID, Name: cj.Name, Spec: cj.Spec, Enabled: &enabled}
	switch cj.TargetType {
	case TargetDag:
		w.TargetType = "dag"
		tasks := make([]TaskConfigWire, 0, len(cj.DagPayload.Specs))
		for _, t := range cj.DagPayload.Specs {
			tasks = append(tasks, FromConfig(t))
		}
		w.Dag = &struct {
			Tasks  []TaskConfigWire `json:"tasks"`
			Config DagConfigWire    `json:"config"`
		}{Tasks: tasks, Config: FromDagConfig(cj.DagPayload.Config)}
	case TargetTemplate:
		w.TargetType = "template"
		w.Template = &struct {
			TemplateID string         `json:"template_id"`
			Params     map[string]any `json:"params"`
		}{TemplateID: cj.TemplatePayload.TemplateID, Params: cj.TemplatePayload.Params}
	default:
		w.TargetType = "task"
		tw := FromConfig(cj.TaskPayload)
		w.Task = &tw
	}
	return w
}
