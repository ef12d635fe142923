package types

import "time"

// CronTargetType selects what a CronJob dispatches to when it fires.
type CronTargetType int

const (
	TargetSingleTask CronTargetType = iota
	TargetDag
	TargetTemplate
)

// CronDagPayload is the payload of a CronJob whose TargetType is TargetDag:
// the DAG's node specs plus its DagConfig.
type CronDagPayload struct {
	Specs  []TaskConfig
	Config DagConfig
}

// CronTemplatePayload is the payload of a CronJob whose TargetType is
// TargetTemplate.
type CronTemplatePayload struct {
	TemplateID string
	Params     map[string]any
}

// CronJob is a registered recurring schedule. Exactly one of TaskPayload,
// DagPayload or TemplatePayload is populated, selected by TargetType.
type CronJob struct {
	ID       string
	Name     string
	Spec     string
	TargetType CronTargetType
	NextTime time.Time
	Enabled  bool

	TaskPayload     TaskConfig
	DagPayload      CronDagPayload
	TemplatePayload CronTemplatePayload
}
