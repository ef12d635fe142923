package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/strategy"
	"github.com/taskhub/taskhub/internal/template"
	"github.com/taskhub/taskhub/internal/types"
)

// RegisterTemplate persists a TaskTemplate for later Render/Run calls.
func (s *Service) RegisterTemplate(ctx context.Context, tpl types.TaskTemplate) error {
	schema, err := json.Marshal(tpl.Schema)
	if err != nil {
		return err
	}
	return s.store.UpsertTemplate(ctx, store.TemplateRecord{
		TemplateID: tpl.TemplateID, Name: tpl.Name, Description: tpl.Description,
		TaskJSONTemplate: tpl.TaskJSONTemplate, SchemaJSON: schema,
	})
}

// GetTemplate loads a registered TaskTemplate by id.
func (s *Service) GetTemplate(ctx context.Context, id string) (types.TaskTemplate, bool, error) {
	rec, ok, err := s.store.GetTemplate(ctx, id)
	if err != nil || !ok {
		return types.TaskTemplate{}, ok, err
	}
	return templateFromRecord(rec)
}

// ListTemplates returns every registered template.
func (s *Service) ListTemplates(ctx context.Context) ([]types.TaskTemplate, error) {
	recs, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.TaskTemplate, 0, len(recs))
	for _, rec := range recs {
		tpl, err := templateFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, nil
}

// DeleteTemplate removes a registered template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.store.DeleteTemplate(ctx, id)
}

// RenderTemplate renders a registered template against params without
// executing it, for the /template/render endpoint.
func (s *Service) RenderTemplate(ctx context.Context, templateID string, params map[string]any) (template.RenderResult, error) {
	tpl, ok, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return template.RenderResult{}, err
	}
	if !ok {
		return template.RenderResult{}, fmt.Errorf("template %q not found", templateID)
	}
	return template.Render(tpl, params)
}

// runTemplateStrategy implements strategy.TemplateRunFunc: renders the
// template and dispatches the rendered envelope the same way RunDag does.
func (s *Service) runTemplateStrategy(ctx context.Context, templateID string, params map[string]any, runID string, depth int) types.TaskResult {
	result, err := s.RenderTemplate(ctx, templateID, params)
	if err != nil {
		return types.Failed("template render failed: " + err.Error())
	}

	var envelope types.DagRunRequestWire
	if err := json.Unmarshal(result.Rendered, &envelope); err != nil {
		return types.Failed("invalid rendered envelope: " + err.Error())
	}
	specs, dagCfg, err := envelope.ToTasksAndConfig()
	if err != nil {
		return types.Failed("invalid rendered envelope: " + err.Error())
	}

	if envelope.Task != nil {
		cfg := specs[0]
		if err := parseTaskConfig(cfg); err != nil {
			return types.Failed(err.Error())
		}
		s.persistTaskRun(ctx, cfg, runID, types.TaskResult{Status: types.StatusRunning})
		result := s.runNode(ctx, cfg.WithNestingDepth(depth), strategy.NewCancelFlag(), runID, "", depth)
		s.persistTaskRun(ctx, cfg, runID, result)
		return result
	}

	payload := DagPayload{Name: envelope.Name, Config: dagCfg, Tasks: specs}
	res, _ := s.RunDag(ctx, payload, runID, "task_template")
	return res
}

// RunTemplateAsync launches runTemplateStrategy on a goroutine for the
// /template/run endpoint, returning immediately with "scheduled".
func (s *Service) RunTemplateAsync(templateID string, params map[string]any, runID string) string {
	go func() {
		result := s.runTemplateStrategy(context.Background(), templateID, params, runID, 0)
		s.notifyTaskResult(templateID, runID, result)
	}()
	return "scheduled"
}

func templateFromRecord(rec store.TemplateRecord) (types.TaskTemplate, error) {
	var schema []types.ParamDef
	if len(rec.SchemaJSON) > 0 {
		if err := json.Unmarshal(rec.SchemaJSON, &schema); err != nil {
			return types.TaskTemplate{}, err
		}
	}
	return types.TaskTemplate{
		TemplateID:       rec.TemplateID,
		Name:             rec.Name,
		Description:      rec.Description,
		TaskJSONTemplate: rec.TaskJSONTemplate,
		Schema:           schema,
	}, nil
}
