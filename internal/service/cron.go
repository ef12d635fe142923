package service

import (
	"context"

	"github.com/taskhub/taskhub/internal/cronsched"
	"github.com/taskhub/taskhub/internal/strategy"
	"github.com/taskhub/taskhub/internal/types"
)

// initCron builds the cron scheduler with dispatch funcs closed over s, and
// is called once from New after every other collaborator is wired.
func (s *Service) initCron() {
	s.cron = cronsched.New(s.dispatchCronTask, s.dispatchCronDag, s.dispatchCronTemplate, cronsched.WithLogger(s.log))
}

// StartCron runs the cron dispatcher loop on a new goroutine, loading any
// previously registered jobs from the store first.
func (s *Service) StartCron(ctx context.Context) error {
	jobs, err := s.store.ListCronJobs(ctx)
	if err != nil {
		return err
	}
	for _, cj := range jobs {
		if err := s.cron.Add(cj); err != nil {
			s.log.Warn("skipping cron job with invalid schedule", "cron_job_id", cj.ID, "error", err)
		}
	}
	go s.cron.Run()
	return nil
}

// RegisterCron validates and adds a CronJob, persisting it for restart
// recovery.
func (s *Service) RegisterCron(ctx context.Context, cj types.CronJob) error {
	if err := s.cron.Add(cj); err != nil {
		return err
	}
	return s.store.UpsertCronJob(ctx, cj)
}

// RemoveCron unregisters a cron job by id.
func (s *Service) RemoveCron(ctx context.Context, id string) error {
	s.cron.Remove(id)
	return s.store.DeleteCronJob(ctx, id)
}

// ListCron returns every registered cron job.
func (s *Service) ListCron() []types.CronJob { return s.cron.List() }

func (s *Service) dispatchCronTask(cfg types.TaskConfig, runID string) {
	flag := strategy.NewCancelFlag()
	ctx := context.Background()
	result := s.taskExec.Run(ctx, cfg, flag, runID, "", 0)
	s.persistTaskRun(ctx, cfg, runID, result)
}

func (s *Service) dispatchCronDag(payload types.CronDagPayload, runID string) {
	ctx := context.Background()
	dagPayload := DagPayload{Tasks: payload.Specs, Config: &payload.Config}
	s.RunDag(ctx, dagPayload, runID, "cron")
}

func (s *Service) dispatchCronTemplate(payload types.CronTemplatePayload, runID string) {
	ctx := context.Background()
	s.runTemplateStrategy(ctx, payload.TemplateID, payload.Params, runID, 0)
}
