package application

import (
	"context"
	"errors"
	"time"

	"pipeline-orchestrator/internal/domain"
	"pipeline-orchestrator/internal/ports"
)

// hierarchy gives stage and job services access to their owning pipeline.
// Nested entities have no storage of their own: every change is a
// load-mutate-replace of the pipeline under the pipeline's lock.
type hierarchy struct {
	pipelines ports.PipelineStore
	notifier  ports.Notifier
	logger    ports.Logger
	locks     *KeyedMutex
	now       func() time.Time
}

func newHierarchy(pipelines ports.PipelineStore, notifier ports.Notifier, logger ports.Logger, locks *KeyedMutex) hierarchy {
	return hierarchy{
		pipelines: pipelines,
		notifier:  notifier,
		logger:    logger,
		locks:     locks,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// findPipeline scans every pipeline and returns the first that satisfies match.
func (h hierarchy) findPipeline(ctx context.Context, match func(domain.PipelineDefinition) bool) (domain.PipelineDefinition, bool, error) {
	all, err := h.pipelines.GetAll(ctx)
	if err != nil {
		return domain.PipelineDefinition{}, false, err
	}
	for _, p := range all {
		if match(p) {
			return p, true, nil
		}
	}
	return domain.PipelineDefinition{}, false, nil
}

// locateStage returns the pipeline embedding the stage.
func (h hierarchy) locateStage(ctx context.Context, stageID string) (domain.PipelineDefinition, error) {
	if stageID == "" {
		return domain.PipelineDefinition{}, notFound(domain.KindStageDefinition)
	}
	p, ok, err := h.findPipeline(ctx, func(p domain.PipelineDefinition) bool { return p.StageIndex(stageID) >= 0 })
	if err != nil {
		return p, err
	}
	if !ok {
		return p, notFound(domain.KindStageDefinition)
	}
	return p, nil
}

// locateJob returns the pipeline embedding the job.
func (h hierarchy) locateJob(ctx context.Context, jobID string) (domain.PipelineDefinition, error) {
	if jobID == "" {
		return domain.PipelineDefinition{}, notFound(domain.KindJobDefinition)
	}
	_, _, p, err := h.findJob(ctx, jobID)
	return p, err
}

func (h hierarchy) findJob(ctx context.Context, jobID string) (int, int, domain.PipelineDefinition, error) {
	si, ji := -1, -1
	p, ok, err := h.findPipeline(ctx, func(p domain.PipelineDefinition) bool {
		si, ji = jobPosition(p, jobID)
		return ji >= 0
	})
	if err != nil {
		return -1, -1, p, err
	}
	if !ok {
		return -1, -1, p, notFound(domain.KindJobDefinition)
	}
	return si, ji, p, nil
}

func jobPosition(p domain.PipelineDefinition, jobID string) (int, int) {
	for si, s := range p.Stages {
		if ji := s.JobIndex(jobID); ji >= 0 {
			return si, ji
		}
	}
	return -1, -1
}

// mutate reloads the pipeline under its lock, applies fn and persists the
// whole aggregate. fn must leave the pipeline untouched when it fails.
func (h hierarchy) mutate(ctx context.Context, pipelineID string, fn func(p *domain.PipelineDefinition) error) (domain.PipelineDefinition, error) {
	unlock := h.locks.Lock(aggregateKey(domain.KindPipelineDefinition, pipelineID))
	defer unlock()

	p, err := h.pipelines.Get(ctx, pipelineID)
	if errors.Is(err, domain.ErrNotFound) {
		return p, notFound(domain.KindPipelineDefinition)
	}
	if err != nil {
		return p, err
	}
	if err := fn(&p); err != nil {
		return p, err
	}
	p.UpdatedAt = h.now()
	if err := h.pipelines.Replace(ctx, p.ID, p); err != nil {
		return p, err
	}
	return p, nil
}

func notifyNested[T any](ctx context.Context, h hierarchy, kind domain.EntityKind, op string, p domain.PipelineDefinition, res domain.ServiceResult[T]) {
	h.notifier.Notify(ctx, domain.NewEvent(kind, op, PipelineScope(p), res))
}
