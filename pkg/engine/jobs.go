package engine

import (
	"context"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/jobs"
	"archival-hq/keeper/pkg/security/access"
)

// ListJobs returns archival jobs, newest first.
func (e *Engine) ListJobs(ctx context.Context, req ListJobsRequest) ([]*archive.Job, error) {
	const op = "engine.list_jobs"

	switch req.Status {
	case "", archive.JobQueued, archive.JobRunning, archive.JobCompleted, archive.JobFailed:
	default:
		return nil, archive.Validationf(op, "invalid job status %q", req.Status)
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, archive.Validationf(op, "limit and offset must be >= 0")
	}
	if err := e.authorize(ctx, req.Caller, access.PermJobsRead, op, "", ""); err != nil {
		return nil, err
	}

	list, err := e.runner.List(ctx, jobs.JobQuery{
		EntityType: req.EntityType,
		Status:     req.Status,
		ActiveOnly: req.ActiveOnly,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, tag(op, "", err)
	}
	return list, nil
}

// GetJob returns one job.
func (e *Engine) GetJob(ctx context.Context, req GetJobRequest) (*archive.Job, error) {
	const op = "engine.get_job"

	if req.JobID == "" {
		return nil, archive.Validationf(op, "job id is required")
	}
	if err := e.authorize(ctx, req.Caller, access.PermJobsRead, op, "", ""); err != nil {
		return nil, err
	}
	job, err := e.runner.GetStatus(ctx, req.JobID)
	if err != nil {
		return nil, tag(op, req.JobID, err)
	}
	return job, nil
}

// WaitJob blocks until the job completes or fails, or ctx is done.
func (e *Engine) WaitJob(ctx context.Context, req WaitJobRequest) (*archive.Job, error) {
	const op = "engine.wait_job"

	if req.JobID == "" {
		return nil, archive.Validationf(op, "job id is required")
	}
	if err := e.authorize(ctx, req.Caller, access.PermJobsRead, op, "", ""); err != nil {
		return nil, err
	}
	job, err := e.runner.Wait(ctx, req.JobID)
	if err != nil {
		return nil, tag(op, req.JobID, err)
	}
	return job, nil
}
