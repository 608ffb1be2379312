package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

// UploadFile validates req locally, shows an optimistic record while the
// upload runs and returns the server-issued task. On failure the
// optimistic record is rolled back and nothing is tracked.
func (c *TaskClient) UploadFile(ctx context.Context, req domain.UploadRequest, onProgress func(domain.UploadProgress)) (*domain.Task, error) {
	total := int64(len(req.Content))
	c.setCurrent(UploadSnapshot{
		State:    domain.UploadStateUploading,
		Progress: domain.NewUploadProgress(0, total),
	})

	if err := c.preflight(req); err != nil {
		c.uploadFailed(err)
		return nil, err
	}

	tempID := "temp_" + uuid.NewString()
	c.uploads.Add(tempID, domain.Task{
		ID:         tempID,
		Status:     domain.TaskStatusProcessing,
		CreatedAt:  domain.NewTimestamp(c.now()),
		Optimistic: true,
	})

	resp, err := c.backend.Upload(ctx, req, func(p domain.UploadProgress) {
		c.mu.Lock()
		c.current.Progress = p
		c.mu.Unlock()
		if onProgress != nil {
			onProgress(p)
		}
	})
	if err != nil {
		c.uploads.Rollback(tempID)
		err = failure(err)
		c.uploadFailed(err)
		return nil, err
	}
	c.uploads.Confirm(tempID)

	status := resp.Status
	if !status.Known() || status.Terminal() {
		status = domain.TaskStatusProcessing
	}
	task := domain.Task{
		ID:        resp.TaskID,
		Status:    status,
		CreatedAt: domain.NewTimestamp(c.now()),
	}
	c.track(task, &req)
	c.setCurrent(UploadSnapshot{
		TaskID:   task.ID,
		State:    domain.UploadStateProcessing,
		Progress: domain.NewUploadProgress(total, total),
	})
	if c.metrics != nil {
		c.metrics.Upload(nil)
	}
	slog.Info("upload_accepted", "task_id", task.ID, "filename", req.Filename, "bytes", total)

	c.publish(ctx, task)
	return &task, nil
}

func (c *TaskClient) preflight(req domain.UploadRequest) error {
	if err := req.Validate(); err != nil {
		return domain.NewFailure(domain.CodeValidation, 0, err.Error(), false).WithCause(err)
	}
	if c.validator == nil {
		return nil
	}
	if err := c.validator.ValidateUpload(req); err != nil {
		var f *domain.Failure
		if errors.As(err, &f) {
			return f
		}
		return domain.NewFailure(domain.CodeValidation, 0, err.Error(), false).WithCause(err)
	}
	return nil
}

func (c *TaskClient) uploadFailed(err error) {
	c.mu.Lock()
	c.current.State = domain.UploadStateError
	c.current.TaskID = ""
	c.current.Progress = domain.UploadProgress{}
	c.current.Error = c.UserMessage(err)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.Upload(err)
	}
	slog.Warn("upload_failed", "error", err)
}

func (c *TaskClient) setCurrent(snapshot UploadSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = snapshot
}
