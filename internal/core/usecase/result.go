package usecase

import (
	"context"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

// GetTaskResult returns the analysis of a completed task. Results are
// kept per task once fetched; forceRefresh always asks the backend.
func (c *TaskClient) GetTaskResult(ctx context.Context, taskID string, forceRefresh bool) (*domain.AnalysisResult, error) {
	key := resultKey(taskID)
	if !forceRefresh {
		if cached, ok := c.results.Get(key); ok && cached != nil {
			return cached, nil
		}
	}

	result, err := c.backend.TaskResult(ctx, taskID)
	if err != nil {
		return nil, failure(err)
	}
	c.results.Add(key, result)

	c.mu.Lock()
	if tracked, ok := c.tasks[taskID]; ok && tracked.task.Status == domain.TaskStatusCompleted {
		tracked.task.Result = result
	}
	c.mu.Unlock()
	return result, nil
}
