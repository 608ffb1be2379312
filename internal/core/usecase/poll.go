package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/infrastructure/resilience"
)

const watchBuffer = 16

// ApplyStatus folds an observed task into the local view. Statuses only
// move forward: an observation behind the accepted status, or any change
// after a terminal status, is logged and ignored. The returned bool
// reports whether the status changed.
func (c *TaskClient) ApplyStatus(ctx context.Context, observed domain.Task) (domain.Task, bool) {
	if !observed.Status.Known() {
		slog.Warn("poll_status_unknown", "task_id", observed.ID, "status", observed.Status)
		current, _ := c.Task(observed.ID)
		return current, false
	}

	c.mu.Lock()
	tracked, ok := c.tasks[observed.ID]
	if !ok {
		tracked = &trackedTask{task: observed}
		tracked.task.Optimistic = false
		c.tasks[observed.ID] = tracked
		accepted := tracked.task
		c.mu.Unlock()
		c.afterTransition(ctx, accepted, tracked)
		return accepted, true
	}

	previous := tracked.task.Status
	if previous == observed.Status {
		if observed.Result != nil && tracked.task.Result == nil {
			tracked.task.Result = observed.Result
		}
		if observed.CompletedAt != nil && tracked.task.CompletedAt == nil {
			tracked.task.CompletedAt = observed.CompletedAt
		}
		current := tracked.task
		c.mu.Unlock()
		return current, false
	}
	if !previous.CanAdvanceTo(observed.Status) {
		current := tracked.task
		c.mu.Unlock()
		slog.Warn("poll_status_regression",
			"task_id", observed.ID,
			"current", previous,
			"observed", observed.Status,
		)
		return current, false
	}

	next := observed
	next.Optimistic = false
	if next.CreatedAt.IsZero() {
		next.CreatedAt = tracked.task.CreatedAt
	}
	if next.Result == nil {
		next.Result = tracked.task.Result
	}
	tracked.task = next
	accepted := tracked.task
	c.mu.Unlock()

	c.afterTransition(ctx, accepted, tracked)
	return accepted, true
}

func (c *TaskClient) afterTransition(ctx context.Context, accepted domain.Task, tracked *trackedTask) {
	if predicted, ok := c.predictions.Get(accepted.ID); ok {
		switch {
		case accepted.Status == domain.TaskStatusError:
			c.predictions.Rollback(accepted.ID)
		case accepted.Status.Rank() >= predicted.Status.Rank():
			c.predictions.Confirm(accepted.ID)
		}
	}

	c.mu.Lock()
	if c.current.TaskID == accepted.ID {
		c.current.State = domain.UploadStateFor(accepted.Status)
		if accepted.Status == domain.TaskStatusError {
			c.current.Error = accepted.Error
		}
	}
	entry := domain.HistoryEntry{
		TaskID:      accepted.ID,
		NIF:         tracked.nif,
		FiscalYear:  tracked.fiscalYear,
		CompanyName: tracked.companyName,
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.PollTransition(string(accepted.Status))
	}
	slog.Info("task_status_changed", "task_id", accepted.ID, "status", accepted.Status)

	c.notify(accepted)
	c.publish(ctx, accepted)
	if accepted.Status.Terminal() {
		c.recordHistory(ctx, entry, accepted)
	}
}

func (c *TaskClient) recordHistory(ctx context.Context, entry domain.HistoryEntry, task domain.Task) {
	if c.history == nil {
		return
	}
	entry.Status = task.Status
	entry.Error = task.Error
	entry.CreatedAt = task.CreatedAt.Time
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now().UTC()
	}
	completed := c.now().UTC()
	if task.CompletedAt != nil && !task.CompletedAt.IsZero() {
		completed = task.CompletedAt.Time
	}
	entry.CompletedAt = &completed
	if task.Result != nil {
		entry.Rating = string(task.Result.Analysis.Rating)
		if entry.NIF == "" {
			entry.NIF = task.Result.Metadata.NIF
		}
		if entry.FiscalYear == "" {
			entry.FiscalYear = task.Result.Metadata.FiscalYear
		}
		if entry.CompanyName == "" {
			entry.CompanyName = task.Result.Metadata.CompanyName
		}
	}
	if err := c.history.RecordTask(ctx, entry); err != nil {
		slog.Warn("history_record_failed", "task_id", task.ID, "error", err)
	}
}

// GetTaskStatus fetches the current status once and applies it.
func (c *TaskClient) GetTaskStatus(ctx context.Context, taskID string) (*domain.Task, error) {
	observed, err := c.backend.TaskStatus(ctx, taskID)
	if err != nil {
		return nil, failure(err)
	}
	if observed.ID == "" {
		observed.ID = taskID
	}
	accepted, _ := c.ApplyStatus(ctx, *observed)
	return &accepted, nil
}

// Poll checks the task status until it is terminal or ctx is done. Polls
// are strictly sequential. Failed polls back off exponentially from the
// poll interval; after PollMaxFailures consecutive failures the task is
// marked as failed locally. onUpdate sees every accepted transition.
func (c *TaskClient) Poll(ctx context.Context, taskID string, onUpdate func(domain.Task)) error {
	backoff := resilience.Policy{
		MaxRetries:    c.cfg.PollMaxFailures,
		BaseDelay:     c.cfg.PollInterval,
		MaxDelay:      c.cfg.PollMaxDelay,
		BackoffFactor: 2,
	}
	failures := 0

	for {
		observed, err := c.backend.TaskStatus(ctx, taskID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failures++
			f := domain.AsFailure(err)
			slog.Warn("poll_failed", "task_id", taskID, "consecutive_failures", failures, "code", f.Code, "error", err)
			if failures >= c.cfg.PollMaxFailures {
				c.giveUp(ctx, taskID, onUpdate)
				return f
			}
			if err := c.sleep(ctx, backoff.Delay(failures-1)); err != nil {
				return err
			}
			continue
		}
		failures = 0

		if observed.ID == "" {
			observed.ID = taskID
		}
		if observed.Status == domain.TaskStatusCompleted && observed.Result == nil {
			observed.Result = c.resultForCompletion(ctx, taskID)
		}

		accepted, changed := c.ApplyStatus(ctx, *observed)
		if changed && onUpdate != nil {
			onUpdate(accepted)
		}
		if accepted.Status.Terminal() {
			return nil
		}

		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (c *TaskClient) resultForCompletion(ctx context.Context, taskID string) *domain.AnalysisResult {
	result, err := c.GetTaskResult(ctx, taskID, false)
	if err != nil {
		slog.Warn("poll_result_fetch_failed", "task_id", taskID, "error", err)
		return nil
	}
	return result
}

func (c *TaskClient) giveUp(ctx context.Context, taskID string, onUpdate func(domain.Task)) {
	accepted, changed := c.ApplyStatus(ctx, domain.Task{
		ID:          taskID,
		Status:      domain.TaskStatusError,
		Error:       pollGiveUpReason,
		CompletedAt: timestampPtr(c.now()),
	})
	if changed && onUpdate != nil {
		onUpdate(accepted)
	}
}

// StartPolling runs Poll in the background. A task has at most one
// poller: starting again replaces the previous one.
func (c *TaskClient) StartPolling(taskID string, onUpdate func(domain.Task)) {
	ctx, cancel := context.WithCancel(c.ctx)

	c.mu.Lock()
	if existing, ok := c.pollers[taskID]; ok {
		existing.cancel()
	}
	c.nextToken++
	token := c.nextToken
	c.pollers[taskID] = poller{token: token, cancel: cancel}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.releasePoller(taskID, token)

		err := c.Poll(ctx, taskID, onUpdate)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("poll_stopped", "task_id", taskID, "error", err)
		}
	}()
}

func (c *TaskClient) StopPolling(taskID string) {
	c.mu.Lock()
	existing, ok := c.pollers[taskID]
	delete(c.pollers, taskID)
	c.mu.Unlock()
	if ok {
		existing.cancel()
	}
}

func (c *TaskClient) IsPolling(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pollers[taskID]
	return ok
}

func (c *TaskClient) releasePoller(taskID string, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.pollers[taskID]; ok && existing.token == token {
		existing.cancel()
		delete(c.pollers, taskID)
	}
}

// Watch streams accepted updates and optimistic predictions for taskID.
// Slow readers miss updates rather than blocking the poller.
func (c *TaskClient) Watch(taskID string) (<-chan domain.Task, func()) {
	ch := make(chan domain.Task, watchBuffer)

	c.watchMu.Lock()
	c.nextWatchToken++
	token := c.nextWatchToken
	if c.watchers[taskID] == nil {
		c.watchers[taskID] = make(map[uint64]chan domain.Task)
	}
	c.watchers[taskID][token] = ch
	c.watchMu.Unlock()

	stop := func() {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		subs := c.watchers[taskID]
		if _, ok := subs[token]; !ok {
			return
		}
		delete(subs, token)
		if len(subs) == 0 {
			delete(c.watchers, taskID)
		}
		close(ch)
	}
	return ch, stop
}

func (c *TaskClient) notify(task domain.Task) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for _, ch := range c.watchers[task.ID] {
		select {
		case ch <- task:
		default:
			slog.Warn("watch_update_dropped", "task_id", task.ID, "status", task.Status)
		}
	}
}

// UpdateStatusOptimistically shows status for taskID before the backend
// reports it. A later poll at or beyond that stage confirms it.
func (c *TaskClient) UpdateStatusOptimistically(taskID string, status domain.TaskStatus) (domain.Task, error) {
	if !status.Known() {
		return domain.Task{}, domain.NewFailure(domain.CodeValidation, 0, "unknown status "+string(status), false)
	}
	c.mu.Lock()
	tracked, ok := c.tasks[taskID]
	var base domain.Task
	if ok {
		base = tracked.task
	}
	c.mu.Unlock()
	if !ok {
		return domain.Task{}, domain.NewFailure(domain.CodeNotFound, 0, "task "+taskID+" is not tracked", false)
	}

	predicted := base
	predicted.Status = status
	predicted.Optimistic = true
	c.predictions.Add(taskID, predicted)
	c.notify(predicted)
	return predicted, nil
}

func (c *TaskClient) ConfirmStatusUpdate(taskID string) {
	c.predictions.Confirm(taskID)
}

// RollbackStatusUpdate drops a pending prediction and returns the
// accepted task that is shown again. The bool is false when nothing was
// pending.
func (c *TaskClient) RollbackStatusUpdate(taskID string) (domain.Task, bool) {
	if _, ok := c.predictions.Rollback(taskID); !ok {
		return domain.Task{}, false
	}
	task, _ := c.Task(taskID)
	c.notify(task)
	return task, true
}

func timestampPtr(t time.Time) *domain.Timestamp {
	ts := domain.NewTimestamp(t)
	return &ts
}
