package ports

import (
	"context"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

// TaskService is the inbound contract used by the CLI and the local bridge.
type TaskService interface {
	UploadFile(ctx context.Context, req domain.UploadRequest, onProgress func(domain.UploadProgress)) (*domain.Task, error)
	GetTaskStatus(ctx context.Context, taskID string) (*domain.Task, error)
	GetTaskResult(ctx context.Context, taskID string, forceRefresh bool) (*domain.AnalysisResult, error)
	DownloadFile(ctx context.Context, taskID string, fileType domain.FileType) (*domain.SavedFile, error)
	HealthCheck(ctx context.Context) (*domain.HealthStatus, error)
	ListTasks(ctx context.Context) ([]domain.TaskSummary, error)
	DeleteTask(ctx context.Context, taskID string) error

	StartPolling(taskID string, onUpdate func(domain.Task))
	StopPolling(taskID string)
	// Watch streams accepted updates for a task until the returned stop
	// func is called.
	Watch(taskID string) (<-chan domain.Task, func())
	Task(taskID string) (domain.Task, bool)

	// Optimistic status display: a prediction stays visible until a poll
	// confirms it, it is confirmed explicitly or it is rolled back.
	UpdateStatusOptimistically(taskID string, status domain.TaskStatus) (domain.Task, error)
	ConfirmStatusUpdate(taskID string)
	RollbackStatusUpdate(taskID string) (domain.Task, bool)

	Preferences() domain.UserPreferences
	UpdatePreferences(patch domain.PreferencesPatch) domain.UserPreferences
	CommitPreferences() domain.UserPreferences
	DiscardPreferences() domain.UserPreferences

	UserMessage(err error) string
}

// ConnectivityReporter exposes the client's view of the network.
type ConnectivityReporter interface {
	IsOnline() bool
	OfflineQueueLength() int
}
