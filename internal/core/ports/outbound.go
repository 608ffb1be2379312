package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

// BackendAPI is the AutoFund analysis backend as seen by the client.
type BackendAPI interface {
	Upload(ctx context.Context, req domain.UploadRequest, onProgress func(domain.UploadProgress)) (*domain.ProcessResponse, error)
	TaskStatus(ctx context.Context, taskID string) (*domain.Task, error)
	TaskResult(ctx context.Context, taskID string) (*domain.AnalysisResult, error)
	Download(ctx context.Context, taskID string, fileType domain.FileType) (*domain.Download, error)
	Health(ctx context.Context) (*domain.HealthStatus, error)
	ListTasks(ctx context.Context) ([]domain.TaskSummary, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// ResponseCache stores idempotent read responses with a per-entry TTL.
// Expired entries are never returned.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration)
	Clear(ctx context.Context)
}

// ObjectStorage stores downloaded report files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, size int64) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// StatusPublisher broadcasts accepted task transitions.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, task domain.Task) error
}

// HistoryStore persists finished analyses.
type HistoryStore interface {
	RecordTask(ctx context.Context, entry domain.HistoryEntry) error
	ListRecent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}

// TokenProvider returns the credential sent in the Authorization header.
// An empty token means no header is sent.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// UploadValidator checks a document locally before anything is sent.
type UploadValidator interface {
	ValidateUpload(req domain.UploadRequest) error
}
