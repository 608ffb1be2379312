package domain

import (
	"fmt"
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusUploading  TaskStatus = "uploading"
	TaskStatusUploaded   TaskStatus = "uploaded"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusExtracting TaskStatus = "extracting"
	TaskStatusAnalyzing  TaskStatus = "analyzing"
	TaskStatusGenerating TaskStatus = "generating"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// Rank orders statuses along the pipeline. Unknown statuses rank -1.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskStatusUploading:
		return 0
	case TaskStatusUploaded:
		return 1
	case TaskStatusProcessing:
		return 2
	case TaskStatusExtracting:
		return 3
	case TaskStatusAnalyzing:
		return 4
	case TaskStatusGenerating:
		return 5
	case TaskStatusCompleted, TaskStatusError:
		return 6
	default:
		return -1
	}
}

func (s TaskStatus) Known() bool {
	return s.Rank() >= 0
}

func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// CanAdvanceTo reports whether a task observed at s may move to next:
// the same status or a strictly later stage. Terminal statuses are
// absorbing and error is reachable from any non-terminal status.
func (s TaskStatus) CanAdvanceTo(next TaskStatus) bool {
	if s.Terminal() || !next.Known() {
		return false
	}
	if next == TaskStatusError {
		return true
	}
	return next == s || next.Rank() > s.Rank()
}

// Task is the client-side view of one backend analysis job.
type Task struct {
	ID          string          `json:"task_id"`
	Status      TaskStatus      `json:"status"`
	CreatedAt   Timestamp       `json:"created_at"`
	CompletedAt *Timestamp      `json:"completed_at,omitempty"`
	Result      *AnalysisResult `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Optimistic  bool            `json:"optimistic,omitempty"`
}

// TaskSummary is one row of the backend task listing.
type TaskSummary struct {
	ID          string     `json:"task_id"`
	Status      TaskStatus `json:"status"`
	CreatedAt   Timestamp  `json:"created_at"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
}

// ProcessResponse is the backend acknowledgement of an accepted upload.
type ProcessResponse struct {
	TaskID  string     `json:"task_id"`
	Status  TaskStatus `json:"status"`
	Message string     `json:"message"`
}

// UploadState tracks the client lifecycle of one upload.
type UploadState string

const (
	UploadStateIdle       UploadState = "idle"
	UploadStateUploading  UploadState = "uploading"
	UploadStateProcessing UploadState = "processing"
	UploadStateCompleted  UploadState = "completed"
	UploadStateError      UploadState = "error"
)

// UploadStateFor derives the lifecycle state from a task status.
func UploadStateFor(status TaskStatus) UploadState {
	switch status {
	case TaskStatusUploading, TaskStatusUploaded:
		return UploadStateUploading
	case TaskStatusCompleted:
		return UploadStateCompleted
	case TaskStatusError:
		return UploadStateError
	case "":
		return UploadStateIdle
	default:
		return UploadStateProcessing
	}
}

type UploadProgress struct {
	Loaded     int64   `json:"loaded"`
	Total      int64   `json:"total"`
	Percentage float64 `json:"percentage"`
}

func NewUploadProgress(loaded, total int64) UploadProgress {
	p := UploadProgress{Loaded: loaded, Total: total}
	if total > 0 {
		p.Percentage = float64(loaded) * 100 / float64(total)
	}
	return p
}

type FileType string

const (
	FileTypeExcel FileType = "excel"
	FileTypeJSON  FileType = "json"
)

func ParseFileType(raw string) (FileType, error) {
	switch FileType(strings.ToLower(strings.TrimSpace(raw))) {
	case FileTypeExcel, "xlsx":
		return FileTypeExcel, nil
	case FileTypeJSON:
		return FileTypeJSON, nil
	}
	return "", fmt.Errorf("%w: unsupported file type %q", ErrInvalidInput, raw)
}

func (t FileType) Extension() string {
	if t == FileTypeExcel {
		return "xlsx"
	}
	return string(t)
}

// DownloadFilename names a download when the backend sends no filename.
func DownloadFilename(nif, taskID string, fileType FileType) string {
	if nif != "" {
		return fmt.Sprintf("aiparati_%s.%s", nif, fileType.Extension())
	}
	return fmt.Sprintf("autofund_%s.%s", taskID, fileType.Extension())
}

// Download is a raw report file fetched from the backend.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SavedFile describes a download persisted by the client.
type SavedFile struct {
	TaskID   string   `json:"task_id"`
	FileType FileType `json:"file_type"`
	Name     string   `json:"name"`
	Location string   `json:"location"`
	Size     int64    `json:"size"`
}

// HistoryEntry is the durable record of one finished analysis.
type HistoryEntry struct {
	TaskID      string
	NIF         string
	FiscalYear  string
	CompanyName string
	Status      TaskStatus
	Rating      string
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}
