package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

const (
	pathUpload   = "/api/upload"
	pathStatus   = "/api/status/"
	pathResult   = "/api/result/"
	pathDownload = "/api/download/"
	pathTasks    = "/api/tasks"
	pathHealth   = "/health"
)

func decodeJSON(operation string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return domain.NewFailure(domain.CodeParse, 0, fmt.Sprintf("decode %s response", operation), false).WithCause(err)
	}
	return nil
}

func (c *Client) TaskStatus(ctx context.Context, taskID string) (*domain.Task, error) {
	if taskID == "" {
		return nil, domain.NewFailure(domain.CodeValidation, 0, "task id is required", false)
	}
	data, err := c.read(ctx, RequestConfig{
		Method:    http.MethodGet,
		Path:      pathStatus + url.PathEscape(taskID),
		Operation: "task_status",
	}, c.statusTTL, false)
	if err != nil {
		return nil, err
	}

	var task domain.Task
	if err := decodeJSON("task_status", data, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

func (c *Client) TaskResult(ctx context.Context, taskID string) (*domain.AnalysisResult, error) {
	if taskID == "" {
		return nil, domain.NewFailure(domain.CodeValidation, 0, "task id is required", false)
	}
	resp, err := c.send(ctx, RequestConfig{
		Method:    http.MethodGet,
		Path:      pathResult + url.PathEscape(taskID),
		Operation: "task_result",
	})
	if err != nil {
		return nil, err
	}

	if c.validator != nil {
		if err := c.validator.ValidateResult(resp.Body); err != nil {
			return nil, domain.AsFailure(err)
		}
	}
	var result domain.AnalysisResult
	if err := decodeJSON("task_result", resp.Body, &result); err != nil {
		return nil, err
	}
	result.Raw = append(json.RawMessage(nil), resp.Body...)
	return &result, nil
}

func (c *Client) Download(ctx context.Context, taskID string, fileType domain.FileType) (*domain.Download, error) {
	if taskID == "" {
		return nil, domain.NewFailure(domain.CodeValidation, 0, "task id is required", false)
	}
	if fileType != domain.FileTypeExcel && fileType != domain.FileTypeJSON {
		return nil, domain.NewFailure(domain.CodeValidation, 0, fmt.Sprintf("unsupported file type %q", fileType), false)
	}
	resp, err := c.send(ctx, RequestConfig{
		Method:    http.MethodGet,
		Path:      pathDownload + url.PathEscape(taskID) + "/" + string(fileType),
		Operation: "download",
	})
	if err != nil {
		return nil, err
	}

	return &domain.Download{
		Filename:    attachmentFilename(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        resp.Body,
	}, nil
}

func attachmentFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func (c *Client) Health(ctx context.Context) (*domain.HealthStatus, error) {
	data, err := c.read(ctx, RequestConfig{
		Method:    http.MethodGet,
		Path:      pathHealth,
		Operation: "health",
	}, c.healthTTL, true)
	if err != nil {
		return nil, err
	}

	var health domain.HealthStatus
	if err := decodeJSON("health", data, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]domain.TaskSummary, error) {
	resp, err := c.send(ctx, RequestConfig{
		Method:    http.MethodGet,
		Path:      pathTasks,
		Operation: "list_tasks",
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tasks []domain.TaskSummary `json:"tasks"`
	}
	if err := decodeJSON("list_tasks", resp.Body, &payload); err != nil {
		return nil, err
	}
	if payload.Tasks == nil {
		payload.Tasks = []domain.TaskSummary{}
	}
	return payload.Tasks, nil
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return domain.NewFailure(domain.CodeValidation, 0, "task id is required", false)
	}
	_, err := c.send(ctx, RequestConfig{
		Method:    http.MethodDelete,
		Path:      pathTasks + "/" + url.PathEscape(taskID),
		Operation: "delete_task",
	})
	return err
}
