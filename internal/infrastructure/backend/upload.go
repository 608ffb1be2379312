package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

// Upload sends the document as multipart form data. The payload is rebuilt
// for every attempt and progress restarts from zero on each retry.
func (c *Client) Upload(
	ctx context.Context,
	req domain.UploadRequest,
	onProgress func(domain.UploadProgress),
) (*domain.ProcessResponse, error) {
	boundary := multipart.NewWriter(nil).Boundary()

	cfg := RequestConfig{
		Method:    http.MethodPost,
		Path:      pathUpload,
		Header:    http.Header{"Content-Type": []string{"multipart/form-data; boundary=" + boundary}},
		Timeout:   c.uploadTimeout,
		Operation: "upload",
		NewBody: func() ([]byte, error) {
			return buildUploadBody(req, boundary)
		},
	}
	if onProgress != nil {
		cfg.Progress = func(loaded, total int64) {
			onProgress(domain.NewUploadProgress(loaded, total))
		}
	}

	resp, err := c.send(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var out domain.ProcessResponse
	if err := decodeJSON("upload", resp.Body, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		return nil, domain.NewFailure(domain.CodeParse, resp.StatusCode, "upload response has no task_id", false)
	}
	if out.Status == "" {
		out.Status = domain.TaskStatusProcessing
	}
	return &out, nil
}

func buildUploadBody(req domain.UploadRequest, boundary string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("set multipart boundary: %w", err)
	}

	part, err := w.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	fields := []struct{ name, value string }{
		{"nif", req.NIF},
		{"ano_exercicio", req.FiscalYear},
		{"designacao_social", req.CompanyName},
		{"email", req.Email},
	}
	if req.Context != "" {
		fields = append(fields, struct{ name, value string }{"context", req.Context})
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), nil
}
