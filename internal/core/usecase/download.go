package usecase

import (
	"bytes"
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

// DownloadFile fetches a generated report and saves it to the configured
// storage. Failures are returned to the caller and never change the task
// status.
func (c *TaskClient) DownloadFile(ctx context.Context, taskID string, fileType domain.FileType) (*domain.SavedFile, error) {
	if c.storage == nil {
		return nil, domain.NewFailure(domain.CodeUnknown, 0, "no storage configured for downloads", false)
	}

	download, err := c.backend.Download(ctx, taskID, fileType)
	if err != nil {
		return nil, failure(err)
	}

	name := download.Filename
	if name == "" {
		name = domain.DownloadFilename(c.nifFor(taskID), taskID, fileType)
	}

	size := int64(len(download.Data))
	location, err := c.storage.Save(ctx, name, bytes.NewReader(download.Data), size)
	if err != nil {
		return nil, domain.NewFailure(domain.CodeUnknown, 0, "save download: "+err.Error(), false).WithCause(err)
	}
	slog.Info("download_saved", "task_id", taskID, "file_type", fileType, "location", location, "bytes", size)

	return &domain.SavedFile{
		TaskID:   taskID,
		FileType: fileType,
		Name:     name,
		Location: location,
		Size:     size,
	}, nil
}

// DownloadAll fetches several report types concurrently. Results keep the
// order of fileTypes; the first failure cancels the rest.
func (c *TaskClient) DownloadAll(ctx context.Context, taskID string, fileTypes []domain.FileType) ([]domain.SavedFile, error) {
	saved := make([]domain.SavedFile, len(fileTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, fileType := range fileTypes {
		g.Go(func() error {
			file, err := c.DownloadFile(gctx, taskID, fileType)
			if err != nil {
				return err
			}
			saved[i] = *file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (c *TaskClient) nifFor(taskID string) string {
	c.mu.Lock()
	tracked, ok := c.tasks[taskID]
	var nif string
	if ok {
		nif = tracked.nif
		if nif == "" && tracked.task.Result != nil {
			nif = tracked.task.Result.Metadata.NIF
		}
	}
	c.mu.Unlock()
	if nif != "" {
		return nif
	}
	if result, ok := c.results.Get(resultKey(taskID)); ok && result != nil {
		return result.Metadata.NIF
	}
	return ""
}
