// Package upload sends local media to the service's signed storage URLs.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"animate3d/internal/logging"
	"animate3d/internal/services"
)

const contentType = "application/octet-stream"

// API is the transport surface the uploader needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Put(ctx context.Context, rawURL, contentType string, body io.Reader, size int64) error
}

// Uploader uploads videos and model files.
type Uploader struct {
	api    API
	logger *slog.Logger
}

// New builds an Uploader.
func New(api API, logger *slog.Logger) *Uploader {
	return &Uploader{api: api, logger: logging.NewComponentLogger(logger, "upload")}
}

// Video uploads the file at path and returns the storage URL the service
// accepts as job media. name defaults to the file's base name.
func (u *Uploader) Video(ctx context.Context, path, name string) (string, error) {
	info, err := statFile(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(path)
	}

	var resp struct {
		URL string `json:"url"`
	}
	query := url.Values{"name": {name}, "resumable": {"0"}}
	if err := u.api.Get(ctx, "/upload", query, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", &services.APIError{Code: "invalid_response", Message: "service returned no upload url", Operation: "GET /upload"}
	}
	if err := u.PutFile(ctx, resp.URL, path); err != nil {
		return "", err
	}

	u.logger.Info("video uploaded",
		logging.String(logging.FieldEventType, "video_uploaded"),
		logging.String("name", name),
		logging.Int64("bytes", info.Size()),
	)
	return resp.URL, nil
}

// PutFile streams the file at path to a signed URL.
func (u *Uploader) PutFile(ctx context.Context, signedURL, path string) error {
	info, err := statFile(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return u.api.Put(ctx, signedURL, contentType, f, info.Size())
}

func statFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "upload", "stat", "file does not exist: "+path, err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "upload", "stat", path+" is a directory", nil)
	}
	return info, nil
}
