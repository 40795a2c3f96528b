// Package characters manages the character models jobs animate.
package characters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"animate3d/internal/logging"
	"animate3d/internal/services"
	"animate3d/internal/transport"
)

// PlatformCustom marks user-uploaded models.
const PlatformCustom = "custom"

// Model is one character model.
type Model struct {
	ID       string
	Name     string
	Thumb    string
	RigID    string
	Platform string
	Created  time.Time
	Modified time.Time
}

// IsCustom reports whether the model was uploaded by the account.
func (m Model) IsCustom() bool { return m.Platform == PlatformCustom }

// ListOptions filters List.
type ListOptions struct {
	ModelID    string
	Search     string
	OnlyCustom bool
}

// UploadOptions configures Upload.
type UploadOptions struct {
	Name        string
	CreateThumb bool
}

// API is the transport surface the service needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// FileUploader streams a local file to a signed URL.
type FileUploader interface {
	PutFile(ctx context.Context, signedURL, path string) error
}

// Service lists, uploads and deletes character models.
type Service struct {
	api      API
	uploader FileUploader
	logger   *slog.Logger
}

// New builds a Service.
func New(api API, uploader FileUploader, logger *slog.Logger) *Service {
	return &Service{api: api, uploader: uploader, logger: logging.NewComponentLogger(logger, "characters")}
}

// List returns models visible to the account. Stock models are included
// unless OnlyCustom is set.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Model, error) {
	query := url.Values{}
	if opts.ModelID != "" {
		query.Set("modelId", opts.ModelID)
	}
	if opts.Search != "" {
		query.Set("searchToken", opts.Search)
	}
	if !opts.OnlyCustom {
		query.Set("stockModel", "all")
	}

	var raw json.RawMessage
	if err := s.api.Get(ctx, "/character/listModels", query, &raw); err != nil {
		return nil, err
	}
	entries, err := decodeModels(raw)
	if err != nil {
		return nil, &services.APIError{Code: "invalid_response", Message: err.Error(), Operation: "GET /character/listModels"}
	}
	out := make([]Model, 0, len(entries))
	for _, e := range entries {
		m := e.model()
		if opts.OnlyCustom && !m.IsCustom() {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Upload registers a model. An http(s) source is stored directly; a local
// file is uploaded first and named after the file unless opts.Name is set.
func (s *Service) Upload(ctx context.Context, source string, opts UploadOptions) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", services.Wrap(services.ErrValidation, "characters", "upload", "model source is required", nil)
	}
	if isHTTPURL(source) {
		name := opts.Name
		if name == "" {
			name = "Unnamed Model"
		}
		return s.store(ctx, source, name, opts.CreateThumb)
	}

	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}
	ext := strings.TrimPrefix(filepath.Ext(source), ".")
	if ext == "" {
		return "", services.Wrap(services.ErrValidation, "characters", "upload", "model file needs an extension: "+source, nil)
	}

	var signed struct {
		ModelURL string `json:"modelUrl"`
	}
	query := url.Values{"name": {name}, "modelExt": {ext}, "resumable": {"0"}}
	if err := s.api.Get(ctx, "/character/getModelUploadUrl", query, &signed); err != nil {
		return "", err
	}
	if signed.ModelURL == "" {
		return "", &services.APIError{Code: "invalid_response", Message: "service returned no model upload url", Operation: "GET /character/getModelUploadUrl"}
	}
	if err := s.uploader.PutFile(ctx, signed.ModelURL, source); err != nil {
		return "", err
	}
	return s.store(ctx, signed.ModelURL, name, opts.CreateThumb)
}

// Delete removes a model and returns how many were deleted.
func (s *Service) Delete(ctx context.Context, modelID string) (int, error) {
	if strings.TrimSpace(modelID) == "" {
		return 0, services.Wrap(services.ErrValidation, "characters", "delete", "model id is required", nil)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := s.api.Delete(ctx, transport.PathEscape("/character/deleteModel", modelID), &resp); err != nil {
		return 0, err
	}
	s.logger.Info("character model deleted",
		logging.String(logging.FieldEventType, "model_deleted"),
		logging.String("model_id", modelID),
		logging.Int("count", resp.Count),
	)
	return resp.Count, nil
}

type storeRequest struct {
	ModelURL    string `json:"modelUrl"`
	ModelName   string `json:"modelName"`
	ThumbURL    string `json:"thumbUrl,omitempty"`
	ModelID     string `json:"modelId,omitempty"`
	CreateThumb int    `json:"createThumb,omitempty"`
}

func (s *Service) store(ctx context.Context, modelURL, name string, createThumb bool) (string, error) {
	req := storeRequest{ModelURL: modelURL, ModelName: name}
	if createThumb {
		req.CreateThumb = 1
	}
	var resp struct {
		ModelID string `json:"modelId"`
	}
	if err := s.api.Post(ctx, "/character/storeModel", req, &resp); err != nil {
		return "", err
	}
	if resp.ModelID == "" {
		return "", &services.APIError{Code: "invalid_response", Message: "service returned no model id", Operation: "POST /character/storeModel"}
	}
	s.logger.Info("character model stored",
		logging.String(logging.FieldEventType, "model_stored"),
		logging.String("model_id", resp.ModelID),
		logging.String("name", name),
	)
	return resp.ModelID, nil
}

type modelEntry struct {
	ID       string  `json:"id"`
	LegacyID string  `json:"Id"`
	Name     string  `json:"name"`
	Thumb    string  `json:"thumb"`
	RigID    string  `json:"rigId"`
	Platform string  `json:"platform"`
	Created  float64 `json:"ctime"`
	Modified float64 `json:"mtime"`
}

func (e modelEntry) model() Model {
	id := e.ID
	if id == "" {
		id = e.LegacyID
	}
	return Model{
		ID:       id,
		Name:     e.Name,
		Thumb:    e.Thumb,
		RigID:    e.RigID,
		Platform: e.Platform,
		Created:  millis(e.Created),
		Modified: millis(e.Modified),
	}
}

// decodeModels accepts either a bare list or {"list": [...]}.
func decodeModels(raw json.RawMessage) ([]modelEntry, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []modelEntry
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode model list: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		List []modelEntry `json:"list"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	return wrapped.List, nil
}

func millis(ms float64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
