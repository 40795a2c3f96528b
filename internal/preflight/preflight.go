package preflight

import (
	"context"
	"net/http"

	"animate3d/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// httpClient may be nil.
func RunAll(ctx context.Context, cfg *config.Config, httpClient *http.Client) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Download directory (always checked)
	results = append(results, CheckDirectoryAccess("Download directory", cfg.Download.OutputDir))

	results = append(results, CheckAPIFromConfig(ctx, cfg, httpClient))

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfyTopic(cfg.Notifications.NtfyTopic))
	}

	return results
}
