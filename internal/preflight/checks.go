package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"animate3d/internal/auth"
	"animate3d/internal/config"
	"animate3d/internal/services"
)

const apiCheckTimeout = 30 * time.Second

// CheckAPI verifies that the service is reachable and the client credentials
// are accepted by exchanging them for a token once.
func CheckAPI(ctx context.Context, serverURL, clientID, clientSecret string, httpClient *http.Client) Result {
	const name = "Service API"

	base := strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing server url"}
	}
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return Result{Name: name, Detail: "missing client credentials"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, apiCheckTimeout)
	defer cancel()

	manager := auth.NewManager(base, clientID, clientSecret, httpClient)
	if _, err := manager.Token(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeAuthError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (authenticated)", base)}
}

// CheckAPIFromConfig evaluates service status from config and connectivity.
func CheckAPIFromConfig(ctx context.Context, cfg *config.Config, httpClient *http.Client) Result {
	if cfg == nil {
		return Result{Name: "Service API", Detail: "Unknown"}
	}
	if err := cfg.RequireCredentials(); err != nil {
		return Result{Name: "Service API", Detail: "Missing client credentials"}
	}
	return CheckAPI(ctx, cfg.API.ServerURL, cfg.API.ClientID, cfg.API.ClientSecret, httpClient)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckNtfyTopic validates the configured topic URL without publishing.
func CheckNtfyTopic(topic string) Result {
	const name = "Notifications"
	u, err := url.Parse(strings.TrimSpace(topic))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid ntfy topic url %q", topic)}
	}
	return Result{Name: name, Passed: true, Detail: u.String()}
}

func summarizeAuthError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "auth check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "auth check timed out (service unreachable)"
	}
	if errors.Is(err, services.ErrAuthentication) {
		return fmt.Sprintf("auth failed (%v)", err)
	}
	return err.Error()
}
