package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"animate3d/internal/config"
	"animate3d/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANIMATE3D_CLIENT_ID", "")
	t.Setenv("ANIMATE3D_CLIENT_SECRET", "")
	t.Setenv("ANIMATE3D_API_SERVER_URL", "")

	cfg := testsupport.NewConfig(t)
	testsupport.StartMockService(t, cfg)
	cfg.Logging.Level = "error"

	configPath := filepath.Join(testsupport.BaseDir(cfg), "animate3d.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	full := args
	if env != nil {
		full = append([]string{"--config", env.configPath}, args...)
	}
	cmd.SetArgs(full)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n%s", needle, haystack)
	}
}

// submittedRID returns the RID printed by "Submitted job <rid>".
func submittedRID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rid, ok := strings.CutPrefix(line, "Submitted job "); ok {
			return strings.TrimSpace(rid)
		}
	}
	t.Fatalf("no submitted rid in output:\n%s", out)
	return ""
}
