package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteMedia creates a stand-in media or model file of size bytes under dir
// and returns its path. The mock service never decodes uploads, so the
// content is a repeated marker byte.
func WriteMedia(t testing.TB, dir, name string, size int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, max(size, 1)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
