package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic streams r into dst through a temporary file in the same
// directory and renames it into place. When size is non-negative the copy
// must match it. It returns the bytes written and their SHA256 hex digest.
func WriteAtomic(dst string, r io.Reader, size int64) (int64, string, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		cleanup()
		return 0, "", err
	}
	if size >= 0 && written != size {
		cleanup()
		return 0, "", fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", size, written)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, "", err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return 0, "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return 0, "", fmt.Errorf("rename into place: %w", err)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}
