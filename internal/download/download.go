// Package download writes a finished job's artifacts to a local directory.
//
// Files are named after the job and output group: "{rid}-{name}.mp4" for
// rendered videos and "{rid}-{name}.{type}.zip" for everything else.
// Intermediate groups and per-person tracking groups are skipped.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"animate3d/internal/fileutil"
	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/multiperson"
	"animate3d/internal/services"
)

const (
	defaultConcurrency = 4
	lockName           = ".animate3d-download.lock"
	lockRetry          = 100 * time.Millisecond
)

// Fetcher opens signed download URLs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error)
}

// Target is one planned file.
type Target struct {
	Group string
	Type  string
	URL   string
	Path  string
}

// File is one written artifact.
type File struct {
	Target
	Bytes  int64
	SHA256 string
}

// Option customises a Downloader.
type Option func(*Downloader)

// WithConcurrency bounds parallel fetches.
func WithConcurrency(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) { d.logger = logging.NewComponentLogger(logger, "download") }
}

// Downloader fetches job artifacts.
type Downloader struct {
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
}

// New builds a Downloader.
func New(fetcher Fetcher, opts ...Option) *Downloader {
	d := &Downloader{fetcher: fetcher, concurrency: defaultConcurrency, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// nameReplacer strips path separators and characters common filesystems
// reject from service-provided name parts.
var nameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

func cleanPart(s string) string {
	return strings.TrimSpace(nameReplacer.Replace(s))
}

// FileName returns the local name of one artifact.
func FileName(rid, group, fileType string) string {
	rid, group, fileType = cleanPart(rid), cleanPart(group), cleanPart(fileType)
	if fileType == "mp4" {
		return fmt.Sprintf("%s-%s.%s", rid, group, fileType)
	}
	return fmt.Sprintf("%s-%s.%s.zip", rid, group, fileType)
}

// Skip reports whether a URL group is left out of downloads.
func Skip(group string) bool {
	if _, tracked := multiperson.SlotFromName(group); tracked {
		return true
	}
	return strings.HasPrefix(group, "inter")
}

// Plan lists the files Download would write for link. Every path must stay
// directly under outputDir.
func Plan(link jobs.DownloadLink, outputDir string) ([]Target, error) {
	root := filepath.Clean(outputDir)
	var out []Target
	for _, group := range link.URLs {
		if Skip(group.Name) {
			continue
		}
		for _, f := range group.Files {
			path := filepath.Join(root, FileName(link.RID, group.Name, f.Type))
			if filepath.Dir(path) != root {
				return nil, services.Wrap(services.ErrValidation, "download", "plan",
					fmt.Sprintf("artifact %s/%s resolves outside %s", group.Name, f.Type, root), nil)
			}
			out = append(out, Target{
				Group: group.Name,
				Type:  f.Type,
				URL:   f.URL,
				Path:  path,
			})
		}
	}
	return out, nil
}

// Download writes every planned file under outputDir. A lock file keeps two
// processes from writing the same directory at once.
func (d *Downloader) Download(ctx context.Context, link jobs.DownloadLink, outputDir string) ([]File, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "prepare", "output directory is required", nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "download", "prepare", "create output directory", err)
	}

	lock := flock.New(filepath.Join(outputDir, lockName))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock output directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock output directory %s: already in use", outputDir)
	}
	defer func() { _ = lock.Unlock() }()

	targets, err := Plan(link, outputDir)
	if err != nil {
		return nil, err
	}
	files := make([]File, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, target := range targets {
		g.Go(func() error {
			f, err := d.fetch(gctx, target)
			if err != nil {
				return fmt.Errorf("download %s: %w", filepath.Base(target.Path), err)
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.logger.Info("job artifacts downloaded",
		logging.String(logging.FieldEventType, "download_completed"),
		logging.RID(link.RID),
		logging.Int("files", len(files)),
		logging.String("output_dir", outputDir),
	)
	return files, nil
}

func (d *Downloader) fetch(ctx context.Context, target Target) (File, error) {
	body, size, err := d.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return File{}, err
	}
	defer body.Close()
	if size <= 0 {
		size = -1
	}
	written, sum, err := fileutil.WriteAtomic(target.Path, body, size)
	if err != nil {
		return File{}, err
	}
	d.logger.Debug("artifact written",
		logging.String("path", target.Path),
		logging.Int64("bytes", written),
		logging.String("sha256", sum),
	)
	return File{Target: target, Bytes: written, SHA256: sum}, nil
}
