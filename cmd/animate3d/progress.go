package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"animate3d/internal/jobs"
)

// progressReporter renders job snapshots: a bar per job on a terminal, one
// line per change otherwise.
type progressReporter struct {
	out  io.Writer
	tty  bool
	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
	last map[string]jobs.Snapshot
}

func newProgressReporter(out io.Writer) *progressReporter {
	return &progressReporter{
		out:  out,
		tty:  isTerminal(out),
		bars: make(map[string]*progressbar.ProgressBar),
		last: make(map[string]jobs.Snapshot),
	}
}

func (p *progressReporter) update(s jobs.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.last[s.RID]; ok && prev.Equal(s) {
		return
	}
	p.last[s.RID] = s

	if !p.tty {
		fmt.Fprintf(p.out, "%s %s\n", s.RID, describeSnapshot(s))
		return
	}
	bar, ok := p.bars[s.RID]
	if !ok {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(s.RID),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		p.bars[s.RID] = bar
	}
	bar.Describe(fmt.Sprintf("%s %s", s.RID, statusLabel(s.Status)))
	_ = bar.Set(s.ProgressPercent)
}

func (p *progressReporter) finish(rid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bar, ok := p.bars[rid]; ok {
		_ = bar.Finish()
		delete(p.bars, rid)
		fmt.Fprintln(p.out)
	}
}

func describeSnapshot(s jobs.Snapshot) string {
	switch {
	case s.Status == jobs.StatusQueued && s.PositionInQueue > 0:
		return fmt.Sprintf("%s (position %d)", statusLabel(s.Status), s.PositionInQueue)
	case s.Status == jobs.StatusProcessing:
		return fmt.Sprintf("%s %d%%", statusLabel(s.Status), s.ProgressPercent)
	default:
		return statusLabel(s.Status)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
