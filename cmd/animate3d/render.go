package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"animate3d/internal/jobs"
)

var titleCaser = cases.Title(language.Und)

// statusLabel turns SUCCESS into Success for tables and progress lines.
func statusLabel(s jobs.Status) string {
	if s == "" {
		return "-"
	}
	return titleCaser.String(strings.ToLower(string(s)))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(100 * time.Millisecond).String()
}

func outcomeLine(o jobs.Outcome) string {
	if o.Succeeded() {
		return fmt.Sprintf("%s succeeded", o.RID)
	}
	if o.Error != nil {
		return fmt.Sprintf("%s failed: %s", o.RID, o.Error.String())
	}
	return fmt.Sprintf("%s finished", o.RID)
}
