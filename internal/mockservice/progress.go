package mockservice

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"animate3d/internal/jobs"
	"animate3d/internal/params"
)

// failureCode is reported for media whose name contains "fail".
const failureCode = 513

var detectedSlots = []string{"001", "002"}

// terminalTick is the tick at which a job reports its final status.
func terminalTick(steps int) int { return steps + 2 }

func (j jobRow) failing() bool {
	return strings.Contains(strings.ToLower(j.MediaName), "fail")
}

// remoteStatus is the wire status a job reports at tick.
func (j jobRow) remoteStatus(tick, steps int) string {
	switch {
	case tick <= 0:
		return jobs.RemotePending
	case tick >= terminalTick(steps):
		if j.failing() {
			return jobs.RemoteFailure
		}
		return jobs.RemoteSuccess
	default:
		return jobs.RemoteProgress
	}
}

// entry renders the job as the status endpoint reports it at its current tick.
func (j jobRow) entry(steps int, urls blobURLs) jobs.StatusEntry {
	e := jobs.StatusEntry{
		RID:    j.RID,
		Status: j.remoteStatus(j.Tick, steps),
		Details: jobs.StatusDetails{
			Params: j.Params,
		},
	}
	if j.MediaURL != "" {
		e.Details.In = jobs.StringList{j.MediaURL}
	}
	switch e.Status {
	case jobs.RemoteProgress:
		if j.Tick == 1 {
			e.PositionInQueue = 1
			break
		}
		step := float64(j.Tick - 1)
		total := float64(steps)
		e.Details.Step = &step
		e.Details.Total = &total
	case jobs.RemoteSuccess:
		for _, g := range j.artifacts() {
			for _, f := range g.files {
				e.Details.Out = append(e.Details.Out, urls.url(f.key))
			}
		}
	case jobs.RemoteFailure:
		e.Details.ExcMessage = []any{failureCode}
	}
	return e
}

type artifactFile struct {
	typ string
	key string
}

type artifactGroup struct {
	name  string
	files []artifactFile
}

// artifacts lists the output groups a successful job exposes.
func (j jobRow) artifacts() []artifactGroup {
	p, _ := params.Decode(j.Params)
	formats := make([]string, 0, len(p.Formats))
	for _, f := range p.Formats {
		formats = append(formats, strings.ToLower(string(f)))
	}
	if len(formats) == 0 {
		formats = []string{string(params.FormatBVH)}
	}

	base := mediaBase(j.MediaName)
	group := func(name string, types ...string) artifactGroup {
		g := artifactGroup{name: name}
		for _, typ := range types {
			g.files = append(g.files, artifactFile{typ: typ, key: fmt.Sprintf("artifacts/%s/%s.%s", j.RID, name, typ)})
		}
		return g
	}

	switch j.Kind {
	case kindDetection:
		out := []artifactGroup{group("inter_detection", "json")}
		for _, slot := range detectedSlots {
			out = append(out, group(base+"_"+slot, "png"))
		}
		return out
	case kindMulti:
		out := []artifactGroup{group(base, formats...)}
		for _, slot := range detectedSlots {
			out = append(out, group(base+"_"+slot, formats...))
		}
		return out
	default:
		return []artifactGroup{group(base, formats...)}
	}
}

// link renders the download descriptor of a successful job.
func (j jobRow) link(urls blobURLs) jobs.LinkEntry {
	e := jobs.LinkEntry{
		RID:      j.RID,
		Name:     j.MediaName,
		Size:     float64(j.MediaSize),
		Duration: mockDuration,
	}
	if j.MediaURL != "" {
		e.Input = jobs.StringList{j.MediaURL}
	}
	if j.Kind == kindMulti {
		e.Mode = jobs.ModeMultiPerson
		if j.Models != "" {
			e.Models = json.RawMessage(j.Models)
		}
	}
	for _, g := range j.artifacts() {
		entry := jobs.URLGroupEntry{Name: g.name}
		for _, f := range g.files {
			entry.Files = append(entry.Files, map[string]string{f.typ: urls.url(f.key)})
		}
		e.URLs = append(e.URLs, entry)
	}
	return e
}

func (j jobRow) listEntry() jobs.ListEntry {
	return jobs.ListEntry{
		RID:          j.RID,
		Status:       j.Status,
		FileName:     j.MediaName,
		FileSize:     float64(j.MediaSize),
		FileDuration: mockDuration,
		Created:      float64(j.CreatedMS),
		Modified:     float64(j.ModifiedMS),
	}
}

const mockDuration = 3.0

func mediaBase(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	if base == "" {
		return "animation"
	}
	return base
}

// blobURLs turns blob keys into absolute URLs under the server's address.
type blobURLs string

func (b blobURLs) url(key string) string {
	return strings.TrimRight(string(b), "/") + "/blob/" + key
}

// keyFromURL returns the blob key of a URL served by this mock, if any.
func keyFromURL(raw string) (string, bool) {
	_, key, ok := strings.Cut(raw, "/blob/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
