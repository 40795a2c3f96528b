package params

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Encode renders params as the service's list of key=value strings. Unset
// fields are omitted.
func (p ProcessParams) Encode() []string {
	var out []string
	kv := func(key, value string) { out = append(out, key+"="+value) }

	if p.Config != "" {
		kv("config", p.Config)
	}
	if len(p.Formats) > 0 {
		parts := make([]string, len(p.Formats))
		for i, f := range p.Formats {
			parts[i] = strings.ToLower(string(f))
		}
		kv("formats", strings.Join(parts, ","))
	}
	if p.ModelID != "" {
		kv("model", p.ModelID)
	}
	if len(p.Models) > 0 {
		data, _ := json.Marshal(p.Models)
		kv("models", string(data))
	}
	if p.Simulation != nil {
		kv("sim", flag(*p.Simulation))
	}
	if p.TrackFace != nil {
		kv("trackFace", flag(*p.TrackFace))
	}
	if p.TrackHand != nil {
		kv("trackHand", flag(*p.TrackHand))
	}
	if p.FootLocking != "" {
		kv("footLockingMode", string(p.FootLocking))
	}
	if p.VideoSpeedMultiplier != nil {
		kv("videoSpeedMultiplier", num(*p.VideoSpeedMultiplier))
	}
	if p.PoseFilteringStrength != nil {
		kv("poseFilteringStrength", num(*p.PoseFilteringStrength))
	}
	if p.UpperBodyOnly != nil {
		kv("upperBodyOnly", strconv.FormatBool(*p.UpperBodyOnly))
	}
	if p.RootAtOrigin != nil {
		kv("rootAtOrigin", strconv.FormatBool(*p.RootAtOrigin))
	}
	if t := p.Trim; t != nil {
		kv("trim", num(t.Start)+","+num(t.End))
	}
	if c := p.Crop; c != nil {
		kv("crop", strings.Join([]string{num(c.Left), num(c.Top), num(c.Right), num(c.Bottom)}, ","))
	}
	r := p.Render
	if r.SideBySide != nil {
		kv("render.sbs", flag(*r.SideBySide))
	}
	if bg := r.Background; bg != nil {
		kv("render.bgColor", fmt.Sprintf("%d,%d,%d,%d", bg.R, bg.G, bg.B, bg.A))
	}
	if r.Backdrop != "" {
		kv("render.backdrop", r.Backdrop)
	}
	if r.Shadow != nil {
		kv("render.shadow", flag(*r.Shadow))
	}
	if r.IncludeAudio != nil {
		kv("render.includeAudio", flag(*r.IncludeAudio))
	}
	if r.CameraMode != nil {
		kv("render.CamMode", strconv.Itoa(int(*r.CameraMode)))
	}
	if p.Pipeline != "" {
		kv("pipeline", p.Pipeline)
	}
	return out
}

// Decode parses a key=value list as stored by the service back into params.
// Unknown keys are ignored; malformed values are errors.
func Decode(list []string) (ProcessParams, error) {
	var p ProcessParams
	for _, entry := range list {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			return ProcessParams{}, fmt.Errorf("decode params: entry %q has no '='", entry)
		}
		if err := p.set(key, value); err != nil {
			return ProcessParams{}, fmt.Errorf("decode params: %s: %w", key, err)
		}
	}
	return p, nil
}

func (p *ProcessParams) set(key, value string) error {
	var err error
	switch key {
	case "config":
		p.Config = value
	case "formats":
		p.Formats = ParseFormats(value)
	case "model":
		p.ModelID = value
	case "models":
		err = json.Unmarshal([]byte(value), &p.Models)
	case "sim":
		p.Simulation, err = parseFlag(value)
	case "trackFace":
		p.TrackFace, err = parseFlag(value)
	case "trackHand":
		p.TrackHand, err = parseFlag(value)
	case "footLockingMode":
		p.FootLocking = FootLocking(value)
	case "videoSpeedMultiplier":
		p.VideoSpeedMultiplier, err = parseNum(value)
	case "poseFilteringStrength":
		p.PoseFilteringStrength, err = parseNum(value)
	case "upperBodyOnly":
		p.UpperBodyOnly, err = parseFlag(value)
	case "rootAtOrigin":
		p.RootAtOrigin, err = parseFlag(value)
	case "trim":
		var v []float64
		if v, err = parseNums(value, 2); err == nil {
			p.Trim = &Trim{Start: v[0], End: v[1]}
		}
	case "crop":
		var v []float64
		if v, err = parseNums(value, 4); err == nil {
			p.Crop = &Crop{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
		}
	case "render.sbs":
		p.Render.SideBySide, err = parseFlag(value)
	case "render.bgColor":
		var v []float64
		if v, err = parseNums(value, 4); err == nil {
			p.Render.Background = &Color{R: int(v[0]), G: int(v[1]), B: int(v[2]), A: int(v[3])}
		}
	case "render.backdrop":
		p.Render.Backdrop = value
	case "render.shadow":
		p.Render.Shadow, err = parseFlag(value)
	case "render.includeAudio":
		p.Render.IncludeAudio, err = parseFlag(value)
	case "render.CamMode":
		var n int
		if n, err = strconv.Atoi(value); err == nil {
			p.Render.CameraMode = Camera(CameraMode(n))
		}
	case "pipeline":
		p.Pipeline = value
	}
	return err
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFlag(value string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on":
		return Bool(true), nil
	case "0", "false", "off":
		return Bool(false), nil
	}
	return nil, fmt.Errorf("invalid flag %q", value)
}

func parseNum(value string) (*float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseNums(value string, want int) ([]float64, error) {
	parts := strings.Split(value, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d values, got %d", want, len(parts))
	}
	out := make([]float64, want)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
