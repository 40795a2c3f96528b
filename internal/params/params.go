package params

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"animate3d/internal/services"
)

// Format is an output artifact format.
type Format string

const (
	FormatBVH Format = "bvh"
	FormatFBX Format = "fbx"
	FormatMP4 Format = "mp4"
	FormatGLB Format = "glb"
	FormatPNG Format = "png"
	FormatJPG Format = "jpg"
)

var knownFormats = []Format{FormatBVH, FormatFBX, FormatMP4, FormatGLB, FormatPNG, FormatJPG}

// FootLocking controls how feet are pinned to the ground plane.
type FootLocking string

const (
	FootLockingAuto      FootLocking = "auto"
	FootLockingAlways    FootLocking = "always"
	FootLockingNever     FootLocking = "never"
	FootLockingGrounding FootLocking = "grounding"
)

// CameraMode selects the camera used when rendering mp4 output.
type CameraMode int

const (
	CameraCinematic CameraMode = 0
	CameraFixed     CameraMode = 1
	CameraFace      CameraMode = 2
)

// DefaultConfig is the service preset applied when none is chosen.
const DefaultConfig = "configDefault"

// PipelineMultiPersonDetection selects the detection-only pipeline.
const PipelineMultiPersonDetection = "mp_detection"

// Trim limits processing to a time range in seconds.
type Trim struct {
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

// Crop is a normalized region of the frame.
type Crop struct {
	Left   float64 `yaml:"left" json:"left"`
	Top    float64 `yaml:"top" json:"top"`
	Right  float64 `yaml:"right" json:"right"`
	Bottom float64 `yaml:"bottom" json:"bottom"`
}

// Color is an RGBA background colour with 0-255 channels.
type Color struct {
	R int `yaml:"r" json:"r"`
	G int `yaml:"g" json:"g"`
	B int `yaml:"b" json:"b"`
	A int `yaml:"a" json:"a"`
}

// Render holds mp4 render options.
type Render struct {
	SideBySide   *bool       `yaml:"side_by_side,omitempty" json:"side_by_side,omitempty"`
	Background   *Color      `yaml:"background,omitempty" json:"background,omitempty"`
	Backdrop     string      `yaml:"backdrop,omitempty" json:"backdrop,omitempty"`
	Shadow       *bool       `yaml:"shadow,omitempty" json:"shadow,omitempty"`
	IncludeAudio *bool       `yaml:"include_audio,omitempty" json:"include_audio,omitempty"`
	CameraMode   *CameraMode `yaml:"camera_mode,omitempty" json:"camera_mode,omitempty"`
}

// ModelBinding assigns a character model to one detected person.
type ModelBinding struct {
	TrackingID string `json:"trackingId"`
	ModelID    string `json:"modelId"`
}

// ProcessParams configures a processing job. Zero values and nil pointers mean
// "unset", which Merge relies on to overlay only the fields a caller chose.
type ProcessParams struct {
	Formats               []Format    `yaml:"formats,omitempty" json:"formats,omitempty"`
	ModelID               string      `yaml:"model_id,omitempty" json:"model_id,omitempty"`
	Config                string      `yaml:"config,omitempty" json:"config,omitempty"`
	Simulation            *bool       `yaml:"simulation,omitempty" json:"simulation,omitempty"`
	TrackFace             *bool       `yaml:"track_face,omitempty" json:"track_face,omitempty"`
	TrackHand             *bool       `yaml:"track_hand,omitempty" json:"track_hand,omitempty"`
	FootLocking           FootLocking `yaml:"foot_locking,omitempty" json:"foot_locking,omitempty"`
	VideoSpeedMultiplier  *float64    `yaml:"video_speed_multiplier,omitempty" json:"video_speed_multiplier,omitempty"`
	PoseFilteringStrength *float64    `yaml:"pose_filtering_strength,omitempty" json:"pose_filtering_strength,omitempty"`
	UpperBodyOnly         *bool       `yaml:"upper_body_only,omitempty" json:"upper_body_only,omitempty"`
	RootAtOrigin          *bool       `yaml:"root_at_origin,omitempty" json:"root_at_origin,omitempty"`
	Trim                  *Trim       `yaml:"trim,omitempty" json:"trim,omitempty"`
	Crop                  *Crop       `yaml:"crop,omitempty" json:"crop,omitempty"`
	Render                Render      `yaml:"render,omitempty" json:"render,omitempty"`

	// Set by the submitter for multi-person jobs.
	Models   []ModelBinding `yaml:"-" json:"-"`
	Pipeline string         `yaml:"-" json:"-"`
}

// New returns params with the default preset and the given formats.
func New(formats ...Format) ProcessParams {
	return ProcessParams{Config: DefaultConfig, Formats: formats}
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Camera returns a pointer to m.
func Camera(m CameraMode) *CameraMode { return &m }

// ParseFormats splits a comma separated list into formats, lowercasing each.
func ParseFormats(value string) []Format {
	var out []Format
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, Format(part))
		}
	}
	return out
}

// Clone returns a deep copy so submitted params cannot be mutated by callers.
func (p ProcessParams) Clone() ProcessParams {
	out := p
	out.Formats = slices.Clone(p.Formats)
	out.Models = slices.Clone(p.Models)
	out.Simulation = cloneBool(p.Simulation)
	out.TrackFace = cloneBool(p.TrackFace)
	out.TrackHand = cloneBool(p.TrackHand)
	out.UpperBodyOnly = cloneBool(p.UpperBodyOnly)
	out.RootAtOrigin = cloneBool(p.RootAtOrigin)
	out.VideoSpeedMultiplier = cloneFloat(p.VideoSpeedMultiplier)
	out.PoseFilteringStrength = cloneFloat(p.PoseFilteringStrength)
	if p.Trim != nil {
		t := *p.Trim
		out.Trim = &t
	}
	if p.Crop != nil {
		c := *p.Crop
		out.Crop = &c
	}
	out.Render.SideBySide = cloneBool(p.Render.SideBySide)
	out.Render.Shadow = cloneBool(p.Render.Shadow)
	out.Render.IncludeAudio = cloneBool(p.Render.IncludeAudio)
	if p.Render.Background != nil {
		bg := *p.Render.Background
		out.Render.Background = &bg
	}
	if p.Render.CameraMode != nil {
		m := *p.Render.CameraMode
		out.Render.CameraMode = &m
	}
	return out
}

// Validate checks every field against the ranges the service accepts. All
// problems are reported together.
func (p ProcessParams) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	for _, f := range p.Formats {
		if !slices.Contains(knownFormats, Format(strings.ToLower(string(f)))) {
			add("invalid format %q (valid: %s)", f, joinFormats(knownFormats))
		}
	}
	switch p.FootLocking {
	case "", FootLockingAuto, FootLockingAlways, FootLockingNever, FootLockingGrounding:
	default:
		add("invalid foot locking mode %q", p.FootLocking)
	}
	if v := p.VideoSpeedMultiplier; v != nil && (*v < 1.0 || *v > 8.0) {
		add("video_speed_multiplier %g out of range 1.0-8.0", *v)
	}
	if v := p.PoseFilteringStrength; v != nil && (*v < 0.0 || *v > 1.0) {
		add("pose_filtering_strength %g out of range 0.0-1.0", *v)
	}
	if t := p.Trim; t != nil {
		if t.Start < 0 {
			add("trim start %g must not be negative", t.Start)
		}
		if t.Start >= t.End {
			add("trim start %g must be before end %g", t.Start, t.End)
		}
	}
	if c := p.Crop; c != nil {
		for _, v := range []float64{c.Left, c.Top, c.Right, c.Bottom} {
			if v < 0 || v > 1 {
				add("crop values must be normalized 0-1, got %g", v)
				break
			}
		}
		if c.Left >= c.Right {
			add("crop left %g must be less than right %g", c.Left, c.Right)
		}
		if c.Top >= c.Bottom {
			add("crop top %g must be less than bottom %g", c.Top, c.Bottom)
		}
	}
	if bg := p.Render.Background; bg != nil {
		for _, v := range []int{bg.R, bg.G, bg.B, bg.A} {
			if v < 0 || v > 255 {
				add("render background channels must be 0-255, got %d", v)
				break
			}
		}
	}
	if m := p.Render.CameraMode; m != nil && (*m < CameraCinematic || *m > CameraFace) {
		add("render camera mode %d must be 0 (cinematic), 1 (fixed), or 2 (face)", *m)
	}
	for _, b := range p.Models {
		if strings.TrimSpace(b.TrackingID) == "" || strings.TrimSpace(b.ModelID) == "" {
			add("model bindings need both tracking id and model id")
			break
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "params", "validate", "", errors.Join(problems...))
}

func joinFormats(formats []Format) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
