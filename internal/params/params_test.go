package params_test

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"animate3d/internal/params"
	"animate3d/internal/services"
)

func TestValidateAcceptsBoundaryValues(t *testing.T) {
	p := params.New(params.FormatBVH, params.FormatMP4)
	p.VideoSpeedMultiplier = params.Float(8.0)
	p.PoseFilteringStrength = params.Float(0)
	p.Trim = &params.Trim{Start: 0, End: 12.5}
	p.Crop = &params.Crop{Left: 0, Top: 0, Right: 1, Bottom: 1}
	p.FootLocking = params.FootLockingGrounding
	p.Render.Background = &params.Color{R: 255, G: 0, B: 0, A: 255}
	p.Render.CameraMode = params.Camera(params.CameraFace)

	if err := p.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*params.ProcessParams)
		want   string
	}{
		{"speed too high", func(p *params.ProcessParams) { p.VideoSpeedMultiplier = params.Float(10) }, "video_speed_multiplier"},
		{"speed too low", func(p *params.ProcessParams) { p.VideoSpeedMultiplier = params.Float(0.5) }, "video_speed_multiplier"},
		{"filtering", func(p *params.ProcessParams) { p.PoseFilteringStrength = params.Float(1.1) }, "pose_filtering_strength"},
		{"format", func(p *params.ProcessParams) { p.Formats = []params.Format{"avi"} }, "invalid format"},
		{"foot locking", func(p *params.ProcessParams) { p.FootLocking = "sometimes" }, "foot locking"},
		{"trim order", func(p *params.ProcessParams) { p.Trim = &params.Trim{Start: 5, End: 5} }, "trim start"},
		{"trim negative", func(p *params.ProcessParams) { p.Trim = &params.Trim{Start: -1, End: 5} }, "negative"},
		{"crop range", func(p *params.ProcessParams) { p.Crop = &params.Crop{Left: 0, Top: 0, Right: 1.5, Bottom: 1} }, "normalized"},
		{"crop order", func(p *params.ProcessParams) { p.Crop = &params.Crop{Left: 0.6, Top: 0, Right: 0.4, Bottom: 1} }, "crop left"},
		{"color", func(p *params.ProcessParams) { p.Render.Background = &params.Color{R: 300} }, "0-255"},
		{"camera", func(p *params.ProcessParams) { p.Render.CameraMode = params.Camera(7) }, "camera mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params.New(params.FormatFBX)
			tt.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	p := params.ProcessParams{
		VideoSpeedMultiplier:  params.Float(10),
		PoseFilteringStrength: params.Float(-1),
	}
	msg := p.Validate().Error()
	if !strings.Contains(msg, "video_speed_multiplier") || !strings.Contains(msg, "pose_filtering_strength") {
		t.Fatalf("expected both problems reported, got %q", msg)
	}
}

func TestEncodeUsesServiceKeys(t *testing.T) {
	p := params.New(params.FormatBVH, params.FormatFBX)
	p.ModelID = "model-1"
	p.TrackFace = params.Bool(true)
	p.Simulation = params.Bool(false)
	p.UpperBodyOnly = params.Bool(true)
	p.Trim = &params.Trim{Start: 1.5, End: 4}
	p.Render.Background = &params.Color{R: 0, G: 177, B: 64, A: 0}
	p.Render.CameraMode = params.Camera(params.CameraFixed)
	p.Models = []params.ModelBinding{{TrackingID: "001", ModelID: "m1"}}
	p.Pipeline = params.PipelineMultiPersonDetection

	got := p.Encode()
	want := []string{
		"config=configDefault",
		"formats=bvh,fbx",
		"model=model-1",
		`models=[{"trackingId":"001","modelId":"m1"}]`,
		"sim=0",
		"trackFace=1",
		"upperBodyOnly=true",
		"trim=1.5,4",
		"render.bgColor=0,177,64,0",
		"render.CamMode=1",
		"pipeline=mp_detection",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Encode mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestDecodeReversesEncode(t *testing.T) {
	p := params.New(params.FormatGLB)
	p.FootLocking = params.FootLockingNever
	p.VideoSpeedMultiplier = params.Float(2)
	p.Crop = &params.Crop{Left: 0.1, Top: 0.2, Right: 0.9, Bottom: 0.8}
	p.Render.Shadow = params.Bool(true)
	p.Render.Backdrop = "studio"
	p.Models = []params.ModelBinding{{TrackingID: "002", ModelID: "m2"}}

	decoded, err := params.Decode(p.Encode())
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if !reflect.DeepEqual(decoded, p) {
		t.Fatalf("decoded params differ\n got: %+v\nwant: %+v", decoded, p)
	}
}

func TestDecodeRejectsMalformedValues(t *testing.T) {
	for _, list := range [][]string{{"trim=1"}, {"sim=maybe"}, {"novalue"}, {"render.CamMode=x"}} {
		if _, err := params.Decode(list); err == nil {
			t.Fatalf("expected error for %v", list)
		}
	}
	if _, err := params.Decode([]string{"futureKey=1"}); err != nil {
		t.Fatalf("unknown keys should be ignored, got %v", err)
	}
}

func TestMergeOverlaysOnlySetFields(t *testing.T) {
	base := params.New(params.FormatBVH)
	base.ModelID = "original"
	base.TrackHand = params.Bool(true)
	base.Render.Backdrop = "studio"

	same := params.Merge(base, params.ProcessParams{})
	if !reflect.DeepEqual(same, base) {
		t.Fatalf("empty overrides changed params: %+v", same)
	}

	changed := params.Merge(base, params.ProcessParams{ModelID: "X", Render: params.Render{Shadow: params.Bool(false)}})
	if changed.ModelID != "X" {
		t.Fatalf("expected model override, got %q", changed.ModelID)
	}
	if changed.TrackHand == nil || !*changed.TrackHand || changed.Render.Backdrop != "studio" {
		t.Fatalf("expected untouched fields kept, got %+v", changed)
	}
	if changed.Render.Shadow == nil || *changed.Render.Shadow {
		t.Fatal("expected render shadow override")
	}
	if base.ModelID != "original" {
		t.Fatal("merge must not mutate base")
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := params.New(params.FormatFBX)
	p.TrackFace = params.Bool(true)
	c := p.Clone()
	*c.TrackFace = false
	c.Formats[0] = params.FormatMP4
	if !*p.TrackFace || p.Formats[0] != params.FormatFBX {
		t.Fatal("clone shares memory with original")
	}
}

func TestParseYAMLDocument(t *testing.T) {
	doc := []byte(`
formats: [bvh, mp4]
model_id: abc
track_face: true
video_speed_multiplier: 2.5
trim: {start: 0, end: 3}
render:
  camera_mode: 2
  background: {r: 1, g: 2, b: 3, a: 4}
`)
	p, err := params.Parse(doc)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if p.ModelID != "abc" || len(p.Formats) != 2 || p.TrackFace == nil || !*p.TrackFace {
		t.Fatalf("unexpected params: %+v", p)
	}
	if p.Render.CameraMode == nil || *p.Render.CameraMode != params.CameraFace {
		t.Fatalf("unexpected camera mode: %+v", p.Render)
	}

	if _, err := params.Parse([]byte("trak_face: true")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected unknown field rejection, got %v", err)
	}
}
