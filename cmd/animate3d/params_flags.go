package main

import (
	"strings"

	"github.com/spf13/cobra"

	"animate3d/internal/params"
)

// paramFlags collects processing options from the command line. A params
// file is the base; individual flags override it.
type paramFlags struct {
	file        string
	formats     string
	model       string
	preset      string
	footLocking string
	simulation  bool
	trackFace   bool
	trackHand   bool
	speed       float64
}

func (f *paramFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.file, "params", "", "YAML or JSON file with processing parameters")
	flags.StringVar(&f.formats, "formats", "", "Comma separated output formats (bvh, fbx, mp4, glb, png, jpg)")
	flags.StringVar(&f.model, "model", "", "Character model id")
	flags.StringVar(&f.preset, "preset", "", "Service configuration preset")
	flags.StringVar(&f.footLocking, "foot-locking", "", "Foot locking mode (auto, always, never, grounding)")
	flags.BoolVar(&f.simulation, "simulation", false, "Enable physics simulation")
	flags.BoolVar(&f.trackFace, "track-face", false, "Track facial expressions")
	flags.BoolVar(&f.trackHand, "track-hand", false, "Track hands")
	flags.Float64Var(&f.speed, "speed", 0, "Video speed multiplier")
}

// overrides returns only what the user set, so it can overlay stored params
// for a rerun as well as build new ones.
func (f *paramFlags) overrides(cmd *cobra.Command) (params.ProcessParams, error) {
	var p params.ProcessParams
	if path := strings.TrimSpace(f.file); path != "" {
		loaded, err := params.LoadFile(path)
		if err != nil {
			return params.ProcessParams{}, err
		}
		p = loaded
	}

	var set params.ProcessParams
	flags := cmd.Flags()
	if flags.Changed("formats") {
		set.Formats = params.ParseFormats(f.formats)
	}
	if flags.Changed("model") {
		set.ModelID = strings.TrimSpace(f.model)
	}
	if flags.Changed("preset") {
		set.Config = strings.TrimSpace(f.preset)
	}
	if flags.Changed("foot-locking") {
		set.FootLocking = params.FootLocking(strings.ToLower(strings.TrimSpace(f.footLocking)))
	}
	if flags.Changed("simulation") {
		set.Simulation = params.Bool(f.simulation)
	}
	if flags.Changed("track-face") {
		set.TrackFace = params.Bool(f.trackFace)
	}
	if flags.Changed("track-hand") {
		set.TrackHand = params.Bool(f.trackHand)
	}
	if flags.Changed("speed") {
		set.VideoSpeedMultiplier = params.Float(f.speed)
	}
	return params.Merge(p, set), nil
}
