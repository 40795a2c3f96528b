package params

// Merge overlays every field set in overrides onto a copy of base. Fields left
// unset in overrides keep the base value, so Merge(base, ProcessParams{})
// equals base.
func Merge(base, overrides ProcessParams) ProcessParams {
	out := base.Clone()
	o := overrides.Clone()

	if o.Formats != nil {
		out.Formats = o.Formats
	}
	if o.ModelID != "" {
		out.ModelID = o.ModelID
	}
	if o.Config != "" {
		out.Config = o.Config
	}
	if o.Simulation != nil {
		out.Simulation = o.Simulation
	}
	if o.TrackFace != nil {
		out.TrackFace = o.TrackFace
	}
	if o.TrackHand != nil {
		out.TrackHand = o.TrackHand
	}
	if o.FootLocking != "" {
		out.FootLocking = o.FootLocking
	}
	if o.VideoSpeedMultiplier != nil {
		out.VideoSpeedMultiplier = o.VideoSpeedMultiplier
	}
	if o.PoseFilteringStrength != nil {
		out.PoseFilteringStrength = o.PoseFilteringStrength
	}
	if o.UpperBodyOnly != nil {
		out.UpperBodyOnly = o.UpperBodyOnly
	}
	if o.RootAtOrigin != nil {
		out.RootAtOrigin = o.RootAtOrigin
	}
	if o.Trim != nil {
		out.Trim = o.Trim
	}
	if o.Crop != nil {
		out.Crop = o.Crop
	}
	if o.Render.SideBySide != nil {
		out.Render.SideBySide = o.Render.SideBySide
	}
	if o.Render.Background != nil {
		out.Render.Background = o.Render.Background
	}
	if o.Render.Backdrop != "" {
		out.Render.Backdrop = o.Render.Backdrop
	}
	if o.Render.Shadow != nil {
		out.Render.Shadow = o.Render.Shadow
	}
	if o.Render.IncludeAudio != nil {
		out.Render.IncludeAudio = o.Render.IncludeAudio
	}
	if o.Render.CameraMode != nil {
		out.Render.CameraMode = o.Render.CameraMode
	}
	if o.Models != nil {
		out.Models = o.Models
	}
	if o.Pipeline != "" {
		out.Pipeline = o.Pipeline
	}
	return out
}
