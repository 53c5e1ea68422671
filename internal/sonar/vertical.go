package sonar

import "fmt"

// VerticalContext carries the per-ping quantities the vertical resolver
// may need. All sign conventions follow the vessel frame: depths and
// separations are positive down, heave and altitude positive up.
type VerticalContext struct {
	// Heave is the interpolated heave at ping time, meters positive up.
	Heave float64

	// Altitude is the ellipsoid height of the vessel reference point,
	// meters positive up. Required by the ellipse and chart datum modes.
	Altitude    float64
	HasAltitude bool

	// DatumSeparation is the chart datum's offset below the ellipsoid,
	// meters positive down. Required by the chart datum mode.
	DatumSeparation float64
	HasSeparation   bool
}

// ResolveVertical shifts depths from the vessel reference point to the
// requested vertical reference. Input z values are positive down relative
// to the reference point (lever-arm displacement already included). The
// resolver is a pure function over its arguments: it reads no raw sensor
// data and performs no interpolation of its own, so switching references
// re-runs only this stage.
func ResolveVertical(ref VerticalReference, inst InstallationOffsets, ctx VerticalContext, z []float64) ([]float64, error) {
	out := make([]float64, len(z))
	switch ref {
	case VerticalWaterline:
		// The waterline sits at z = WaterlineZ in the vessel frame; heave
		// lifts the whole frame above its mean position.
		for i, v := range z {
			out[i] = v - inst.WaterlineZ - ctx.Heave
		}
	case VerticalEllipse:
		if !ctx.HasAltitude {
			return nil, fmt.Errorf("vertical reference %s requires altitude data", ref)
		}
		for i, v := range z {
			out[i] = v - ctx.Altitude
		}
	case VerticalChartDatum:
		if !ctx.HasAltitude {
			return nil, fmt.Errorf("vertical reference %s requires altitude data", ref)
		}
		if !ctx.HasSeparation {
			return nil, fmt.Errorf("vertical reference %s requires a datum separation model", ref)
		}
		for i, v := range z {
			out[i] = v - ctx.Altitude - ctx.DatumSeparation
		}
	default:
		return nil, fmt.Errorf("unknown vertical reference %q", ref)
	}
	return out, nil
}
