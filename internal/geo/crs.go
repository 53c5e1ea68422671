package geo

import (
	"fmt"
	"math"
)

// CRSKind selects the family of coordinate reference system to project into.
type CRSKind string

const (
	// CRSKindUTM projects geographic coordinates into a UTM zone.
	CRSKindUTM CRSKind = "utm"
	// CRSKindGeographic performs no projection; output stays in degrees.
	CRSKindGeographic CRSKind = "geographic"
	// CRSKindCustom uses a caller-supplied transverse mercator definition.
	CRSKindCustom CRSKind = "custom"
)

// InvalidCRSError reports an unresolvable CRS request. It is fatal for the
// processing line that requested it, not for the whole dataset.
type InvalidCRSError struct {
	Kind   CRSKind
	Detail string
}

func (e *InvalidCRSError) Error() string {
	return fmt.Sprintf("invalid CRS (%s): %s", e.Kind, e.Detail)
}

// CRSSpec describes a requested coordinate reference system. For UTM the
// zone may be zero, in which case the zone is resolved from the dataset's
// reference position at construction time.
type CRSSpec struct {
	Kind CRSKind `json:"kind"`

	// UTM fields
	Zone     int  `json:"zone,omitempty"`
	Southern bool `json:"southern,omitempty"`
	AutoZone bool `json:"auto_zone,omitempty"`

	// Custom transverse mercator fields
	CentralMeridianDeg float64 `json:"central_meridian_deg,omitempty"`
	ScaleFactor        float64 `json:"scale_factor,omitempty"`
	FalseEasting       float64 `json:"false_easting,omitempty"`
	FalseNorthing      float64 `json:"false_northing,omitempty"`
}

// CRS is a resolved coordinate reference system able to project WGS84
// geographic coordinates into the target frame.
type CRS struct {
	Kind CRSKind

	// Transverse mercator parameters (unused for geographic).
	lon0 float64 // central meridian, radians
	k0   float64
	fe   float64
	fn   float64

	// Name is a short human-readable identifier, e.g. "UTM 19N".
	Name string
}

// ConstructCRS resolves a CRSSpec into a usable CRS. refLat/refLon (degrees)
// supply the dataset reference position for automatic UTM zone selection.
// Returns *InvalidCRSError when the request cannot be resolved.
func ConstructCRS(spec CRSSpec, refLat, refLon float64) (*CRS, error) {
	switch spec.Kind {
	case CRSKindGeographic:
		return &CRS{Kind: CRSKindGeographic, Name: "WGS84 geographic"}, nil

	case CRSKindUTM:
		zone := spec.Zone
		southern := spec.Southern
		if spec.AutoZone || zone == 0 {
			if refLon < -180 || refLon > 180 || refLat < -90 || refLat > 90 {
				return nil, &InvalidCRSError{Kind: spec.Kind,
					Detail: fmt.Sprintf("cannot auto-resolve zone from reference position (%.4f, %.4f)", refLat, refLon)}
			}
			zone = UTMZoneFromLon(refLon)
			southern = refLat < 0
		}
		if zone < 1 || zone > 60 {
			return nil, &InvalidCRSError{Kind: spec.Kind, Detail: fmt.Sprintf("zone %d out of range 1-60", zone)}
		}
		hemi := "N"
		fn := 0.0
		if southern {
			hemi = "S"
			fn = 10000000.0
		}
		return &CRS{
			Kind: CRSKindUTM,
			lon0: Deg2Rad(float64(zone)*6.0 - 183.0),
			k0:   0.9996,
			fe:   500000.0,
			fn:   fn,
			Name: fmt.Sprintf("UTM %d%s", zone, hemi),
		}, nil

	case CRSKindCustom:
		if spec.ScaleFactor <= 0 {
			return nil, &InvalidCRSError{Kind: spec.Kind, Detail: "scale factor must be positive"}
		}
		if spec.CentralMeridianDeg < -180 || spec.CentralMeridianDeg > 180 {
			return nil, &InvalidCRSError{Kind: spec.Kind,
				Detail: fmt.Sprintf("central meridian %.4f out of range", spec.CentralMeridianDeg)}
		}
		return &CRS{
			Kind: CRSKindCustom,
			lon0: Deg2Rad(spec.CentralMeridianDeg),
			k0:   spec.ScaleFactor,
			fe:   spec.FalseEasting,
			fn:   spec.FalseNorthing,
			Name: fmt.Sprintf("TM cm=%.1f k0=%.4f", spec.CentralMeridianDeg, spec.ScaleFactor),
		}, nil

	default:
		return nil, &InvalidCRSError{Kind: spec.Kind, Detail: "unknown CRS kind"}
	}
}

// UTMZoneFromLon returns the UTM zone number for a longitude in degrees.
func UTMZoneFromLon(lonDeg float64) int {
	zone := int(math.Floor((lonDeg+180.0)/6.0)) + 1
	if zone > 60 {
		zone = 60
	}
	if zone < 1 {
		zone = 1
	}
	return zone
}

// Forward projects WGS84 geographic coordinates (degrees) into the target
// frame. For geographic CRS the output is (lon, lat) unchanged, so x/y stay
// meaningful as "easting-like"/"northing-like" values for either kind.
func (c *CRS) Forward(latDeg, lonDeg float64) (x, y float64) {
	if c.Kind == CRSKindGeographic {
		return lonDeg, latDeg
	}
	return transverseMercator(Deg2Rad(latDeg), Deg2Rad(lonDeg), c.lon0, c.k0, c.fe, c.fn)
}

// transverseMercator implements the standard ellipsoidal transverse mercator
// forward series (Snyder 1987, eqs. 8-9..8-13) on WGS84.
func transverseMercator(lat, lon, lon0, k0, fe, fn float64) (x, y float64) {
	a := WGS84SemiMajor
	f := WGS84Flattening
	e2 := f * (2 - f)
	ep2 := e2 / (1 - e2)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	tanLat := math.Tan(lat)

	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	t := tanLat * tanLat
	cc := ep2 * cosLat * cosLat
	aa := (lon - lon0) * cosLat

	m := meridionalArc(lat, a, e2)

	x = fe + k0*n*(aa+
		(1-t+cc)*math.Pow(aa, 3)/6+
		(5-18*t+t*t+72*cc-58*ep2)*math.Pow(aa, 5)/120)
	y = fn + k0*(m+n*tanLat*(aa*aa/2+
		(5-t+9*cc+4*cc*cc)*math.Pow(aa, 4)/24+
		(61-58*t+t*t+600*cc-330*ep2)*math.Pow(aa, 6)/720))
	return x, y
}

// meridionalArc returns the meridian arc length from the equator to lat.
func meridionalArc(lat, a, e2 float64) float64 {
	e4 := e2 * e2
	e6 := e4 * e2
	return a * ((1-e2/4-3*e4/64-5*e6/256)*lat -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*lat) +
		(15*e4/256+45*e6/1024)*math.Sin(4*lat) -
		(35*e6/3072)*math.Sin(6*lat))
}
