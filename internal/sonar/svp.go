package sonar

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CastTieBreak selects how applicable-cast ties (two casts equally near in
// time) are resolved. The tie-break policy is configurable because survey
// practice varies; nearest-time remains the primary rule either way.
type CastTieBreak int

const (
	// TieBreakEarliest resolves ties to the earliest cast index.
	TieBreakEarliest CastTieBreak = iota
	// TieBreakLocation resolves ties by smallest location distance when
	// both the ping and the casts carry positions, falling back to the
	// earliest index otherwise.
	TieBreakLocation
)

// ProfileSet manages the registered sound velocity casts. Mutations
// (add/remove) follow copy-on-import semantics: each produces a new
// immutable ProfileSnapshot and bumps the version counter, so in-flight
// chunk computations keep the view they started with.
type ProfileSet struct {
	mu   sync.RWMutex
	snap *ProfileSnapshot
}

// ProfileSnapshot is an immutable, versioned view of the cast set, ordered
// by cast time.
type ProfileSnapshot struct {
	Version uint64
	casts   []*Cast
}

// NewProfileSet returns an empty profile set at version 0.
func NewProfileSet() *ProfileSet {
	return &ProfileSet{snap: &ProfileSnapshot{}}
}

// Snapshot returns the current immutable view.
func (ps *ProfileSet) Snapshot() *ProfileSnapshot {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.snap
}

// AddCast validates and registers a cast, producing a new snapshot.
// A cast whose timestamp matches an existing cast is rejected with a
// *DuplicateCastError.
func (ps *ProfileSet) AddCast(c *Cast) error {
	if err := validateCast(c); err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, existing := range ps.snap.casts {
		if existing.Time.Equal(c.Time) {
			return &DuplicateCastError{CastID: c.ID, At: c.Time}
		}
	}
	casts := make([]*Cast, 0, len(ps.snap.casts)+1)
	casts = append(casts, ps.snap.casts...)
	casts = append(casts, c)
	sort.Slice(casts, func(i, j int) bool { return casts[i].Time.Before(casts[j].Time) })
	ps.snap = &ProfileSnapshot{Version: ps.snap.Version + 1, casts: casts}
	diagf("registered cast %s at %s (%d points), profile version %d",
		c.ID, c.Time.Format(time.RFC3339), len(c.Depth), ps.snap.Version)
	return nil
}

// RemoveCast removes a cast by id and produces a new snapshot. Removal
// invalidates any cached correction results computed against the removed
// cast; callers detect this through the bumped version. Returns false when
// no cast matches.
func (ps *ProfileSet) RemoveCast(id string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	casts := make([]*Cast, 0, len(ps.snap.casts))
	found := false
	for _, c := range ps.snap.casts {
		if c.ID == id {
			found = true
			continue
		}
		casts = append(casts, c)
	}
	if !found {
		return false
	}
	ps.snap = &ProfileSnapshot{Version: ps.snap.Version + 1, casts: casts}
	diagf("removed cast %s, profile version %d", id, ps.snap.Version)
	return true
}

func validateCast(c *Cast) error {
	if c == nil {
		return fmt.Errorf("nil cast")
	}
	if len(c.Depth) != len(c.Velocity) {
		return fmt.Errorf("cast %s: %d depths for %d velocities", c.ID, len(c.Depth), len(c.Velocity))
	}
	if len(c.Depth) < 2 {
		return fmt.Errorf("cast %s: need at least 2 profile points, got %d", c.ID, len(c.Depth))
	}
	for i := 1; i < len(c.Depth); i++ {
		if c.Depth[i] <= c.Depth[i-1] {
			return fmt.Errorf("cast %s: depths not strictly increasing at index %d", c.ID, i)
		}
	}
	return nil
}

// Casts returns the ordered cast list. The slice is shared with the
// snapshot and must not be mutated.
func (s *ProfileSnapshot) Casts() []*Cast { return s.casts }

// Empty reports whether the snapshot holds no casts.
func (s *ProfileSnapshot) Empty() bool { return len(s.casts) == 0 }

// ApplicableCast selects the cast for one ping: nearest cast time to the
// ping time, ties resolved by the configured policy. Selection is
// deterministic: the same inputs always pick the same cast. Returns nil on
// an empty snapshot.
func (s *ProfileSnapshot) ApplicableCast(t time.Time, latDeg, lonDeg float64, hasLocation bool, tieBreak CastTieBreak) *Cast {
	if len(s.casts) == 0 {
		return nil
	}
	best := 0
	bestDT := absDuration(s.casts[0].Time.Sub(t))
	for i := 1; i < len(s.casts); i++ {
		dt := absDuration(s.casts[i].Time.Sub(t))
		switch {
		case dt < bestDT:
			best, bestDT = i, dt
		case dt == bestDT && tieBreak == TieBreakLocation && hasLocation:
			if s.casts[i].HasLocation && s.casts[best].HasLocation &&
				castDistance(s.casts[i], latDeg, lonDeg) < castDistance(s.casts[best], latDeg, lonDeg) {
				best = i
			}
			// Otherwise keep the earlier index.
		}
	}
	return s.casts[best]
}

// ApplicableCasts selects one cast index per ping time. Positions may be
// nil when the chunk carries no per-ping location.
func (s *ProfileSnapshot) ApplicableCasts(times []time.Time, lats, lons []float64, tieBreak CastTieBreak) []int {
	out := make([]int, len(times))
	for i, t := range times {
		var lat, lon float64
		hasLoc := lats != nil && lons != nil
		if hasLoc {
			lat, lon = lats[i], lons[i]
		}
		c := s.ApplicableCast(t, lat, lon, hasLoc, tieBreak)
		if c == nil {
			out[i] = -1
			continue
		}
		for j, cc := range s.casts {
			if cc == c {
				out[i] = j
				break
			}
		}
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// castDistance is a flat-earth approximate distance in degrees, adequate
// for ranking casts against one another.
func castDistance(c *Cast, latDeg, lonDeg float64) float64 {
	dLat := c.LatDeg - latDeg
	dLon := (c.LonDeg - lonDeg) * math.Cos(latDeg*math.Pi/180)
	return math.Hypot(dLat, dLon)
}

// ImportSoundVelocityFiles parses one or more profile files and registers
// each as a cast. The format is line-oriented: "depth velocity" pairs with
// optional "# time:" and "# position:" header comments. Files failing to
// parse abort the import; casts already registered stay registered.
func (ps *ProfileSet) ImportSoundVelocityFiles(paths []string) ([]string, error) {
	var ids []string
	for _, path := range paths {
		c, err := parseCastFile(path)
		if err != nil {
			return ids, fmt.Errorf("import %s: %w", path, err)
		}
		if err := ps.AddCast(c); err != nil {
			return ids, fmt.Errorf("import %s: %w", path, err)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func parseCastFile(path string) (*Cast, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := &Cast{ID: uuid.NewString()}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			body := strings.TrimSpace(strings.TrimPrefix(text, "#"))
			switch {
			case strings.HasPrefix(body, "time:"):
				ts, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(body, "time:")))
				if err != nil {
					return nil, fmt.Errorf("line %d: bad time header: %w", line, err)
				}
				c.Time = ts
			case strings.HasPrefix(body, "position:"):
				var lat, lon float64
				if _, err := fmt.Sscanf(strings.TrimSpace(strings.TrimPrefix(body, "position:")), "%f %f", &lat, &lon); err != nil {
					return nil, fmt.Errorf("line %d: bad position header: %w", line, err)
				}
				c.LatDeg, c.LonDeg, c.HasLocation = lat, lon, true
			}
			continue
		}
		var depth, velocity float64
		if _, err := fmt.Sscanf(text, "%f %f", &depth, &velocity); err != nil {
			return nil, fmt.Errorf("line %d: expected 'depth velocity': %w", line, err)
		}
		c.Depth = append(c.Depth, depth)
		c.Velocity = append(c.Velocity, velocity)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if c.Time.IsZero() {
		return nil, fmt.Errorf("missing '# time:' header")
	}
	return c, nil
}
