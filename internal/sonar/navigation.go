package sonar

import (
	"fmt"
	"sync"
	"time"
)

// NavigationStore manages the vessel navigation time series. The raw import
// is kept verbatim; a post-processed solution is an overlay on top of it,
// so removing the overlay reverts to bit-identical raw data. Every mutation
// produces a new immutable versioned snapshot.
type NavigationStore struct {
	mu   sync.RWMutex
	snap *NavigationSnapshot
}

// NavigationSnapshot is an immutable view of the navigation data.
type NavigationSnapshot struct {
	Version uint64
	raw     []NavigationSample
	post    []NavigationSample
}

// NewNavigationStore returns an empty store at version 0.
func NewNavigationStore() *NavigationStore {
	return &NavigationStore{snap: &NavigationSnapshot{}}
}

// Snapshot returns the current immutable view.
func (ns *NavigationStore) Snapshot() *NavigationSnapshot {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.snap
}

// ImportRawNavigation sets the raw navigation series. Fails when a raw
// series is already present; use OverwriteRawNavigation to replace it.
func (ns *NavigationStore) ImportRawNavigation(samples []NavigationSample) error {
	if err := validateNavigation(samples); err != nil {
		return err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.snap.raw != nil {
		return fmt.Errorf("raw navigation already imported (%d samples)", len(ns.snap.raw))
	}
	ns.snap = &NavigationSnapshot{
		Version: ns.snap.Version + 1,
		raw:     copySamples(samples),
		post:    ns.snap.post,
	}
	opsf("imported %d raw navigation samples, version %d", len(samples), ns.snap.Version)
	return nil
}

// OverwriteRawNavigation replaces the raw series wholesale. Any derived
// result computed against the previous version is stale afterwards; callers
// detect this through the bumped version.
func (ns *NavigationStore) OverwriteRawNavigation(samples []NavigationSample) error {
	if err := validateNavigation(samples); err != nil {
		return err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.snap = &NavigationSnapshot{
		Version: ns.snap.Version + 1,
		raw:     copySamples(samples),
		post:    ns.snap.post,
	}
	opsf("overwrote raw navigation with %d samples, version %d", len(samples), ns.snap.Version)
	return nil
}

// ApplyPostProcessedNavigation installs a post-processed solution as the
// active series. The raw series underneath is untouched.
func (ns *NavigationStore) ApplyPostProcessedNavigation(samples []NavigationSample) error {
	if err := validateNavigation(samples); err != nil {
		return err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.snap = &NavigationSnapshot{
		Version: ns.snap.Version + 1,
		raw:     ns.snap.raw,
		post:    copySamples(samples),
	}
	opsf("applied post-processed navigation, %d samples, version %d", len(samples), ns.snap.Version)
	return nil
}

// RemovePostProcessedNavigation drops the overlay, reverting the active
// series to the raw import. Returns false when no overlay is installed.
func (ns *NavigationStore) RemovePostProcessedNavigation() bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.snap.post == nil {
		return false
	}
	ns.snap = &NavigationSnapshot{
		Version: ns.snap.Version + 1,
		raw:     ns.snap.raw,
		post:    nil,
	}
	opsf("removed post-processed navigation, version %d", ns.snap.Version)
	return true
}

// Active returns the series georeferencing should use: the post-processed
// overlay when present, otherwise the raw import. The slice is shared with
// the snapshot and must not be mutated.
func (s *NavigationSnapshot) Active() []NavigationSample {
	if s.post != nil {
		return s.post
	}
	return s.raw
}

// Raw returns the raw import regardless of any overlay.
func (s *NavigationSnapshot) Raw() []NavigationSample { return s.raw }

// HasPostProcessed reports whether a post-processed overlay is active.
func (s *NavigationSnapshot) HasPostProcessed() bool { return s.post != nil }

// Series builds an interpolation series ("lat", "lon", and "altitude" when
// every sample carries one) from the active navigation data.
func (s *NavigationSnapshot) Series() (*Series, error) {
	samples := s.Active()
	if len(samples) == 0 {
		return nil, fmt.Errorf("no navigation data")
	}
	times := make([]time.Time, len(samples))
	lats := make([]float64, len(samples))
	lons := make([]float64, len(samples))
	alts := make([]float64, len(samples))
	haveAlt := true
	for i, smp := range samples {
		times[i] = smp.Time
		lats[i] = smp.LatDeg
		lons[i] = smp.LonDeg
		alts[i] = smp.Altitude
		haveAlt = haveAlt && smp.HasAltitude
	}
	series, err := NewSeries("navigation", times)
	if err != nil {
		return nil, err
	}
	if err := series.AddChannel("lat", lats, false); err != nil {
		return nil, err
	}
	if err := series.AddChannel("lon", lons, false); err != nil {
		return nil, err
	}
	if haveAlt {
		if err := series.AddChannel("altitude", alts, false); err != nil {
			return nil, err
		}
	}
	return series, nil
}

func validateNavigation(samples []NavigationSample) error {
	if len(samples) < 2 {
		return &MalformedSeriesError{Series: "navigation", Index: 0, Reason: "need at least 2 samples"}
	}
	for i := 1; i < len(samples); i++ {
		if !samples[i].Time.After(samples[i-1].Time) {
			return &MalformedSeriesError{Series: "navigation", Index: i, Reason: "timestamps not strictly increasing"}
		}
	}
	return nil
}

func copySamples(samples []NavigationSample) []NavigationSample {
	out := make([]NavigationSample, len(samples))
	copy(out, samples)
	return out
}
