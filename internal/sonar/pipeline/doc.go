// Package pipeline orchestrates per-chunk processing from raw ping records
// through beam orientation, sound velocity correction, georeferencing and
// uncertainty computation.
//
// This package is the composition root: it imports the sonar stage package
// and storage, but neither of those imports pipeline/. Chunk state
// transitions are serialized per chunk while distinct chunks process in
// parallel on the worker pool.
package pipeline
