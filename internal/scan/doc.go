// Package scan defines the spatial geometry of an acquisition: fields of
// view, named regions, grid generation and whole-scan accounting.
//
// Everything here is a plain value. The scan engine consumes regions from
// its parameter snapshot and never mutates them, so geometry can be built
// once, validated against the stage's travel limits, and shared freely.
package scan
