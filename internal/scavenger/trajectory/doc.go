// Package trajectory reconstructs the path of one device from its stored
// sightings and smooths it for display.
//
// It is a post-hoc reporting tool: nothing in the pipeline depends on it.
package trajectory
