// Package l5localize owns Layer 5 (Localize) of the probe-request pipeline.
//
// Responsibilities: turning per-sniffer RSSI readings into density regions
// of likely transmitter positions, and deciding whether two sets of regions
// could belong to one walking device.
//
// Localization runs a robust bounded least-squares multilateration from
// many random starting points inside the sniffer bounding box, weights every
// restart by its final cost, bins the restarts into a density histogram,
// smooths it, thresholds at the 95th percentile and returns the convex hull
// of each connected peak in bin coordinates.
//
// Dependency rule: L5 may depend on L1–L4 types but not on higher layers.
package l5localize
