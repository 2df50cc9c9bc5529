// Package l2window owns Layer 2 (Window) of the probe-request pipeline.
//
// Responsibilities: buffering detection records across batches and
// cutting the stream into fixed-length interval buckets. This layer
// produces Windows consumed by L3 (Correlate).
//
// Dependency rule: L2 may depend on L1 types but not on higher layers.
package l2window
