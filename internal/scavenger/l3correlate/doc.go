// Package l3correlate owns Layer 3 (Correlate) of the probe-request
// pipeline.
//
// Responsibilities: confirming that a transmission was heard by enough
// sniffers, and keeping only the records whose fingerprint every reporting
// sniffer saw. This layer consumes Windows from L2 and produces filtered
// windows for L4 (Aggregate).
//
// Dependency rule: L3 may depend on L1–L2 types but not on higher layers.
package l3correlate
