// Package l4aggregate owns Layer 4 (Aggregate) of the probe-request
// pipeline.
//
// Responsibilities: stamping a correlated window with its median epoch and
// grouping its records by (information element, claimed id) into
// per-sniffer RSSI readings for L5 (Localize).
//
// Dependency rule: L4 may depend on L1–L3 types but not on higher layers.
package l4aggregate
