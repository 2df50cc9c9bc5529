// Package l1capture owns Layer 1 (Capture) of the probe-request pipeline.
//
// Responsibilities: decoding capture batches produced by the sniffers,
// iterating batch files in arrival order, extracting probe requests from
// offline pcap files, and aligning per-sniffer clocks before a merge.
// This layer produces DetectionRecords consumed by L2 (Window).
//
// Dependency rule: L1 has no inward dependencies on higher layers.
package l1capture
