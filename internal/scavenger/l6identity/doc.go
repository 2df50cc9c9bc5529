// Package l6identity owns Layer 6 (Identity) of the probe-request pipeline.
//
// Responsibilities: deciding, for every localized group, whether it is a
// repeat of a known device, a new randomized identifier of a device seen
// nearby shortly before, an unrelated device, or a new device, and
// recording the outcome and the group's regions in a Registry.
//
// The Registry interface is the only contract with storage. Adapters live in
// storage/sqlite and storage/redis; MemoryRegistry is the in-process
// implementation used by tests and throwaway runs.
//
// Dependency rule: L6 may depend on L1–L5 types but not on the pipeline.
package l6identity
