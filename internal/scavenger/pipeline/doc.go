// Package pipeline composes layers L2 to L6 into the probe-request
// de-anonymization pipeline.
//
// Responsibilities: owning the per-run State (pending window buffer and
// last window median), feeding every batch through windowing,
// correlation, aggregation, localization and identity resolution strictly
// one window at a time, and reporting what happened to each window.
//
// A Pipeline processes one batch at a time. The only parallelism is
// inside the Localizer's restart solver.
//
// Dependency rule: pipeline may depend on every layer; no layer depends on
// pipeline.
package pipeline
