// Package sqlite contains the SQLite implementation of the identity
// registry.
//
// Every read and write is scoped to a run. A run is created by StartRun
// (one per pipeline invocation) and can be continued later with
// ResumeRun, so several analyses of the same venue can share one
// database file without seeing each other's identities.
//
// The schema is owned by the embedded migrations under migrations/ and
// applied by Open.
package sqlite
