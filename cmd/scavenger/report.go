package main

import (
	"fmt"
	"io"

	"github.com/rodaine/table"

	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/scavenger/pipeline"
)

// printReport writes the end-of-run summary: the identity counters and
// the resolver decisions.
func printReport(w io.Writer, runID string, minDetectionRate int, counts l6identity.Counts, stats pipeline.Stats) {
	fmt.Fprintf(w, "run %s\n\n", runID)

	tbl := table.New("IDENTITIES", "COUNT").WithWriter(w)
	tbl.AddRow("total", counts.Total)
	tbl.AddRow("singletons", counts.Singletons)
	tbl.AddRow("repeat, not aliased", counts.RepeatNonAliased)
	tbl.AddRow("aliased", counts.Aliased)
	tbl.AddRow("min detection rate", minDetectionRate)
	tbl.Print()
	fmt.Fprintln(w)

	run := table.New("PIPELINE", "COUNT").WithWriter(w)
	run.AddRow("batches", stats.Batches)
	run.AddRow("records", stats.Records)
	run.AddRow("windows", stats.Windows)
	run.AddRow("windows kept", stats.Kept)
	run.AddRow("groups", stats.Groups)
	run.AddRow("failed groups", stats.FailedGroups)
	run.AddRow("causality violations", stats.IntegrityErrors)
	for _, o := range l6identity.Outcomes {
		run.AddRow("decision "+string(o), stats.Decisions[o])
	}
	run.Print()
}
