package l1capture

import (
	"sort"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// AlignSniffers merges per-sniffer captures whose clocks were never
// synchronised. Each sniffer's records are shifted so that its first
// record lands on the earliest first record across all sniffers, then the
// union is sorted by epoch. Records with equal epochs keep sniffer-id order
// and their original order within a sniffer.
func AlignSniffers(perSniffer map[string][]scavenger.DetectionRecord) []scavenger.DetectionRecord {
	names := make([]string, 0, len(perSniffer))
	firsts := make(map[string]int64, len(perSniffer))
	var globalFirst int64
	haveGlobal := false
	total := 0

	for name, recs := range perSniffer {
		if len(recs) == 0 {
			continue
		}
		names = append(names, name)
		first := recs[0].EpochNs
		for _, r := range recs[1:] {
			if r.EpochNs < first {
				first = r.EpochNs
			}
		}
		firsts[name] = first
		if !haveGlobal || first < globalFirst {
			globalFirst = first
			haveGlobal = true
		}
		total += len(recs)
	}
	sort.Strings(names)

	merged := make([]scavenger.DetectionRecord, 0, total)
	for _, name := range names {
		offset := firsts[name] - globalFirst
		for _, r := range perSniffer[name] {
			r.EpochNs -= offset
			merged = append(merged, r)
		}
		diagf("aligned sniffer group %s: %d records, offset %dns", name, len(perSniffer[name]), offset)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].EpochNs < merged[j].EpochNs
	})
	return merged
}
