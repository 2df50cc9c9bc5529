package l4aggregate

import (
	"errors"
	"sort"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// ErrEmptyWindow is returned when there is nothing to aggregate.
var ErrEmptyWindow = errors.New("aggregate: empty window")

// MedianEpoch returns the element at index n/2 of the sorted epochs. It is
// always one of the observed epochs.
func MedianEpoch(records []scavenger.DetectionRecord) (int64, error) {
	if len(records) == 0 {
		return 0, ErrEmptyWindow
	}
	epochs := make([]int64, len(records))
	for i, r := range records {
		epochs[i] = r.EpochNs
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	return epochs[len(epochs)/2], nil
}

// Aggregate groups records by key. Each group lists, per sniffer, the RSSI
// values in arrival order and carries the window's median epoch. Groups are
// sorted by key.
func Aggregate(records []scavenger.DetectionRecord) ([]scavenger.Group, int64, error) {
	median, err := MedianEpoch(records)
	if err != nil {
		return nil, 0, err
	}

	index := make(map[scavenger.GroupKey]int)
	var groups []scavenger.Group
	for _, r := range records {
		key := scavenger.GroupKey{InformationElement: r.InformationElement, ClaimedID: r.ClaimedID}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, scavenger.Group{
				Key:           key,
				Readings:      make(scavenger.Readings),
				MedianEpochNs: median,
			})
		}
		g := &groups[i]
		g.Readings[r.SnifferID] = append(g.Readings[r.SnifferID], r.RSSI)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a.InformationElement != b.InformationElement {
			return a.InformationElement < b.InformationElement
		}
		return a.ClaimedID < b.ClaimedID
	})
	return groups, median, nil
}
