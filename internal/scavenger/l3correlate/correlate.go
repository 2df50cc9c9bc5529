package l3correlate

import (
	"github.com/cespare/xxhash/v2"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// Fingerprint is a correlation key over (information element, claimed id).
// It is never persisted.
type Fingerprint uint64

// FingerprintOf hashes the identifying fields of a record.
func FingerprintOf(r scavenger.DetectionRecord) Fingerprint {
	d := xxhash.New()
	_, _ = d.WriteString(r.InformationElement)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(r.ClaimedID)
	return Fingerprint(d.Sum64())
}

// Outcome reports why a window was kept or dropped.
type Outcome int

const (
	// Kept means at least one fingerprint was seen by every sniffer.
	Kept Outcome = iota
	// TooFewSniffers means fewer than the minimum number of sniffers
	// reported anything in the window.
	TooFewSniffers
	// NoCommonFingerprint means no fingerprint was seen by all sniffers.
	NoCommonFingerprint
)

func (o Outcome) String() string {
	switch o {
	case Kept:
		return "kept"
	case TooFewSniffers:
		return "too_few_sniffers"
	case NoCommonFingerprint:
		return "no_common_fingerprint"
	default:
		return "unknown"
	}
}

// Result is the correlated view of one window.
type Result struct {
	Records  scavenger.Window
	Sniffers int
	Outcome  Outcome
}

// Correlate keeps the records of w whose fingerprint was reported by every
// sniffer present in w. Windows with fewer than minSniffers distinct
// sniffers are dropped. Surviving records keep their order and duplicates.
func Correlate(w scavenger.Window, minSniffers int) Result {
	perSniffer := make(map[string]map[Fingerprint]struct{})
	prints := make([]Fingerprint, len(w))
	for i, r := range w {
		fp := FingerprintOf(r)
		prints[i] = fp
		set, ok := perSniffer[r.SnifferID]
		if !ok {
			set = make(map[Fingerprint]struct{})
			perSniffer[r.SnifferID] = set
		}
		set[fp] = struct{}{}
	}

	res := Result{Sniffers: len(perSniffer)}
	if len(perSniffer) == 0 || len(perSniffer) < minSniffers {
		res.Outcome = TooFewSniffers
		return res
	}

	var common map[Fingerprint]struct{}
	for _, set := range perSniffer {
		if common == nil || len(set) < len(common) {
			common = set
		}
	}
	shared := make(map[Fingerprint]struct{}, len(common))
	for fp := range common {
		inAll := true
		for _, set := range perSniffer {
			if _, ok := set[fp]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			shared[fp] = struct{}{}
		}
	}
	if len(shared) == 0 {
		res.Outcome = NoCommonFingerprint
		return res
	}

	kept := make(scavenger.Window, 0, len(w))
	for i, r := range w {
		if _, ok := shared[prints[i]]; ok {
			kept = append(kept, r)
		}
	}
	res.Records = kept
	res.Outcome = Kept
	return res
}
