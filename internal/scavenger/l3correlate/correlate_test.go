package l3correlate

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/testutil"
)

func TestFingerprintOf(t *testing.T) {
	t.Parallel()

	a := testutil.Record("ap1", 1, -40, "ie1", "dev")
	b := testutil.Record("ap2", 99, -80, "ie1", "dev")
	if FingerprintOf(a) != FingerprintOf(b) {
		t.Error("fingerprint depends on sniffer, epoch or rssi")
	}

	// The separator keeps field boundaries apart.
	c := testutil.Record("ap1", 1, -40, "ie1d", "ev")
	if FingerprintOf(a) == FingerprintOf(c) {
		t.Error("fingerprint ignores field boundary")
	}
}

func TestCorrelate_Gating(t *testing.T) {
	t.Parallel()

	w := scavenger.Window{
		testutil.Record("ap1", 1, -40, "ie", "dev"),
		testutil.Record("ap2", 2, -41, "ie", "dev"),
	}
	res := Correlate(w, 3)
	if res.Outcome != TooFewSniffers || res.Records != nil || res.Sniffers != 2 {
		t.Errorf("Correlate() = %+v, want too few sniffers", res)
	}

	if res := Correlate(nil, 0); res.Outcome != TooFewSniffers {
		t.Errorf("Correlate(nil) outcome = %v", res.Outcome)
	}
}

func TestCorrelate_FullIntersection(t *testing.T) {
	t.Parallel()

	w := scavenger.Window{
		testutil.Record("ap1", 1, -40, "ie", "dev"),
		testutil.Record("ap2", 2, -41, "ie", "dev"),
		testutil.Record("ap1", 3, -42, "ie2", "other"),
		testutil.Record("ap3", 4, -43, "ie", "dev"),
		testutil.Record("ap2", 5, -44, "ie2", "other"),
		testutil.Record("ap3", 6, -45, "ie", "dev"),
	}
	res := Correlate(w, 3)
	if res.Outcome != Kept {
		t.Fatalf("outcome = %v, want kept", res.Outcome)
	}
	want := scavenger.Window{w[0], w[1], w[3], w[5]}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Errorf("Correlate() mismatch (-want +got):\n%s", diff)
	}

	// Every surviving fingerprint is reported by every sniffer of the window.
	seen := map[string]map[Fingerprint]bool{}
	for _, r := range w {
		if seen[r.SnifferID] == nil {
			seen[r.SnifferID] = map[Fingerprint]bool{}
		}
		seen[r.SnifferID][FingerprintOf(r)] = true
	}
	for _, r := range res.Records {
		for ap, set := range seen {
			if !set[FingerprintOf(r)] {
				t.Errorf("record %+v not seen by %s", r, ap)
			}
		}
	}
}

func TestCorrelate_NoCommonFingerprint(t *testing.T) {
	t.Parallel()

	w := scavenger.Window{
		testutil.Record("ap1", 1, -40, "ie", "a"),
		testutil.Record("ap2", 2, -41, "ie", "b"),
		testutil.Record("ap3", 3, -42, "ie", "a"),
	}
	res := Correlate(w, 3)
	if res.Outcome != NoCommonFingerprint || len(res.Records) != 0 {
		t.Errorf("Correlate() = %+v, want no common fingerprint", res)
	}
	if res.Outcome.String() != "no_common_fingerprint" {
		t.Errorf("String() = %q", res.Outcome.String())
	}
}
