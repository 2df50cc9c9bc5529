package l5localize

import (
	"fmt"
	"strings"
)

// Loss selects the robust loss applied to the residuals.
type Loss int

const (
	LossLinear Loss = iota
	LossSoftL1
	LossHuber
	LossCauchy
	LossArctan
)

var lossNames = map[Loss]string{
	LossLinear: "linear",
	LossSoftL1: "soft_l1",
	LossHuber:  "huber",
	LossCauchy: "cauchy",
	LossArctan: "arctan",
}

func (l Loss) String() string {
	if s, ok := lossNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Loss(%d)", int(l))
}

// ParseLoss maps a configuration name to a Loss.
func ParseLoss(s string) (Loss, error) {
	for l, name := range lossNames {
		if strings.EqualFold(s, name) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown loss %q", s)
}

// VarianceImpact controls whether the per-sniffer RSSI spread shifts the
// reference power of the path-loss model.
type VarianceImpact int

const (
	VarianceNone VarianceImpact = iota
	VarianceAdd
	VarianceSubtract
)

var varianceNames = map[VarianceImpact]string{
	VarianceNone:     "none",
	VarianceAdd:      "add",
	VarianceSubtract: "subtract",
}

func (v VarianceImpact) String() string {
	if s, ok := varianceNames[v]; ok {
		return s
	}
	return fmt.Sprintf("VarianceImpact(%d)", int(v))
}

// ParseVarianceImpact maps a configuration name to a VarianceImpact.
func ParseVarianceImpact(s string) (VarianceImpact, error) {
	for v, name := range varianceNames {
		if strings.EqualFold(s, name) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown variance impact %q", s)
}

// Options tunes the localizer.
type Options struct {
	// AmountOfDraws is the number of random restarts. Zero runs a single
	// restart from the centre of the sniffer bounding box.
	AmountOfDraws int
	// MeterPerBin is the edge length of one histogram cell.
	MeterPerBin float64
	// PathLossExponent is n in the log-distance model.
	PathLossExponent float64
	// ReferenceDBm is the absolute received power at one metre.
	ReferenceDBm float64
	// FScale is the soft margin between inlier and outlier residuals.
	FScale         float64
	Loss           Loss
	VarianceImpact VarianceImpact
	// Workers bounds the number of restarts solved at once.
	Workers int
}

// DefaultOptions returns the settings the field deployments used.
func DefaultOptions() Options {
	return Options{
		AmountOfDraws:    20,
		MeterPerBin:      0.5,
		PathLossExponent: 2,
		ReferenceDBm:     30,
		FScale:           1,
		Loss:             LossCauchy,
		VarianceImpact:   VarianceNone,
		Workers:          4,
	}
}
