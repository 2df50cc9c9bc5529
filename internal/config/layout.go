package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// layoutPoint accepts either [x, y] or {"x": .., "y": ..}.
type layoutPoint scavenger.Position

func (p *layoutPoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		return p.fromPair(pair)
	}
	var pos scavenger.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return fmt.Errorf("position must be [x, y] or {x, y}: %w", err)
	}
	*p = layoutPoint(pos)
	return nil
}

func (p *layoutPoint) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var pair []float64
		if err := node.Decode(&pair); err != nil {
			return err
		}
		return p.fromPair(pair)
	case yaml.MappingNode:
		var pos scavenger.Position
		if err := node.Decode(&pos); err != nil {
			return err
		}
		*p = layoutPoint(pos)
		return nil
	default:
		return fmt.Errorf("line %d: position must be [x, y] or {x, y}", node.Line)
	}
}

func (p *layoutPoint) fromPair(pair []float64) error {
	if len(pair) != 2 {
		return fmt.Errorf("position needs 2 coordinates, got %d", len(pair))
	}
	*p = layoutPoint{X: pair[0], Y: pair[1]}
	return nil
}

// LoadLayout reads a sniffer layout from a .json, .yaml or .yml file.
func LoadLayout(path string) (scavenger.Layout, error) {
	data, err := readConfigFile(path, ".json", ".yaml", ".yml")
	if err != nil {
		return nil, err
	}
	return ParseLayout(data, filepath.Ext(path))
}

// ParseLayout decodes layout data in the format named by ext.
func ParseLayout(data []byte, ext string) (scavenger.Layout, error) {
	raw := map[string]layoutPoint{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse layout JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse layout YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported layout format %q", ext)
	}

	layout := make(scavenger.Layout, len(raw))
	for id, p := range raw {
		layout[id] = scavenger.Position(p)
	}
	if err := ValidateLayout(layout); err != nil {
		return nil, err
	}
	return layout, nil
}

// ValidateLayout rejects empty layouts, blank ids and non-finite positions.
func ValidateLayout(layout scavenger.Layout) error {
	if len(layout) == 0 {
		return errors.New("layout has no sniffers")
	}
	ids := make([]string, 0, len(layout))
	for id := range layout {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		p := layout[id]
		if id == "" {
			errs = append(errs, errors.New("layout has a sniffer with an empty id"))
		}
		if !finite(p.X) || !finite(p.Y) {
			errs = append(errs, fmt.Errorf("sniffer %s: position (%v, %v) is not finite", id, p.X, p.Y))
		}
	}
	return errors.Join(errs...)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
