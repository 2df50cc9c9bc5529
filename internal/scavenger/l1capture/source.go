package l1capture

import (
	"context"
	"fmt"

	"github.com/banshee-data/scavenger/internal/fsutil"
	"github.com/banshee-data/scavenger/internal/scavenger"
)

// Batch is one arrival unit of detection records, typically one file.
type Batch struct {
	Name    string
	Records []scavenger.DetectionRecord
}

// Source yields capture batches from files matching a glob pattern, in
// lexical file-name order. A Source is finite; restarting means building a
// new one.
type Source struct {
	FS      fsutil.FileSystem
	Pattern string
}

// NewSource creates a Source over the OS filesystem.
func NewSource(pattern string) *Source {
	return &Source{FS: fsutil.OSFileSystem{}, Pattern: pattern}
}

// Files lists the batch files the source will read.
func (s *Source) Files() ([]string, error) {
	files, err := s.FS.Glob(s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", s.Pattern, err)
	}
	return files, nil
}

// Each decodes every batch file in order and hands it to fn. Decoding stops
// at the first malformed batch, the first error returned by fn, or when ctx
// is cancelled.
func (s *Source) Each(ctx context.Context, fn func(Batch) error) error {
	files, err := s.Files()
	if err != nil {
		return err
	}
	diagf("reading %d capture files matching %s", len(files), s.Pattern)

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := s.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		records, err := DecodeBatch(data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		tracef("batch %s: %d records", name, len(records))
		if err := fn(Batch{Name: name, Records: records}); err != nil {
			return err
		}
	}
	return nil
}
