package l1capture

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/scavenger/internal/fsutil"
	"github.com/banshee-data/scavenger/internal/scavenger"
)

// Sink writes detection records as numbered batch files that a Source
// reads back in the same order.
type Sink struct {
	FS     fsutil.FileSystem
	Dir    string
	Prefix string
	// Size is the number of records per file; zero writes one file.
	Size int
}

// NewSink creates a Sink over the OS filesystem.
func NewSink(dir, prefix string, size int) *Sink {
	return &Sink{FS: fsutil.OSFileSystem{}, Dir: dir, Prefix: prefix, Size: size}
}

// Pattern is the glob a Source uses to read the sink's files.
func (s *Sink) Pattern() string {
	return filepath.Join(s.Dir, s.Prefix+"-*.json")
}

// Write splits records into batches and returns the file names written.
// Names are zero padded so lexical order is write order.
func (s *Sink) Write(records []scavenger.DetectionRecord) ([]string, error) {
	if s.Size < 0 {
		return nil, fmt.Errorf("batch size must not be negative, got %d", s.Size)
	}
	if err := s.FS.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", s.Dir, err)
	}

	size := s.Size
	if size == 0 || size > len(records) {
		size = len(records)
	}
	if size == 0 {
		size = 1 // no records: one empty batch
	}
	var names []string
	for start := 0; start == 0 || start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		var buf bytes.Buffer
		if err := EncodeBatch(&buf, records[start:end]); err != nil {
			return names, err
		}
		name := filepath.Join(s.Dir, fmt.Sprintf("%s-%06d.json", s.Prefix, len(names)))
		if err := s.FS.WriteFile(name, buf.Bytes(), 0o644); err != nil {
			return names, fmt.Errorf("write %s: %w", name, err)
		}
		tracef("wrote %s: %d records", name, end-start)
		names = append(names, name)
	}
	diagf("wrote %d records to %d batch files under %s", len(records), len(names), s.Dir)
	return names, nil
}
