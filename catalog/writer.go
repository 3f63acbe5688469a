package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.yaml.in/yaml/v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriterSink writes mutations to w instead of delivering them. JSON output
// is the mutation itself; YAML output is one document per entity, the layout
// of a catalog-info.yaml file. Used for dry runs.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

// NewWriterSink defaults to JSON for any format other than yaml
func NewWriterSink(w io.Writer, format string) *WriterSink {
	if format != FormatYAML {
		format = FormatJSON
	}
	return &WriterSink{w: w, format: format}
}

// Apply writes m. Nothing is stored so every entity is reported unchanged.
func (s *WriterSink) Apply(_ context.Context, m Mutation) (ApplyStats, error) {
	if err := m.Validate(); err != nil {
		return ApplyStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case FormatYAML:
		enc := yaml.NewEncoder(s.w)
		enc.SetIndent(2)
		for i := range m.Entities {
			if err := enc.Encode(&m.Entities[i]); err != nil {
				return ApplyStats{}, fmt.Errorf("writing entity %v: %w", m.Entities[i].Metadata.Name, err)
			}
		}
		if err := enc.Close(); err != nil {
			return ApplyStats{}, err
		}
	default:
		enc := json.NewEncoder(s.w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m); err != nil {
			return ApplyStats{}, fmt.Errorf("writing mutation: %w", err)
		}
	}

	return ApplyStats{Unchanged: len(m.Entities)}, nil
}
