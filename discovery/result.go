package discovery

import (
	"time"

	"github.com/google/uuid"
	"github.com/healthfees-org/cloudflare-backstage.io/catalog"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// State is the lifecycle of a discovery run
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunResult is everything one run discovered. It is replaced wholesale by the
// next run.
type RunResult struct {
	RunID uuid.UUID
	// Entities are in kind declaration order, then provider response order
	Entities []catalog.Entity
	// Counts maps kind to entity count in declaration order
	Counts *orderedmap.OrderedMap[cloudflare.Kind, int]
	// Skipped counts items that were left out of Entities
	Skipped   int
	StartedAt time.Time
	Duration  time.Duration
	// Stats is what the catalog reported for the mutation, if anything
	Stats catalog.ApplyStats
}

// Total is the number of entities discovered
func (r *RunResult) Total() int {
	return len(r.Entities)
}

// LogFields renders Counts and the total for logging
func (r *RunResult) LogFields() map[string]any {
	fields := make(map[string]any, r.Counts.Len()+1)
	for pair := r.Counts.Oldest(); pair != nil; pair = pair.Next() {
		fields["count."+string(pair.Key)] = pair.Value
	}
	fields["total"] = r.Total()
	return fields
}
