package mirror

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/schemamirror/sfsync/internal/store"
)

// Counts tallies upsert outcomes for one record kind
type Counts struct {
	Inserted  int
	Updated   int
	Unchanged int
}

func (c *Counts) add(r store.UpsertResult) {
	switch r {
	case store.Inserted:
		c.Inserted++
	case store.Updated:
		c.Updated++
	default:
		c.Unchanged++
	}
}

// Total is the number of records observed
func (c Counts) Total() int {
	return c.Inserted + c.Updated + c.Unchanged
}

// Summary describes one sync cycle
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Fields           Counts
	ObjectsProcessed int
	FieldsStale      int64
	FieldsSkipped    bool

	FieldUsage        Counts
	FieldUsageSkipped bool

	FlowUsage    Counts
	FlowsParsed  int
	FlowErrors   *multierror.Error
	FlowsSkipped bool
}

// FlowsFailed is the number of flow files that could not be parsed
func (s *Summary) FlowsFailed() int {
	if s.FlowErrors == nil {
		return 0
	}
	return len(s.FlowErrors.Errors)
}
