// Package source loads raw GPS points from the supported inputs: the flat
// dataset CSV, a directory of GPX files, or the Strava API.
package source

import (
	"context"
	"fmt"

	"trailmetrics/internal/store"
)

// Source produces the raw points of a batch
type Source interface {
	// Name identifies the input, e.g. "csv:data/dataset.csv"
	Name() string
	Load(ctx context.Context) (*Batch, error)
}

// Batch is the output of a Source. Points keep the order the source
// delivered them in; grouping and sorting happen in the engine.
type Batch struct {
	Points  []store.RawPoint
	Skipped []Skip
}

// Skip describes input that could not be read and was left out
type Skip struct {
	Ref  string // file name, activity id, ...
	Line int    // 1-based line, 0 when not applicable
	Err  error
}

func (s Skip) Error() string {
	if s.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", s.Ref, s.Line, s.Err)
	}
	return fmt.Sprintf("%s: %v", s.Ref, s.Err)
}
