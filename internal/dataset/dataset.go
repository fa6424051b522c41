// Package dataset models the outbound sink for finished records. The run
// core only needs three things from it: pushing finished items, counting
// them, and describing the default dataset at first-ever initialization.
package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Info describes the run's default output dataset.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Describer is the read-only dataset-info collaborator, consulted once at
// first-ever run initialization (never on resume).
type Describer interface {
	Describe(ctx context.Context) (*Info, error)
}

// Sink receives finished records.
type Sink interface {
	Describer
	Push(ctx context.Context, item map[string]any) error
	Count(ctx context.Context) (int, error)
}

// ErrEmptyDataset marks a run that produced no output at all.
var ErrEmptyDataset = eris.New("dataset: run produced no items, nothing was uploaded")

// CheckForResults verifies the sink holds at least one item at run end.
// An empty dataset fails the run loudly; every other error path in the
// state layer is recoverable, this one is not.
func CheckForResults(ctx context.Context, sink Sink) error {
	n, err := sink.Count(ctx)
	if err != nil {
		return eris.Wrap(err, "dataset: count items")
	}
	if n == 0 {
		return ErrEmptyDataset
	}
	return nil
}
