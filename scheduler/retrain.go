package scheduler

import "context"

// Period selects which retraining hook fires.
type Period string

const (
	Daily  Period = "daily"
	Weekly Period = "weekly"
)

// Retrainer refreshes classification and embedding models. Training itself
// lives outside this module.
type Retrainer interface {
	Retrain(ctx context.Context, period Period) error
}

// NopRetrainer does nothing.
type NopRetrainer struct{}

// Retrain implements Retrainer.
func (NopRetrainer) Retrain(context.Context, Period) error { return nil }
