package metrics

import (
	"context"
	"time"
)

// Recorder is satisfied by every recorder in this package.
type Recorder interface {
	RecordRun(ctx context.Context, counts map[string]int, duration time.Duration, failed bool)
}

// Multi fans a run out to every non-nil recorder.
type Multi []Recorder

// NewMulti drops nil recorders.
func NewMulti(recorders ...Recorder) Multi {
	var m Multi
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m Multi) RecordRun(ctx context.Context, counts map[string]int, duration time.Duration, failed bool) {
	for _, r := range m {
		r.RecordRun(ctx, counts, duration, failed)
	}
}
