package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var ErrInvalidLimit = errors.New("concurrency limit must be at least 1")

// Error wraps the first worker failure of a batch with the index of the
// input that failed.
type Error struct {
	Index int
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("worker failed for input %d: %v", e.Index, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Map runs fn over inputs with at most limit invocations in flight and
// returns results aligned to input order, regardless of completion order.
//
// The first worker error fails the whole batch as an *Error. Lanes stop
// claiming fresh inputs once a failure is recorded, but invocations already
// in flight run to completion and their results are discarded.
func Map[T, R any](ctx context.Context, inputs []T, limit int, fn func(ctx context.Context, in T) (R, error)) ([]R, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	results := make([]R, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	if limit > len(inputs) {
		limit = len(inputs)
	}

	var next atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)

	for range limit {
		eg.Go(func() error {
			for {
				if err := egCtx.Err(); err != nil {
					return err
				}

				idx := int(next.Add(1)) - 1
				if idx >= len(inputs) {
					return nil
				}

				res, err := fn(egCtx, inputs[idx])
				if err != nil {
					return &Error{Index: idx, Err: err}
				}

				// each lane owns a distinct slot, no locking needed
				results[idx] = res
			}
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
