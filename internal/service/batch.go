package service

import (
	"context"
	"errors"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/internal/repository"
)

// BatchMode selects how InsertBatch reacts to a failing row.
type BatchMode int

const (
	// BestEffort inserts rows one at a time. A failing row is recorded and
	// the rows before and after it are kept.
	BestEffort BatchMode = iota

	// Atomic inserts every row in one transaction. Any failing row rolls
	// back the whole batch.
	Atomic
)

func (m BatchMode) String() string {
	if m == Atomic {
		return "atomic"
	}
	return "best_effort"
}

// batchStore is the subset of TripStore the batch path needs.
type batchStore interface {
	InsertTrip(ctx context.Context, t *model.Trip) (bool, error)
	InTx(ctx context.Context, fn func(repository.TripInserter) error) error
}

// RowFailure is one failed row of a best-effort batch.
type RowFailure struct {
	Index int
	Trip  *model.Trip
	Err   error
}

// BatchResult is the outcome of InsertBatch.
type BatchResult struct {
	Inserted []*model.Trip
	// Skipped counts regular trips that already existed.
	Skipped  int
	Failures []RowFailure
}

// InsertBatch writes trips under the given mode.
//
// BestEffort never returns an error for a row; it returns an error only
// when ctx is done. Atomic returns *BatchAbortedError when any row fails,
// including a row skipped as a duplicate, and nothing is persisted.
func InsertBatch(ctx context.Context, store batchStore, trips []*model.Trip, mode BatchMode) (*BatchResult, error) {
	if mode == Atomic {
		return insertAtomic(ctx, store, trips)
	}

	res := &BatchResult{}
	for i, t := range trips {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		inserted, err := store.InsertTrip(ctx, t)
		switch {
		case err != nil:
			res.Failures = append(res.Failures, RowFailure{Index: i, Trip: t, Err: err})
		case !inserted:
			res.Skipped++
		default:
			res.Inserted = append(res.Inserted, t)
		}
	}
	return res, nil
}

func insertAtomic(ctx context.Context, store batchStore, trips []*model.Trip) (*BatchResult, error) {
	res := &BatchResult{}
	err := store.InTx(ctx, func(tx repository.TripInserter) error {
		for i, t := range trips {
			inserted, err := tx.InsertTrip(ctx, t)
			if err != nil {
				return &BatchAbortedError{Index: i, Err: err}
			}
			if !inserted {
				return &BatchAbortedError{Index: i, Err: ErrDuplicateTrip}
			}
			res.Inserted = append(res.Inserted, t)
		}
		return nil
	})
	if err != nil {
		var aborted *BatchAbortedError
		if !errors.As(err, &aborted) {
			err = &BatchAbortedError{Index: -1, Err: err}
		}
		return nil, err
	}
	return res, nil
}
