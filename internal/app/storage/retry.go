package storage

import (
	"context"
	"errors"
)

// RunWithRetry executes fn in an ordering transaction, retrying up to
// attempts times when the transaction loses a race (ErrTxConflict). fn must
// re-read everything it needs inside the transaction: each retry observes
// whatever the winning command committed.
func RunWithRetry(ctx context.Context, store OrderingStore, attempts int, fn func(tx OrderingTx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = store.RunOrderingTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrTxConflict) {
			return err
		}
	}
	return err
}
