package storage

import (
	"context"
	"errors"
	"testing"
)

// fakeStore fails the first n transactions with ErrTxConflict.
type fakeStore struct {
	conflicts int
	calls     int
}

func (s *fakeStore) RunOrderingTx(_ context.Context, fn func(tx OrderingTx) error) error {
	s.calls++
	if s.calls <= s.conflicts {
		return ErrTxConflict
	}
	return fn(nil)
}

func TestRunWithRetryRecoversFromConflict(t *testing.T) {
	store := &fakeStore{conflicts: 2}
	err := RunWithRetry(context.Background(), store, 3, func(OrderingTx) error { return nil })
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
}

func TestRunWithRetryGivesUp(t *testing.T) {
	store := &fakeStore{conflicts: 10}
	err := RunWithRetry(context.Background(), store, 3, func(OrderingTx) error { return nil })
	if !errors.Is(err, ErrTxConflict) {
		t.Fatalf("expected conflict after exhausted retries, got %v", err)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
}

func TestRunWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	store := &fakeStore{}
	boom := errors.New("boom")
	err := RunWithRetry(context.Background(), store, 3, func(OrderingTx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", store.calls)
	}
}
