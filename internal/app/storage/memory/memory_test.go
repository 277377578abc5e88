package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kanbanlab/boardsync/internal/app/domain/board"
	"github.com/kanbanlab/boardsync/internal/app/domain/card"
	"github.com/kanbanlab/boardsync/internal/app/domain/list"
	"github.com/kanbanlab/boardsync/internal/app/ordering"
	"github.com/kanbanlab/boardsync/internal/app/storage"
)

func seed(t *testing.T) (*Store, string, string) {
	t.Helper()
	ctx := context.Background()
	s := New()

	b, err := s.CreateBoard(ctx, board.Board{WorkspaceID: "ws", OwnerID: "u", Title: "b"})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	l := list.List{BoardID: b.ID, Title: "l", Position: 1}
	err = s.RunOrderingTx(ctx, func(tx storage.OrderingTx) error {
		return tx.InsertList(ctx, &l)
	})
	if err != nil {
		t.Fatalf("insert list: %v", err)
	}
	return s, b.ID, l.ID
}

func TestTxRollbackOnError(t *testing.T) {
	s, boardID, listID := seed(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunOrderingTx(ctx, func(tx storage.OrderingTx) error {
		c := card.Card{ListID: listID, Title: "doomed", Position: 1}
		if err := tx.InsertCard(ctx, &c); err != nil {
			return err
		}
		if err := tx.ApplyListPositions(ctx, ordering.Plan{{ID: listID, NewPosition: 9}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	lists, cards, err := s.OrderedBoard(ctx, boardID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if lists[0].Position != 1 {
		t.Fatalf("renumber not rolled back: %+v", lists[0])
	}
	if len(cards[listID]) != 0 {
		t.Fatalf("insert not rolled back: %+v", cards[listID])
	}
}

func TestDeleteListCascades(t *testing.T) {
	s, boardID, listID := seed(t)
	ctx := context.Background()

	err := s.RunOrderingTx(ctx, func(tx storage.OrderingTx) error {
		c := card.Card{ListID: listID, Title: "c", Position: 1}
		if err := tx.InsertCard(ctx, &c); err != nil {
			return err
		}
		return tx.DeleteList(ctx, listID)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	lists, _, err := s.OrderedBoard(ctx, boardID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(lists) != 0 {
		t.Fatalf("expected no lists, got %+v", lists)
	}
	s.mu.Lock()
	n := len(s.cards)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected cards cascade-deleted, %d left", n)
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	s, boardID, listID := seed(t)
	ctx := context.Background()

	err := s.RunOrderingTx(ctx, func(tx storage.OrderingTx) error {
		c := card.Card{ListID: listID, Title: "c", Position: 1}
		return tx.InsertCard(ctx, &c)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if err := s.DeleteBoard(ctx, boardID); err != nil {
		t.Fatalf("delete board: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lists) != 0 || len(s.cards) != 0 {
		t.Fatalf("cascade incomplete: %d lists, %d cards", len(s.lists), len(s.cards))
	}
}

func TestNotFoundErrors(t *testing.T) {
	s, _, _ := seed(t)
	ctx := context.Background()

	if _, err := s.GetBoard(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err := s.RunOrderingTx(ctx, func(tx storage.OrderingTx) error {
		_, err := tx.GetCard(ctx, "nope")
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = s.RunOrderingTx(ctx, func(tx storage.OrderingTx) error {
		return tx.ReparentCard(ctx, "nope", "also-nope", 1)
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
