// Package lists handles the structural list commands: create, delete,
// update and move. Every command is one ordering transaction followed by a
// fresh board snapshot; the transport layer decides where the snapshot goes.
package lists

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kanbanlab/boardsync/internal/app/apperr"
	"github.com/kanbanlab/boardsync/internal/app/domain/list"
	"github.com/kanbanlab/boardsync/internal/app/ordering"
	"github.com/kanbanlab/boardsync/internal/app/snapshot"
	"github.com/kanbanlab/boardsync/internal/app/storage"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

// txAttempts bounds the read-reconcile-write retries on a lost race.
const txAttempts = 3

// Service validates list commands, reconciles positions and persists the
// result atomically.
type Service struct {
	boards    storage.BoardStore
	store     storage.OrderingStore
	snapshots storage.SnapshotStore
	log       *logger.Logger
}

// New constructs a list command service.
func New(boards storage.BoardStore, store storage.OrderingStore, snapshots storage.SnapshotStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("lists")
	}
	return &Service{boards: boards, store: store, snapshots: snapshots, log: log}
}

// Create appends a new list at the end of the board.
func (s *Service) Create(ctx context.Context, boardID, title, userID string) (snapshot.Board, error) {
	boardID = strings.TrimSpace(boardID)
	title = strings.TrimSpace(title)

	if boardID == "" {
		return nil, apperr.InvalidInput("board_id is required")
	}
	if title == "" {
		return nil, apperr.InvalidInput("list_name is required")
	}
	if _, err := s.boards.GetBoard(ctx, boardID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("board", boardID)
		}
		return nil, err
	}

	var created list.List
	err := s.runTx(ctx, func(tx storage.OrderingTx) error {
		siblings, err := tx.ListsByBoard(ctx, boardID)
		if err != nil {
			return err
		}
		pos, plan := ordering.InsertAt(listItems(siblings), len(siblings)+1)
		if err := tx.ApplyListPositions(ctx, plan); err != nil {
			return err
		}
		created = list.List{
			BoardID:   boardID,
			Title:     title,
			Position:  pos,
			CreatedBy: userID,
		}
		return tx.InsertList(ctx, &created)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("board_id", boardID).
		WithField("list_id", created.ID).
		WithField("position", created.Position).
		Info("list created")
	return s.boardSnapshot(ctx, boardID)
}

// Delete removes a list and its cards and compacts sibling positions. Only
// the board owner may delete.
func (s *Service) Delete(ctx context.Context, listID, boardID, userID string) (snapshot.Board, error) {
	if strings.TrimSpace(listID) == "" {
		return nil, apperr.InvalidInput("list_id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.InvalidInput("user_id is required")
	}

	err := s.runTx(ctx, func(tx storage.OrderingTx) error {
		l, err := tx.GetList(ctx, listID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("list", listID)
		}
		if err != nil {
			return err
		}
		if boardID != "" && l.BoardID != boardID {
			return apperr.InvalidInput("list does not belong to board " + boardID)
		}
		boardID = l.BoardID

		if err := s.requireOwner(ctx, l.BoardID, userID, "delete list "+listID); err != nil {
			return err
		}

		siblings, err := tx.ListsByBoard(ctx, l.BoardID)
		if err != nil {
			return err
		}
		if err := tx.DeleteList(ctx, listID); err != nil {
			return err
		}
		return tx.ApplyListPositions(ctx, ordering.RemoveAt(listItems(siblings), l.Position))
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("list_id", listID).WithField("board_id", boardID).Info("list deleted")
	return s.boardSnapshot(ctx, boardID)
}

// Update applies the allow-listed mutable fields from an updated_data
// payload. Unknown fields are rejected before the store is touched. Only the
// board owner may update.
func (s *Service) Update(ctx context.Context, listID, boardID, userID string, updated map[string]interface{}) (snapshot.Board, error) {
	if strings.TrimSpace(listID) == "" {
		return nil, apperr.InvalidInput("list_id is required")
	}
	if len(updated) == 0 {
		return nil, apperr.InvalidInput("updated_data is required")
	}

	patch, err := patchFromPayload(updated)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(tx storage.OrderingTx) error {
		l, err := tx.GetList(ctx, listID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("list", listID)
		}
		if err != nil {
			return err
		}
		if boardID != "" && l.BoardID != boardID {
			return apperr.InvalidInput("list does not belong to board " + boardID)
		}
		boardID = l.BoardID

		if err := s.requireOwner(ctx, l.BoardID, userID, "update list "+listID); err != nil {
			return err
		}
		return tx.UpdateList(ctx, listID, patch)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("list_id", listID).Info("list updated")
	return s.boardSnapshot(ctx, boardID)
}

// Move reorders a list within its board. Out-of-range targets are clamped,
// and moving a list onto its current position is a no-op.
func (s *Service) Move(ctx context.Context, listID string, newPosition int) (snapshot.Board, error) {
	if strings.TrimSpace(listID) == "" {
		return nil, apperr.InvalidInput("listId is required")
	}

	var boardID string
	err := s.runTx(ctx, func(tx storage.OrderingTx) error {
		l, err := tx.GetList(ctx, listID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("list", listID)
		}
		if err != nil {
			return err
		}
		boardID = l.BoardID

		siblings, err := tx.ListsByBoard(ctx, l.BoardID)
		if err != nil {
			return err
		}
		plan, err := ordering.MoveWithinParent(listItems(siblings), listID, newPosition)
		if err != nil {
			return apperr.NotFound("list", listID)
		}
		return tx.ApplyListPositions(ctx, plan)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("list_id", listID).
		WithField("new_position", newPosition).
		Info("list moved")
	return s.boardSnapshot(ctx, boardID)
}

func (s *Service) runTx(ctx context.Context, fn func(tx storage.OrderingTx) error) error {
	err := storage.RunWithRetry(ctx, s.store, txAttempts, fn)
	if errors.Is(err, storage.ErrTxConflict) {
		return fmt.Errorf("list command: %w", apperr.ErrConflict)
	}
	return err
}

func (s *Service) requireOwner(ctx context.Context, boardID, userID, action string) error {
	b, err := s.boards.GetBoard(ctx, boardID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("board", boardID)
	}
	if err != nil {
		return err
	}
	if b.OwnerID != userID {
		return apperr.PermissionDenied(userID, action)
	}
	return nil
}

func (s *Service) boardSnapshot(ctx context.Context, boardID string) (snapshot.Board, error) {
	lists, cards, err := s.snapshots.OrderedBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("board snapshot: %w", err)
	}
	return snapshot.Build(lists, cards), nil
}

func patchFromPayload(updated map[string]interface{}) (storage.ListPatch, error) {
	var patch storage.ListPatch
	for field, raw := range updated {
		if _, ok := list.MutableFields[field]; !ok {
			return storage.ListPatch{}, apperr.InvalidInput("unknown list field " + field)
		}
		value, ok := raw.(string)
		if !ok {
			return storage.ListPatch{}, apperr.InvalidInput(field + " must be a string")
		}
		switch field {
		case "title":
			if strings.TrimSpace(value) == "" {
				return storage.ListPatch{}, apperr.InvalidInput("title cannot be empty")
			}
			v := value
			patch.Title = &v
		case "description":
			v := value
			patch.Description = &v
		}
	}
	return patch, nil
}

func listItems(ls []list.List) []ordering.Item {
	items := make([]ordering.Item, 0, len(ls))
	for _, l := range ls {
		items = append(items, ordering.Item{ID: l.ID, Position: l.Position})
	}
	return items
}
