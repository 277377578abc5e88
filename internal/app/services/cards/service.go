// Package cards handles the card commands: create, delete, update and move.
// Moves may cross lists; the source compaction, the destination shift and
// the reparent all commit in one ordering transaction.
package cards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kanbanlab/boardsync/internal/app/apperr"
	"github.com/kanbanlab/boardsync/internal/app/domain/card"
	"github.com/kanbanlab/boardsync/internal/app/ordering"
	"github.com/kanbanlab/boardsync/internal/app/snapshot"
	"github.com/kanbanlab/boardsync/internal/app/storage"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

const txAttempts = 3

// Service validates card commands, reconciles positions and persists the
// result atomically.
type Service struct {
	store     storage.OrderingStore
	snapshots storage.SnapshotStore
	log       *logger.Logger
}

// New constructs a card command service.
func New(store storage.OrderingStore, snapshots storage.SnapshotStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("cards")
	}
	return &Service{store: store, snapshots: snapshots, log: log}
}

// Create appends a new card at the end of the list.
func (s *Service) Create(ctx context.Context, listID, boardID, title string) (snapshot.Board, error) {
	listID = strings.TrimSpace(listID)
	title = strings.TrimSpace(title)

	if listID == "" {
		return nil, apperr.InvalidInput("list_id is required")
	}
	if title == "" {
		return nil, apperr.InvalidInput("card_title is required")
	}

	var created card.Card
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

		siblings, err := tx.CardsByList(ctx, listID)
		if err != nil {
			return err
		}
		pos, plan := ordering.InsertAt(cardItems(siblings), len(siblings)+1)
		if err := tx.ApplyCardPositions(ctx, plan); err != nil {
			return err
		}
		created = card.Card{
			ListID:   listID,
			Title:    title,
			Position: pos,
		}
		return tx.InsertCard(ctx, &created)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("card_id", created.ID).
		WithField("list_id", listID).
		WithField("position", created.Position).
		Info("card created")
	return s.boardSnapshot(ctx, boardID)
}

// Delete removes a card and compacts the positions of the cards behind it.
func (s *Service) Delete(ctx context.Context, cardID, boardID string) (snapshot.Board, error) {
	if strings.TrimSpace(cardID) == "" {
		return nil, apperr.InvalidInput("card_id is required")
	}

	err := s.runTx(ctx, func(tx storage.OrderingTx) error {
		c, err := s.cardOnBoard(ctx, tx, cardID, &boardID)
		if err != nil {
			return err
		}
		siblings, err := tx.CardsByList(ctx, c.ListID)
		if err != nil {
			return err
		}
		if err := tx.DeleteCard(ctx, cardID); err != nil {
			return err
		}
		return tx.ApplyCardPositions(ctx, ordering.RemoveAt(cardItems(siblings), c.Position))
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("card_id", cardID).WithField("board_id", boardID).Info("card deleted")
	return s.boardSnapshot(ctx, boardID)
}

// Update applies the allow-listed mutable fields from an updated_data
// payload. due_date accepts an RFC 3339 timestamp or null to clear.
func (s *Service) Update(ctx context.Context, cardID, boardID string, updated map[string]interface{}) (snapshot.Board, error) {
	if strings.TrimSpace(cardID) == "" {
		return nil, apperr.InvalidInput("card_id is required")
	}
	if len(updated) == 0 {
		return nil, apperr.InvalidInput("updated_data is required")
	}

	patch, err := patchFromPayload(updated)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(tx storage.OrderingTx) error {
		if _, err := s.cardOnBoard(ctx, tx, cardID, &boardID); err != nil {
			return err
		}
		return tx.UpdateCard(ctx, cardID, patch)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("card_id", cardID).Info("card updated")
	return s.boardSnapshot(ctx, boardID)
}

// Move places a card at a position in a list. When newListID names the
// card's current list the move is a plain reorder; otherwise the card leaves
// its source list, the source compacts, and the destination makes room, all
// in the same transaction. The destination list must live on the same board.
func (s *Service) Move(ctx context.Context, cardID, boardID, newListID string, newPosition int) (snapshot.Board, error) {
	if strings.TrimSpace(cardID) == "" {
		return nil, apperr.InvalidInput("card_id is required")
	}
	if strings.TrimSpace(newListID) == "" {
		return nil, apperr.InvalidInput("new_list_id is required")
	}

	err := s.runTx(ctx, func(tx storage.OrderingTx) error {
		c, err := s.cardOnBoard(ctx, tx, cardID, &boardID)
		if err != nil {
			return err
		}

		if c.ListID == newListID {
			siblings, err := tx.CardsByList(ctx, c.ListID)
			if err != nil {
				return err
			}
			plan, err := ordering.MoveWithinParent(cardItems(siblings), cardID, newPosition)
			if err != nil {
				return apperr.NotFound("card", cardID)
			}
			return tx.ApplyCardPositions(ctx, plan)
		}

		dst, err := tx.GetList(ctx, newListID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("list", newListID)
		}
		if err != nil {
			return err
		}
		if dst.BoardID != boardID {
			return apperr.InvalidInput("destination list belongs to another board")
		}

		src, err := tx.CardsByList(ctx, c.ListID)
		if err != nil {
			return err
		}
		dstCards, err := tx.CardsByList(ctx, newListID)
		if err != nil {
			return err
		}
		srcPlan, dstPlan, pos, err := ordering.MoveAcrossParents(cardItems(src), cardItems(dstCards), cardID, newPosition)
		if err != nil {
			return apperr.NotFound("card", cardID)
		}
		if err := tx.ReparentCard(ctx, cardID, newListID, pos); err != nil {
			return err
		}
		if err := tx.ApplyCardPositions(ctx, srcPlan); err != nil {
			return err
		}
		return tx.ApplyCardPositions(ctx, dstPlan)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("card_id", cardID).
		WithField("new_list_id", newListID).
		WithField("new_position", newPosition).
		Info("card moved")
	return s.boardSnapshot(ctx, boardID)
}

func (s *Service) runTx(ctx context.Context, fn func(tx storage.OrderingTx) error) error {
	err := storage.RunWithRetry(ctx, s.store, txAttempts, fn)
	if errors.Is(err, storage.ErrTxConflict) {
		return fmt.Errorf("card command: %w", apperr.ErrConflict)
	}
	return err
}

// cardOnBoard loads the card and checks it belongs to the named board. When
// boardID is empty it is filled in from the card's list.
func (s *Service) cardOnBoard(ctx context.Context, tx storage.OrderingTx, cardID string, boardID *string) (card.Card, error) {
	c, err := tx.GetCard(ctx, cardID)
	if errors.Is(err, storage.ErrNotFound) {
		return card.Card{}, apperr.NotFound("card", cardID)
	}
	if err != nil {
		return card.Card{}, err
	}
	l, err := tx.GetList(ctx, c.ListID)
	if err != nil {
		return card.Card{}, err
	}
	if *boardID != "" && l.BoardID != *boardID {
		return card.Card{}, apperr.InvalidInput("card does not belong to board " + *boardID)
	}
	*boardID = l.BoardID
	return c, nil
}

func (s *Service) boardSnapshot(ctx context.Context, boardID string) (snapshot.Board, error) {
	lists, cards, err := s.snapshots.OrderedBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("board snapshot: %w", err)
	}
	return snapshot.Build(lists, cards), nil
}

func patchFromPayload(updated map[string]interface{}) (storage.CardPatch, error) {
	var patch storage.CardPatch
	for field, raw := range updated {
		if _, ok := card.MutableFields[field]; !ok {
			return storage.CardPatch{}, apperr.InvalidInput("unknown card field " + field)
		}
		if field == "due_date" {
			patch.DueDateSet = true
			if raw == nil {
				continue
			}
			str, ok := raw.(string)
			if !ok {
				return storage.CardPatch{}, apperr.InvalidInput("due_date must be an RFC 3339 timestamp or null")
			}
			ts, err := time.Parse(time.RFC3339, str)
			if err != nil {
				return storage.CardPatch{}, apperr.InvalidInput("due_date must be an RFC 3339 timestamp or null")
			}
			patch.DueDate = &ts
			continue
		}

		value, ok := raw.(string)
		if !ok {
			return storage.CardPatch{}, apperr.InvalidInput(field + " must be a string")
		}
		v := value
		switch field {
		case "title":
			if strings.TrimSpace(v) == "" {
				return storage.CardPatch{}, apperr.InvalidInput("title cannot be empty")
			}
			patch.Title = &v
		case "description":
			patch.Description = &v
		case "label":
			patch.Label = &v
		case "attachment":
			patch.Attachment = &v
		}
	}
	return patch, nil
}

func cardItems(cs []card.Card) []ordering.Item {
	items := make([]ordering.Item, 0, len(cs))
	for _, c := range cs {
		items = append(items, ordering.Item{ID: c.ID, Position: c.Position})
	}
	return items
}
