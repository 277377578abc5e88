// Package boards manages board records and builds board snapshots.
package boards

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kanbanlab/boardsync/internal/app/apperr"
	"github.com/kanbanlab/boardsync/internal/app/domain/board"
	"github.com/kanbanlab/boardsync/internal/app/snapshot"
	"github.com/kanbanlab/boardsync/internal/app/storage"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

// Service manages boards and exposes the snapshot read path.
type Service struct {
	store     storage.BoardStore
	snapshots storage.SnapshotStore
	log       *logger.Logger
}

// New constructs a board service.
func New(store storage.BoardStore, snapshots storage.SnapshotStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("boards")
	}
	return &Service{store: store, snapshots: snapshots, log: log}
}

// Create registers a new board owned by the given user.
func (s *Service) Create(ctx context.Context, workspaceID, title, ownerID string) (board.Board, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	title = strings.TrimSpace(title)
	ownerID = strings.TrimSpace(ownerID)

	if workspaceID == "" {
		return board.Board{}, apperr.InvalidInput("workspace_id is required")
	}
	if title == "" {
		return board.Board{}, apperr.InvalidInput("title is required")
	}
	if ownerID == "" {
		return board.Board{}, apperr.InvalidInput("owner_id is required")
	}

	b, err := s.store.CreateBoard(ctx, board.Board{
		WorkspaceID: workspaceID,
		OwnerID:     ownerID,
		Title:       title,
	})
	if err != nil {
		return board.Board{}, fmt.Errorf("create board: %w", err)
	}
	s.log.WithField("board_id", b.ID).
		WithField("workspace_id", workspaceID).
		Info("board created")
	return b, nil
}

// Get returns one board.
func (s *Service) Get(ctx context.Context, boardID string) (board.Board, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if errors.Is(err, storage.ErrNotFound) {
		return board.Board{}, apperr.NotFound("board", boardID)
	}
	return b, err
}

// List returns the boards of a workspace, or all boards when workspaceID is
// empty.
func (s *Service) List(ctx context.Context, workspaceID string) ([]board.Board, error) {
	return s.store.ListBoards(ctx, workspaceID)
}

// Delete removes a board and everything on it. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, boardID, userID string) error {
	b, err := s.Get(ctx, boardID)
	if err != nil {
		return err
	}
	if b.OwnerID != userID {
		return apperr.PermissionDenied(userID, "delete board "+boardID)
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("board", boardID)
		}
		return fmt.Errorf("delete board: %w", err)
	}
	s.log.WithField("board_id", boardID).Info("board deleted")
	return nil
}

// Snapshot builds the full ordered view of a board: lists ascending by
// position, each with its cards ascending by position.
func (s *Service) Snapshot(ctx context.Context, boardID string) (snapshot.Board, error) {
	lists, cards, err := s.snapshots.OrderedBoard(ctx, boardID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("board", boardID)
	}
	if err != nil {
		return nil, fmt.Errorf("board snapshot: %w", err)
	}
	return snapshot.Build(lists, cards), nil
}
