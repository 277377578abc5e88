package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kanbanlab/boardsync/internal/app/domain/board"
	"github.com/kanbanlab/boardsync/internal/app/domain/card"
	"github.com/kanbanlab/boardsync/internal/app/domain/list"
	"github.com/kanbanlab/boardsync/internal/app/ordering"
)

// ErrNotFound is returned by stores when an entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrTxConflict is returned by RunOrderingTx when the transaction lost a race
// with a concurrent writer and should be retried with a fresh read.
var ErrTxConflict = errors.New("storage: transaction conflict")

// BoardStore persists boards.
type BoardStore interface {
	CreateBoard(ctx context.Context, b board.Board) (board.Board, error)
	GetBoard(ctx context.Context, id string) (board.Board, error)
	ListBoards(ctx context.Context, workspaceID string) ([]board.Board, error)
	DeleteBoard(ctx context.Context, id string) error
}

// SnapshotStore reads the full ordered materialization of one board: its
// lists ascending by position, each list's cards ascending by position.
type SnapshotStore interface {
	OrderedBoard(ctx context.Context, boardID string) ([]list.List, map[string][]card.Card, error)
}

// OrderingStore opens per-command transactions over lists and cards. The
// transaction is the unit of mutual exclusion: reads within it observe a
// state no concurrent command can renumber underneath, and either every
// position write in fn is applied or none is.
type OrderingStore interface {
	RunOrderingTx(ctx context.Context, fn func(tx OrderingTx) error) error
}

// ListPatch carries the mutable list fields; nil means leave unchanged.
type ListPatch struct {
	Title       *string
	Description *string
}

// CardPatch carries the mutable card fields; nil means leave unchanged.
// DueDateSet distinguishes "clear the due date" (set, nil) from "leave it".
type CardPatch struct {
	Title       *string
	Description *string
	Label       *string
	Attachment  *string
	DueDate     *time.Time
	DueDateSet  bool
}

// OrderingTx is the mutation surface available inside one command
// transaction. Children reads return entities ordered by position ascending
// and hold whatever lock the backend needs to serialize same-parent writers.
type OrderingTx interface {
	ListsByBoard(ctx context.Context, boardID string) ([]list.List, error)
	CardsByList(ctx context.Context, listID string) ([]card.Card, error)

	GetList(ctx context.Context, id string) (list.List, error)
	GetCard(ctx context.Context, id string) (card.Card, error)

	// Inserts assign the ID and timestamps on the passed entity.
	InsertList(ctx context.Context, l *list.List) error
	InsertCard(ctx context.Context, c *card.Card) error

	UpdateList(ctx context.Context, id string, patch ListPatch) error
	UpdateCard(ctx context.Context, id string, patch CardPatch) error

	// DeleteList removes the list and all of its cards.
	DeleteList(ctx context.Context, id string) error
	DeleteCard(ctx context.Context, id string) error

	// ReparentCard moves a card to another list at the given position. The
	// caller still renumbers both lists' remaining cards via plans.
	ReparentCard(ctx context.Context, cardID, newListID string, position int) error

	ApplyListPositions(ctx context.Context, plan ordering.Plan) error
	ApplyCardPositions(ctx context.Context, plan ordering.Plan) error
}
