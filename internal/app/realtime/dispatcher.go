package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kanbanlab/boardsync/internal/app/apperr"
	"github.com/kanbanlab/boardsync/internal/app/metrics"
	"github.com/kanbanlab/boardsync/internal/app/services/cards"
	"github.com/kanbanlab/boardsync/internal/app/services/lists"
	"github.com/kanbanlab/boardsync/internal/app/snapshot"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

// Outcome is what one command produced. Broadcast, when set, goes to every
// session on BoardID; Reply, when set, goes only to the originating session.
// A zero Outcome means the message was dropped.
type Outcome struct {
	BoardID   string
	Broadcast []byte
	Reply     []byte
}

// Dispatcher routes inbound commands to the list and card services. It never
// talks to sessions directly: callers deliver the Outcome.
type Dispatcher struct {
	lists *lists.Service
	cards *cards.Service
	log   *logger.Logger
}

// NewDispatcher constructs a dispatcher over the two command services.
func NewDispatcher(listSvc *lists.Service, cardSvc *cards.Service, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("dispatcher")
	}
	return &Dispatcher{lists: listSvc, cards: cardSvc, log: log}
}

// Dispatch handles one raw client message. boardID is the board the session
// is attached to; commands that do not name a board inherit it.
func (d *Dispatcher) Dispatch(ctx context.Context, boardID string, raw []byte) Outcome {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.log.WithError(err).Warn("malformed message")
		return Outcome{Reply: encodeError("malformed message")}
	}
	if cmd.Action == "" {
		d.log.Warn("message without action")
		return Outcome{}
	}
	if cmd.BoardID == "" {
		cmd.BoardID = boardID
	}

	start := time.Now()
	event, snap, err := d.route(ctx, &cmd)
	if err != nil {
		metrics.RecordCommand(cmd.Action, errStatus(err), time.Since(start))
		d.log.WithError(err).
			WithField("action", cmd.Action).
			WithField("board_id", cmd.BoardID).
			Warn("command failed")
		return Outcome{Reply: encodeError(err.Error())}
	}
	if event == "" {
		// unknown action: log and drop, nothing goes back
		metrics.RecordCommand(cmd.Action, "unknown", time.Since(start))
		d.log.WithField("action", cmd.Action).Warn("unknown action")
		return Outcome{}
	}
	metrics.RecordCommand(cmd.Action, "ok", time.Since(start))
	return Outcome{BoardID: cmd.BoardID, Broadcast: encodeEvent(event, snap)}
}

func (d *Dispatcher) route(ctx context.Context, cmd *Command) (string, snapshot.Board, error) {
	switch cmd.Action {
	case ActionCreateList:
		snap, err := d.lists.Create(ctx, cmd.BoardID, cmd.ListName, cmd.UserID)
		return EventListCreated, snap, err
	case ActionDeleteList:
		snap, err := d.lists.Delete(ctx, cmd.ListID, cmd.BoardID, cmd.UserID)
		return EventListDeleted, snap, err
	case ActionUpdateList:
		snap, err := d.lists.Update(ctx, cmd.ListID, cmd.BoardID, cmd.UserID, cmd.Updated)
		return EventListUpdated, snap, err
	case ActionMoveList:
		snap, err := d.lists.Move(ctx, cmd.MovedListID, cmd.NewPosition)
		return EventListMoved, snap, err
	case ActionCreateCard:
		snap, err := d.cards.Create(ctx, cmd.ListID, cmd.BoardID, cmd.CardTitle)
		return EventCardCreated, snap, err
	case ActionDeleteCard:
		snap, err := d.cards.Delete(ctx, cmd.CardID, cmd.BoardID)
		return EventCardDeleted, snap, err
	case ActionUpdateCard:
		snap, err := d.cards.Update(ctx, cmd.CardID, cmd.BoardID, cmd.Updated)
		return EventCardUpdated, snap, err
	case ActionMoveCard:
		snap, err := d.cards.Move(ctx, cmd.CardID, cmd.BoardID, cmd.NewListID, cmd.NewCardPosition)
		return EventCardMoved, snap, err
	default:
		return "", nil, nil
	}
}

func errStatus(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, apperr.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
