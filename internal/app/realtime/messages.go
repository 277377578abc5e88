package realtime

import (
	"encoding/json"

	"github.com/kanbanlab/boardsync/internal/app/snapshot"
)

// Inbound command actions.
const (
	ActionCreateList = "create_list"
	ActionDeleteList = "delete_list"
	ActionUpdateList = "update_list"
	ActionMoveList   = "list_moved"
	ActionCreateCard = "create_card"
	ActionDeleteCard = "delete_card"
	ActionUpdateCard = "update_card"
	ActionMoveCard   = "move_card"
)

// Outbound event names. The list move reuses its action name as the event.
const (
	EventListCreated = "list_created"
	EventListDeleted = "list_deleted"
	EventListUpdated = "list_updated"
	EventListMoved   = "list_moved"
	EventCardCreated = "card_created"
	EventCardDeleted = "card_deleted"
	EventCardUpdated = "card_updated"
	EventCardMoved   = "card_moved"
)

// Command is the inbound client message. Every message is self-contained;
// nothing is remembered between messages. The list move uses camelCase field
// names, everything else snake_case, which is what existing clients send.
type Command struct {
	Action string `json:"action"`

	BoardID  string                 `json:"board_id,omitempty"`
	UserID   string                 `json:"user_id,omitempty"`
	ListID   string                 `json:"list_id,omitempty"`
	ListName string                 `json:"list_name,omitempty"`
	Updated  map[string]interface{} `json:"updated_data,omitempty"`

	MovedListID string `json:"listId,omitempty"`
	NewPosition int    `json:"newPosition,omitempty"`

	CardID          string `json:"card_id,omitempty"`
	CardTitle       string `json:"card_title,omitempty"`
	NewListID       string `json:"new_list_id,omitempty"`
	NewCardPosition int    `json:"new_position,omitempty"`
}

// Event is the outbound success message: the event name plus the full board
// snapshot, delivered to every session subscribed to the board.
type Event struct {
	Action string         `json:"action"`
	List   snapshot.Board `json:"list"`
}

// ErrorMessage goes only to the session whose command failed.
type ErrorMessage struct {
	Error string `json:"error"`
}

func encodeEvent(action string, snap snapshot.Board) []byte {
	b, err := json.Marshal(Event{Action: action, List: snap})
	if err != nil {
		return nil
	}
	return b
}

func encodeError(msg string) []byte {
	b, err := json.Marshal(ErrorMessage{Error: msg})
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return b
}
