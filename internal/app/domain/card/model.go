package card

import "time"

// Card is a task inside a list. Position is 1-based and dense within its
// owning list, mirroring the invariant on lists within a board.
type Card struct {
	ID          string     `json:"id"`
	ListID      string     `json:"list"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Position    int        `json:"position"`
	DueDate     *time.Time `json:"due_date"`
	Label       string     `json:"label"`
	Attachment  string     `json:"attachment"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MutableFields is the allow-list for update_card payloads.
var MutableFields = map[string]struct{}{
	"title":       {},
	"description": {},
	"due_date":    {},
	"label":       {},
	"attachment":  {},
}
