package list

import "time"

// List is a board column. Position is 1-based and dense within its board:
// the positions of a board's lists are always exactly {1..n}.
type List struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"board"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MutableFields is the allow-list for update_list payloads. Anything else in
// an updated_data object is rejected before the store is touched.
var MutableFields = map[string]struct{}{
	"title":       {},
	"description": {},
}
