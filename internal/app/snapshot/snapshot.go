// Package snapshot materializes the full ordered view of a board that is
// sent to clients after every successful command. The realtime and REST
// surfaces share this shape so both views stay structurally identical.
package snapshot

import (
	"github.com/kanbanlab/boardsync/internal/app/domain/card"
	"github.com/kanbanlab/boardsync/internal/app/domain/list"
)

// List is one board column with its cards in position order.
type List struct {
	list.List
	Cards []card.Card `json:"cards"`
}

// Board is the ordered sequence of a board's lists.
type Board []List

// Build assembles a Board from position-ordered lists and their cards.
func Build(lists []list.List, cards map[string][]card.Card) Board {
	out := make(Board, 0, len(lists))
	for _, l := range lists {
		cs := cards[l.ID]
		if cs == nil {
			cs = make([]card.Card, 0)
		}
		out = append(out, List{List: l, Cards: cs})
	}
	return out
}
