// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kanbanlab/boardsync/internal/app/domain/board"
	"github.com/kanbanlab/boardsync/internal/app/domain/card"
	"github.com/kanbanlab/boardsync/internal/app/domain/list"
	"github.com/kanbanlab/boardsync/internal/app/ordering"
	"github.com/kanbanlab/boardsync/internal/app/storage"
)

// Store keeps boards, lists and cards in maps guarded by one mutex. Ordering
// transactions hold the mutex for their whole duration, so same-parent and
// cross-parent commands alike are fully serialized.
type Store struct {
	mu     sync.Mutex
	boards map[string]board.Board
	lists  map[string]list.List
	cards  map[string]card.Card
}

var _ storage.BoardStore = (*Store)(nil)
var _ storage.SnapshotStore = (*Store)(nil)
var _ storage.OrderingStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		boards: make(map[string]board.Board),
		lists:  make(map[string]list.List),
		cards:  make(map[string]card.Card),
	}
}

// BoardStore implementation ---------------------------------------------------

func (s *Store) CreateBoard(_ context.Context, b board.Board) (board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.boards[b.ID] = b
	return b, nil
}

func (s *Store) GetBoard(_ context.Context, id string) (board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[id]
	if !ok {
		return board.Board{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListBoards(_ context.Context, workspaceID string) ([]board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]board.Board, 0)
	for _, b := range s.boards {
		if workspaceID == "" || b.WorkspaceID == workspaceID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteBoard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.boards, id)
	for lid, l := range s.lists {
		if l.BoardID != id {
			continue
		}
		delete(s.lists, lid)
		for cid, c := range s.cards {
			if c.ListID == lid {
				delete(s.cards, cid)
			}
		}
	}
	return nil
}

// SnapshotStore implementation ------------------------------------------------

func (s *Store) OrderedBoard(_ context.Context, boardID string) ([]list.List, map[string][]card.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[boardID]; !ok {
		return nil, nil, storage.ErrNotFound
	}
	lists := s.listsOfLocked(boardID)
	cards := make(map[string][]card.Card, len(lists))
	for _, l := range lists {
		cards[l.ID] = s.cardsOfLocked(l.ID)
	}
	return lists, cards, nil
}

// OrderingStore implementation ------------------------------------------------

// RunOrderingTx serializes every command behind the store mutex and restores
// the pre-transaction state when fn fails, so no partial renumbering is ever
// observable.
func (s *Store) RunOrderingTx(ctx context.Context, fn func(tx storage.OrderingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listsBackup := make(map[string]list.List, len(s.lists))
	for k, v := range s.lists {
		listsBackup[k] = v
	}
	cardsBackup := make(map[string]card.Card, len(s.cards))
	for k, v := range s.cards {
		cardsBackup[k] = v
	}

	if err := fn(&memTx{store: s}); err != nil {
		s.lists = listsBackup
		s.cards = cardsBackup
		return err
	}
	return nil
}

func (s *Store) listsOfLocked(boardID string) []list.List {
	out := make([]list.List, 0)
	for _, l := range s.lists {
		if l.BoardID == boardID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *Store) cardsOfLocked(listID string) []card.Card {
	out := make([]card.Card, 0)
	for _, c := range s.cards {
		if c.ListID == listID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// memTx mutates the store maps directly; the caller already holds the mutex
// and rolls back on error.
type memTx struct {
	store *Store
}

var _ storage.OrderingTx = (*memTx)(nil)

func (t *memTx) ListsByBoard(_ context.Context, boardID string) ([]list.List, error) {
	if _, ok := t.store.boards[boardID]; !ok {
		return nil, storage.ErrNotFound
	}
	return t.store.listsOfLocked(boardID), nil
}

func (t *memTx) CardsByList(_ context.Context, listID string) ([]card.Card, error) {
	if _, ok := t.store.lists[listID]; !ok {
		return nil, storage.ErrNotFound
	}
	return t.store.cardsOfLocked(listID), nil
}

func (t *memTx) GetList(_ context.Context, id string) (list.List, error) {
	l, ok := t.store.lists[id]
	if !ok {
		return list.List{}, storage.ErrNotFound
	}
	return l, nil
}

func (t *memTx) GetCard(_ context.Context, id string) (card.Card, error) {
	c, ok := t.store.cards[id]
	if !ok {
		return card.Card{}, storage.ErrNotFound
	}
	return c, nil
}

func (t *memTx) InsertList(_ context.Context, l *list.List) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	t.store.lists[l.ID] = *l
	return nil
}

func (t *memTx) InsertCard(_ context.Context, c *card.Card) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	t.store.cards[c.ID] = *c
	return nil
}

func (t *memTx) UpdateList(_ context.Context, id string, patch storage.ListPatch) error {
	l, ok := t.store.lists[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.Title != nil {
		l.Title = *patch.Title
	}
	if patch.Description != nil {
		l.Description = *patch.Description
	}
	l.UpdatedAt = time.Now().UTC()
	t.store.lists[id] = l
	return nil
}

func (t *memTx) UpdateCard(_ context.Context, id string, patch storage.CardPatch) error {
	c, ok := t.store.cards[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.Label != nil {
		c.Label = *patch.Label
	}
	if patch.Attachment != nil {
		c.Attachment = *patch.Attachment
	}
	if patch.DueDateSet {
		c.DueDate = patch.DueDate
	}
	c.UpdatedAt = time.Now().UTC()
	t.store.cards[id] = c
	return nil
}

func (t *memTx) DeleteList(_ context.Context, id string) error {
	if _, ok := t.store.lists[id]; !ok {
		return storage.ErrNotFound
	}
	delete(t.store.lists, id)
	for cid, c := range t.store.cards {
		if c.ListID == id {
			delete(t.store.cards, cid)
		}
	}
	return nil
}

func (t *memTx) DeleteCard(_ context.Context, id string) error {
	if _, ok := t.store.cards[id]; !ok {
		return storage.ErrNotFound
	}
	delete(t.store.cards, id)
	return nil
}

func (t *memTx) ReparentCard(_ context.Context, cardID, newListID string, position int) error {
	c, ok := t.store.cards[cardID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := t.store.lists[newListID]; !ok {
		return storage.ErrNotFound
	}
	c.ListID = newListID
	c.Position = position
	c.UpdatedAt = time.Now().UTC()
	t.store.cards[cardID] = c
	return nil
}

func (t *memTx) ApplyListPositions(_ context.Context, plan ordering.Plan) error {
	for _, ch := range plan {
		l, ok := t.store.lists[ch.ID]
		if !ok {
			return storage.ErrNotFound
		}
		l.Position = ch.NewPosition
		t.store.lists[ch.ID] = l
	}
	return nil
}

func (t *memTx) ApplyCardPositions(_ context.Context, plan ordering.Plan) error {
	for _, ch := range plan {
		c, ok := t.store.cards[ch.ID]
		if !ok {
			return storage.ErrNotFound
		}
		c.Position = ch.NewPosition
		t.store.cards[ch.ID] = c
	}
	return nil
}
