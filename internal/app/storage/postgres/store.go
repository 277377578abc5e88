// Package postgres implements the storage interfaces on PostgreSQL. Every
// ordering command runs inside a single transaction; children reads take
// SELECT ... FOR UPDATE row locks so two commands touching the same parent
// serialize on the database rather than in process.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kanbanlab/boardsync/internal/app/domain/board"
	"github.com/kanbanlab/boardsync/internal/app/domain/card"
	"github.com/kanbanlab/boardsync/internal/app/domain/list"
	"github.com/kanbanlab/boardsync/internal/app/ordering"
	"github.com/kanbanlab/boardsync/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.BoardStore = (*Store)(nil)
var _ storage.SnapshotStore = (*Store)(nil)
var _ storage.OrderingStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- BoardStore -------------------------------------------------------------

func (s *Store) CreateBoard(ctx context.Context, b board.Board) (board.Board, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boards (id, workspace_id, owner_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.WorkspaceID, b.OwnerID, b.Title, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return board.Board{}, fmt.Errorf("insert board: %w", err)
	}
	return b, nil
}

func (s *Store) GetBoard(ctx context.Context, id string) (board.Board, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, owner_id, title, created_at, updated_at
		FROM boards
		WHERE id = $1
	`, id)

	var b board.Board
	err := row.Scan(&b.ID, &b.WorkspaceID, &b.OwnerID, &b.Title, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Board{}, storage.ErrNotFound
	}
	if err != nil {
		return board.Board{}, fmt.Errorf("get board: %w", err)
	}
	return b, nil
}

func (s *Store) ListBoards(ctx context.Context, workspaceID string) ([]board.Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, owner_id, title, created_at, updated_at
		FROM boards
		WHERE ($1 = '' OR workspace_id = $1)
		ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	out := make([]board.Board, 0)
	for rows.Next() {
		var b board.Board
		if err := rows.Scan(&b.ID, &b.WorkspaceID, &b.OwnerID, &b.Title, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- SnapshotStore ----------------------------------------------------------

func (s *Store) OrderedBoard(ctx context.Context, boardID string) ([]list.List, map[string][]card.Card, error) {
	if _, err := s.GetBoard(ctx, boardID); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, title, description, position, created_by, created_at, updated_at
		FROM lists
		WHERE board_id = $1
		ORDER BY position
	`, boardID)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot lists: %w", err)
	}
	defer rows.Close()

	lists := make([]list.List, 0)
	for rows.Next() {
		var l list.List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Description, &l.Position, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	cardRows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.list_id, c.title, c.description, c.position, c.due_date, c.label, c.attachment, c.created_at, c.updated_at
		FROM cards c
		JOIN lists l ON l.id = c.list_id
		WHERE l.board_id = $1
		ORDER BY c.list_id, c.position
	`, boardID)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot cards: %w", err)
	}
	defer cardRows.Close()

	cards := make(map[string][]card.Card, len(lists))
	for _, l := range lists {
		cards[l.ID] = make([]card.Card, 0)
	}
	for cardRows.Next() {
		var c card.Card
		if err := scanCard(cardRows, &c); err != nil {
			return nil, nil, err
		}
		cards[c.ListID] = append(cards[c.ListID], c)
	}
	return lists, cards, cardRows.Err()
}

// --- OrderingStore ----------------------------------------------------------

func (s *Store) RunOrderingTx(ctx context.Context, fn func(tx storage.OrderingTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return mapTxErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapTxErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// mapTxErr converts serialization and deadlock failures into ErrTxConflict so
// handlers know the command is retryable.
func mapTxErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", storage.ErrTxConflict, err)
		}
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

var _ storage.OrderingTx = (*pgTx)(nil)

func (t *pgTx) ListsByBoard(ctx context.Context, boardID string) ([]list.List, error) {
	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM boards WHERE id = $1)`, boardID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check board: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, board_id, title, description, position, created_by, created_at, updated_at
		FROM lists
		WHERE board_id = $1
		ORDER BY position
		FOR UPDATE
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("lock lists: %w", err)
	}
	defer rows.Close()

	out := make([]list.List, 0)
	for rows.Next() {
		var l list.List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Description, &l.Position, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *pgTx) CardsByList(ctx context.Context, listID string) ([]card.Card, error) {
	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM lists WHERE id = $1)`, listID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check list: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, list_id, title, description, position, due_date, label, attachment, created_at, updated_at
		FROM cards
		WHERE list_id = $1
		ORDER BY position
		FOR UPDATE
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("lock cards: %w", err)
	}
	defer rows.Close()

	out := make([]card.Card, 0)
	for rows.Next() {
		var c card.Card
		if err := scanCard(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) GetList(ctx context.Context, id string) (list.List, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, board_id, title, description, position, created_by, created_at, updated_at
		FROM lists
		WHERE id = $1
	`, id)

	var l list.List
	err := row.Scan(&l.ID, &l.BoardID, &l.Title, &l.Description, &l.Position, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return list.List{}, storage.ErrNotFound
	}
	if err != nil {
		return list.List{}, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

func (t *pgTx) GetCard(ctx context.Context, id string) (card.Card, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, list_id, title, description, position, due_date, label, attachment, created_at, updated_at
		FROM cards
		WHERE id = $1
	`, id)

	var c card.Card
	err := scanCard(row, &c)
	if errors.Is(err, sql.ErrNoRows) {
		return card.Card{}, storage.ErrNotFound
	}
	if err != nil {
		return card.Card{}, err
	}
	return c, nil
}

func (t *pgTx) InsertList(ctx context.Context, l *list.List) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO lists (id, board_id, title, description, position, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, l.ID, l.BoardID, l.Title, l.Description, l.Position, l.CreatedBy, now, now)
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	return nil
}

func (t *pgTx) InsertCard(ctx context.Context, c *card.Card) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cards (id, list_id, title, description, position, due_date, label, attachment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.ListID, c.Title, c.Description, c.Position, c.DueDate, c.Label, c.Attachment, now, now)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateList(ctx context.Context, id string, patch storage.ListPatch) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE lists
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    updated_at = $4
		WHERE id = $1
	`, id, patch.Title, patch.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) UpdateCard(ctx context.Context, id string, patch storage.CardPatch) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cards
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    label = COALESCE($4, label),
		    attachment = COALESCE($5, attachment),
		    due_date = CASE WHEN $6 THEN $7 ELSE due_date END,
		    updated_at = $8
		WHERE id = $1
	`, id, patch.Title, patch.Description, patch.Label, patch.Attachment, patch.DueDateSet, patch.DueDate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteList(ctx context.Context, id string) error {
	// cards cascade via FK
	res, err := t.tx.ExecContext(ctx, `DELETE FROM lists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteCard(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) ReparentCard(ctx context.Context, cardID, newListID string, position int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cards SET list_id = $2, position = $3, updated_at = $4 WHERE id = $1
	`, cardID, newListID, position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reparent card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) ApplyListPositions(ctx context.Context, plan ordering.Plan) error {
	return t.applyPlan(ctx, `UPDATE lists SET position = $2, updated_at = $3 WHERE id = $1`, plan)
}

func (t *pgTx) ApplyCardPositions(ctx context.Context, plan ordering.Plan) error {
	return t.applyPlan(ctx, `UPDATE cards SET position = $2, updated_at = $3 WHERE id = $1`, plan)
}

func (t *pgTx) applyPlan(ctx context.Context, query string, plan ordering.Plan) error {
	if len(plan) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare renumber: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, ch := range plan {
		res, err := stmt.ExecContext(ctx, ch.ID, ch.NewPosition, now)
		if err != nil {
			return fmt.Errorf("apply position %s=%d: %w", ch.ID, ch.NewPosition, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrNotFound
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(row rowScanner, c *card.Card) error {
	var due sql.NullTime
	if err := row.Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &due, &c.Label, &c.Attachment, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scan card: %w", err)
	}
	if due.Valid {
		t := due.Time
		c.DueDate = &t
	}
	return nil
}
