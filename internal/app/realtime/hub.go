package realtime

import (
	"context"
	"sync"

	"github.com/kanbanlab/boardsync/internal/app/metrics"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

// Publisher fans a finished event out to every session subscribed to a
// board. The in-process Hub is the minimal implementation; the redis Bridge
// extends the fan-out across instances.
type Publisher interface {
	Publish(ctx context.Context, boardID string, payload []byte) error
}

// Hub tracks which sessions are subscribed to which board and delivers
// broadcasts to them. Delivery is non-blocking: a slow session loses
// superseded snapshots, never stalls the writer.
type Hub struct {
	mu     sync.RWMutex
	boards map[string]map[*Session]struct{}
	log    *logger.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub constructs an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("hub")
	}
	return &Hub{boards: make(map[string]map[*Session]struct{}), log: log}
}

func (h *Hub) subscribe(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.boards[s.boardID]
	if !ok {
		sessions = make(map[*Session]struct{})
		h.boards[s.boardID] = sessions
	}
	sessions[s] = struct{}{}
	metrics.SessionOpened()
}

func (h *Hub) unsubscribe(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.boards[s.boardID]
	if !ok {
		return
	}
	if _, member := sessions[s]; !member {
		return
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(h.boards, s.boardID)
	}
	metrics.SessionClosed()
}

// Publish delivers the payload to every session on the board.
func (h *Hub) Publish(_ context.Context, boardID string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.RecordBroadcast()
	for s := range h.boards[boardID] {
		s.enqueue(payload)
	}
	return nil
}

// Subscribers reports how many sessions are attached to a board.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[boardID])
}
