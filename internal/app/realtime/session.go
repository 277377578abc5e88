package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kanbanlab/boardsync/internal/app/metrics"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	// sendQueueSize bounds the per-session outbox. When it is full the
	// oldest queued snapshot is discarded; the newest always gets through.
	sendQueueSize = 16
)

// Session is one websocket connection attached to a board.
type Session struct {
	boardID string
	userID  string

	conn       *websocket.Conn
	hub        *Hub
	dispatcher *Dispatcher
	publisher  Publisher
	log        *logger.Logger

	send chan []byte
	done chan struct{}
}

// NewSession wraps an upgraded connection. Run must be called to start the
// pumps.
func NewSession(conn *websocket.Conn, boardID, userID string, hub *Hub, d *Dispatcher, pub Publisher, log *logger.Logger) *Session {
	if log == nil {
		log = logger.NewDefault("session")
	}
	if pub == nil {
		pub = hub
	}
	return &Session{
		boardID:    boardID,
		userID:     userID,
		conn:       conn,
		hub:        hub,
		dispatcher: d,
		publisher:  pub,
		log:        log.WithField("board_id", boardID),
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
	}
}

// Run subscribes the session and blocks until the connection closes.
func (s *Session) Run(ctx context.Context) {
	s.hub.subscribe(s)
	defer s.hub.unsubscribe(s)

	go s.writePump()
	s.readPump(ctx)
}

// enqueue hands a payload to the write pump without ever blocking. When the
// outbox is full the oldest entry is dropped to make room: subscribers that
// cannot keep up see fewer intermediate snapshots, not a stalled hub.
func (s *Session) enqueue(payload []byte) {
	if payload == nil {
		return
	}
	for {
		select {
		case <-s.done:
			return
		case s.send <- payload:
			return
		default:
		}
		select {
		case <-s.send:
			metrics.RecordDroppedSnapshot()
		default:
		}
	}
}

func (s *Session) readPump(ctx context.Context) {
	defer close(s.done)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("connection closed")
			}
			return
		}

		out := s.dispatcher.Dispatch(ctx, s.boardID, raw)
		if out.Reply != nil {
			s.enqueue(out.Reply)
		}
		if out.Broadcast != nil {
			if err := s.publisher.Publish(ctx, out.BoardID, out.Broadcast); err != nil {
				s.log.WithError(err).Error("broadcast failed")
			}
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
