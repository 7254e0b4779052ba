// Package realtime pushes draft board events to websocket viewers.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/BreederHQ/server/internal/domain/draftboard"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

type boardKey struct {
	tenantID string
	boardID  string
}

type subscriber struct {
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans board events out to every connection watching that board.
// A viewer that falls behind by more than its buffer is disconnected.
type Hub struct {
	mu       sync.RWMutex
	boards   map[boardKey]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHub builds a hub. checkOrigin may be nil to accept same-origin requests only.
func NewHub(checkOrigin func(r *http.Request) bool, logger zerolog.Logger) *Hub {
	return &Hub{
		boards: make(map[boardKey]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

// Broadcast implements the job queue's BoardBroadcaster.
func (h *Hub) Broadcast(tenantID string, ev draftboard.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal board event")
		return
	}
	key := boardKey{tenantID: tenantID, boardID: ev.BoardID}

	h.mu.RLock()
	var slow []*subscriber
	for sub := range h.boards[key] {
		select {
		case sub.send <- payload:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn().Str("board_id", ev.BoardID).Msg("dropping slow board viewer")
		h.unsubscribe(key, sub)
	}
}

// Viewers reports how many connections watch a board.
func (h *Hub) Viewers(tenantID, boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[boardKey{tenantID: tenantID, boardID: boardID}])
}

// Serve upgrades the request and streams the board's events until the client
// goes away. initial, when non-nil, is sent first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, tenantID, boardID string, initial any) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	key := boardKey{tenantID: tenantID, boardID: boardID}
	sub := &subscriber{send: make(chan []byte, sendBuffer)}
	if initial != nil {
		if payload, err := json.Marshal(initial); err == nil {
			sub.send <- payload
		}
	}
	h.subscribe(key, sub)

	go h.writePump(conn, sub)
	h.readPump(conn)
	h.unsubscribe(key, sub)
	return nil
}

func (h *Hub) subscribe(key boardKey, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.boards[key]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.boards[key] = subs
	}
	subs[sub] = struct{}{}
}

func (h *Hub) unsubscribe(key boardKey, sub *subscriber) {
	h.mu.Lock()
	if subs, ok := h.boards[key]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.boards, key)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// readPump discards client frames; it exists to process pongs and notice disconnects.
func (h *Hub) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case payload, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
