// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/tabletop/internal/game"
	"github.com/jason-s-yu/tabletop/internal/middleware"
	"github.com/jason-s-yu/tabletop/internal/models"
	"github.com/jason-s-yu/tabletop/internal/session"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 15 * time.Second
)

// wsMessage is an action sent by a client over the session socket.
type wsMessage struct {
	Type       string         `json:"type"`
	PieceIndex *int           `json:"piece_index,omitempty"`
	Card       *models.Card   `json:"card,omitempty"`
	Demand     *models.Demand `json:"demand,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// stateMessage carries one subscriber's view of the session.
type stateMessage struct {
	Type    string             `json:"type"`
	Session models.SessionView `json:"session"`
}

type wsClient struct {
	playerID string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub fans session state out to websocket subscribers. It implements
// session.Broadcaster; each subscriber receives its own view.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*wsClient]struct{}
	logger   *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{sessions: make(map[string]map[*wsClient]struct{}), logger: logger}
}

// Broadcast queues the session's state for every subscriber. Slow subscribers
// miss the update rather than block the caller.
func (h *Hub) Broadcast(s *models.Session) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.sessions[s.ID]))
	for c := range h.sessions[s.ID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(s.ID, c, stateMessage{Type: "state", Session: s.ViewFor(c.playerID)})
	}
}

// Subscribers counts the sockets open on a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) subscribe(sessionID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*wsClient]struct{})
	}
	h.sessions[sessionID][c] = struct{}{}
}

func (h *Hub) unsubscribe(sessionID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions[sessionID], c)
	if len(h.sessions[sessionID]) == 0 {
		delete(h.sessions, sessionID)
	}
}

func (h *Hub) deliver(sessionID string, c *wsClient, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).WithField("session", sessionID).Error("failed to marshal websocket message")
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.WithFields(logrus.Fields{
			"session": sessionID,
			"player":  c.playerID,
		}).Warn("websocket send buffer full, dropping message")
	}
}

// writeLoop owns all writes to the connection until ctx ends or a write fails.
func (h *Hub) writeLoop(ctx context.Context, c *wsClient) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.WithError(err).WithField("player", c.playerID).Debug("websocket write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sessionWS upgrades a seated player's connection, sends the current view and
// then accepts actions over the socket until it closes.
func (s *Server) sessionWS(w http.ResponseWriter, r *http.Request, playerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	sess, err := s.lookupSeated(r.Context(), id, playerID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"game"},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.WithError(err).WithField("session", id).Warn("websocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "internal server error during handler exit")

	if c.Subprotocol() != "game" {
		c.Close(BadSubprotocolError, "client must use the 'game' subprotocol")
		return
	}
	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, r.URL.Path, playerID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := &wsClient{playerID: playerID, conn: c, send: make(chan []byte, sendBuffer)}
	s.hub.subscribe(id, client)
	defer s.hub.unsubscribe(id, client)
	go s.hub.writeLoop(ctx, client)

	s.hub.deliver(id, client, stateMessage{Type: "state", Session: sess.ViewFor(playerID)})
	if err := s.sessions.EnsureTimer(ctx, id); err != nil {
		s.logger.WithError(err).WithField("session", id).Warn("failed to ensure turn timer")
	}

	err = s.readSessionMessages(ctx, c, client, id)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, r.URL.Path, playerID, err)
	if errors.Is(err, session.ErrNotFound) {
		c.Close(SessionGoneError, "session is over")
		return
	}
	c.Close(websocket.StatusNormalClosure, "")
}

// lookupSeated loads a session and checks the player holds a seat in it.
func (s *Server) lookupSeated(ctx context.Context, id, playerID string) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Seat(playerID) == nil {
		return nil, game.NewIllegalTurnError(game.ReasonNotSeated, "player %s has no seat in session %s", playerID, id)
	}
	return sess, nil
}

// readSessionMessages reads client actions and routes them to the controller. Results
// reach every subscriber through the hub; the sender also gets an ack or an error.
// A nil return means the client went away normally.
func (s *Server) readSessionMessages(ctx context.Context, c *websocket.Conn, client *wsClient, id string) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.deliver(id, client, wsError(game.NewValidationError(game.ReasonMissingField, "invalid JSON: %v", err)))
			continue
		}

		sess, err := s.dispatch(ctx, id, client.playerID, msg)
		switch {
		case msg.Type == "ping":
			s.hub.deliver(id, client, map[string]string{"type": "pong"})
		case err != nil:
			s.hub.deliver(id, client, wsError(err))
			if errors.Is(err, session.ErrNotFound) {
				return err
			}
		default:
			s.hub.deliver(id, client, map[string]interface{}{
				"type":    "accepted",
				"action":  msg.Type,
				"version": sess.Version,
			})
		}
	}
}

func (s *Server) dispatch(ctx context.Context, id, playerID string, msg wsMessage) (*models.Session, error) {
	switch kind := models.ActionType(msg.Type); kind {
	case "ping":
		return nil, nil
	case "leave":
		reason := msg.Reason
		if reason == "" {
			reason = "left"
		}
		return s.sessions.Leave(ctx, session.LeaveSignal{SessionID: id, PlayerID: playerID, Reason: reason})
	case models.ActionRollDice, models.ActionDrawCard, models.ActionPlayCard, models.ActionMovePiece:
		a := models.GameAction{Type: kind, PlayerID: playerID, Card: msg.Card, Demand: msg.Demand}
		if kind == models.ActionMovePiece {
			if msg.PieceIndex == nil {
				return nil, game.NewValidationError(game.ReasonMissingField, "piece_index is required")
			}
			a.PieceIndex = *msg.PieceIndex
		}
		return s.sessions.Act(ctx, id, a)
	default:
		return nil, game.NewValidationError(game.ReasonUnknownAction, "unknown action type %q", msg.Type)
	}
}
