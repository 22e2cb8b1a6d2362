// internal/handlers/api_server.go
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/tabletop/internal/game"
	"github.com/jason-s-yu/tabletop/internal/middleware"
	"github.com/jason-s-yu/tabletop/internal/models"
	"github.com/jason-s-yu/tabletop/internal/session"
)

// Authenticator resolves a bearer or cookie token to a player id.
type Authenticator interface {
	AuthenticateJWT(token string) (string, error)
}

// Sessions is the part of session.Controller the transport drives.
type Sessions interface {
	Start(ctx context.Context, sig session.StartSignal) (*models.Session, bool, error)
	Leave(ctx context.Context, sig session.LeaveSignal) (*models.Session, error)
	Act(ctx context.Context, id string, a models.GameAction) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Result(ctx context.Context, id string) (*models.ResultRecord, error)
	EnsureTimer(ctx context.Context, id string) error
}

// Server exposes the session lifecycle over HTTP and websockets.
type Server struct {
	sessions Sessions
	auth     Authenticator
	hub      *Hub
	logger   *logrus.Logger
}

func NewServer(sessions Sessions, auth Authenticator, hub *Hub, logger *logrus.Logger) *Server {
	return &Server{sessions: sessions, auth: auth, hub: hub, logger: logger}
}

// Routes builds the request router with request logging, panic recovery and CORS.
func (s *Server) Routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.withPlayer(s.startSession))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.withPlayer(s.getSession))
			r.Get("/result", s.withPlayer(s.getResult))
			r.Get("/ws", s.withPlayer(s.sessionWS))
			r.Post("/roll", s.withPlayer(s.action(models.ActionRollDice)))
			r.Post("/move", s.withPlayer(s.action(models.ActionMovePiece)))
			r.Post("/play", s.withPlayer(s.action(models.ActionPlayCard)))
			r.Post("/draw", s.withPlayer(s.action(models.ActionDrawCard)))
			r.Post("/leave", s.withPlayer(s.leave))
		})
	})
	return r
}

type playerHandler func(w http.ResponseWriter, r *http.Request, playerID string)

// withPlayer authenticates the caller and passes the player id along.
func (s *Server) withPlayer(h playerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Status: "unauthorized", Message: "missing auth token"})
			return
		}
		playerID, err := s.auth.AuthenticateJWT(token)
		if err != nil {
			s.logger.WithError(err).Debug("rejected auth token")
			writeJSON(w, http.StatusUnauthorized, errorBody{Status: "unauthorized", Message: "invalid auth token"})
			return
		}
		h(w, r, playerID)
	}
}

type startRequest struct {
	SessionID    string            `json:"session_id"`
	Ruleset      models.Ruleset    `json:"ruleset"`
	PlayerIDs    []string          `json:"player_ids"`
	DisplayNames map[string]string `json:"display_names"`
	MaxSeats     int               `json:"max_seats"`
}

// sessionResponse wraps the caller's view of a session.
type sessionResponse struct {
	Status  string             `json:"status"`
	Session models.SessionView `json:"session"`
}

// startSession handles the start signal. The caller is the host; a repeated signal
// for the same id answers 200 with the live session.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, playerID string) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	sess, created, err := s.sessions.Start(r.Context(), session.StartSignal{
		SessionID:    req.SessionID,
		Ruleset:      req.Ruleset,
		PlayerIDs:    req.PlayerIDs,
		HostID:       playerID,
		DisplayNames: req.DisplayNames,
		MaxSeats:     req.MaxSeats,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, sessionResponse{Status: "existing", Session: sess.ViewFor(playerID)})
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Status: "created", Session: sess.ViewFor(playerID)})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, playerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: "ok", Session: sess.ViewFor(playerID)})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request, _ string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	rec, err := s.sessions.Result(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// actionRequest is the body of the move and play endpoints.
type actionRequest struct {
	PieceIndex *int           `json:"piece_index"`
	Card       *models.Card   `json:"card"`
	Demand     *models.Demand `json:"demand"`
}

func (s *Server) action(kind models.ActionType) playerHandler {
	return func(w http.ResponseWriter, r *http.Request, playerID string) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		var req actionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, s.logger, err)
			return
		}
		a := models.GameAction{Type: kind, PlayerID: playerID, Card: req.Card, Demand: req.Demand}
		if kind == models.ActionMovePiece {
			if req.PieceIndex == nil {
				writeError(w, s.logger, game.NewValidationError(game.ReasonMissingField, "piece_index is required"))
				return
			}
			a.PieceIndex = *req.PieceIndex
		}
		sess, err := s.sessions.Act(r.Context(), id, a)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Status: "accepted", Session: sess.ViewFor(playerID)})
	}
}

type leaveRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) leave(w http.ResponseWriter, r *http.Request, playerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req leaveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "left"
	}
	sess, err := s.sessions.Leave(r.Context(), session.LeaveSignal{SessionID: id, PlayerID: playerID, Reason: req.Reason})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: "accepted", Session: sess.ViewFor(playerID)})
}
