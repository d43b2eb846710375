package server

import (
	"care-chat/auth"
	"care-chat/contract"
	"care-chat/domain"
	"care-chat/errors"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/samber/lo"
)

// ConnectionServer serves an authenticated connection until it ends.
type ConnectionServer interface {
	Serve(ctx context.Context, credential string, conn contract.Conn) error
}

type SessionCounter interface {
	Count() int
}

type Options struct {
	AllowedOrigins []string
	ReadLimit      int64
}

// Server is the HTTP surface of the relay: the socket endpoint and the REST fallbacks.
type Server struct {
	connections ConnectionServer
	chat        contract.IChatService
	history     contract.IHistoryService
	verifier    contract.IVerifier
	sessions    SessionCounter
	log         *slog.Logger
	opts        Options
	upgrader    websocket.Upgrader
}

func NewServer(connections ConnectionServer, chat contract.IChatService, history contract.IHistoryService,
	verifier contract.IVerifier, sessions SessionCounter, log *slog.Logger, opts Options) *Server {
	return &Server{
		connections: connections,
		chat:        chat,
		history:     history,
		verifier:    verifier,
		sessions:    sessions,
		log:         log,
		opts:        opts,
		upgrader:    websocket.Upgrader{CheckOrigin: checkOrigin(opts.AllowedOrigins)},
	}
}

// Handler builds the routes, wrapped in CORS for browser clients.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(requestLogger(s.log))
	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleSocket).Methods(http.MethodGet)

	api := router.PathPrefix("/api/chat").Subrouter()
	api.Use(auth.RequireAuth(s.verifier, s.log))
	api.HandleFunc("/messages/{counterpartId}", s.handleThread).Methods(http.MethodGet)
	api.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
		AllowCredentials: true,
	})
	return c.Handler(router)
}

// checkOrigin accepts clients without an Origin header (native apps, CLI) and
// browsers whose origin is listed. "*" accepts everyone.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	allowAll := lo.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowAll || lo.Contains(allowed, origin)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("care-chat relay is running"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Count()})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	credential := auth.CredentialFromRequest(r)
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn := newWSConn(ws, s.opts.ReadLimit)
	_ = s.connections.Serve(r.Context(), credential, conn)
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.ParticipantFromContext(r.Context())
	messages, err := s.history.GetThread(r.Context(), requester, mux.Vars(r)["counterpartId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) domain.MessageView {
		return domain.ToView(m)
	}))
}

// sendBody accepts both the socket field names and the older REST ones.
type sendBody struct {
	Receiver     string `json:"receiver"`
	ReceiverID   string `json:"receiverId"`
	ReceiverType string `json:"receiverType"`
	Content      string `json:"content"`
	Message      string `json:"message"`
}

func (b sendBody) toRequest() domain.SendMessageRequest {
	return domain.SendMessageRequest{
		Receiver:     lo.CoalesceOrEmpty(b.Receiver, b.ReceiverID),
		ReceiverType: b.ReceiverType,
		Message:      lo.CoalesceOrEmpty(b.Content, b.Message),
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sender, _ := auth.ParticipantFromContext(r.Context())
	var body sendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Validation(err))
		return
	}
	msg, err := s.chat.Post(r.Context(), sender, "", body.toRequest())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.ToView(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports validation reasons to the client; anything else is generic.
func writeError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	message := "internal server error"
	if status == http.StatusBadRequest {
		message = strings.TrimPrefix(err.Error(), errors.ErrValidation.Error()+": ")
	}
	writeJSON(w, status, map[string]string{"error": message})
}
