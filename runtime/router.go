package runtime

import (
	"care-chat/contract"
	"care-chat/domain"
	"care-chat/errors"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"
)

// ConnState is the lifecycle of one transport connection.
type ConnState int

const (
	Unauthenticated ConnState = iota
	Authenticating
	Joined
	Disconnected
)

func (s ConnState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Joined:
		return "joined"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

type RouterConfig struct {
	AuthTimeout time.Duration
	QueueSize   int
	Policy      OverflowPolicy
}

// Router drives every accepted connection: authenticate, bind, read frames, unbind.
type Router struct {
	registry *Registry
	chat     contract.IChatService
	verifier contract.IVerifier
	log      *slog.Logger
	cfg      RouterConfig
}

func NewRouter(registry *Registry, chat contract.IChatService, verifier contract.IVerifier,
	log *slog.Logger, cfg RouterConfig) *Router {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	return &Router{registry: registry, chat: chat, verifier: verifier, log: log, cfg: cfg}
}

// Serve owns conn until it returns. It returns the authentication error when the
// connection never joined, nil otherwise.
func (r *Router) Serve(ctx context.Context, credential string, conn contract.Conn) error {
	log := r.log.With("remote_addr", conn.RemoteAddr())
	state := Unauthenticated
	transition := func(next ConnState) {
		log.Debug("Connection state changed", "from", state, "to", next)
		state = next
	}

	transition(Authenticating)
	authCtx, cancel := context.WithTimeout(ctx, r.cfg.AuthTimeout)
	owner, err := r.verifier.Verify(authCtx, credential)
	cancel()
	if err != nil {
		log.Info("Authentication rejected", "error", err)
		if cErr := conn.Close(contract.CloseAuthFailed, authReason(err)); cErr != nil {
			log.Debug("Closing rejected connection failed", "error", cErr)
		}
		transition(Disconnected)
		return err
	}

	session := NewSession(owner, conn, r.cfg.QueueSize, r.cfg.Policy, r.log)
	log = log.With("participant_id", owner, "session_id", session.ID())
	r.registry.Bind(owner, session)
	transition(Joined)

	writerCtx, stopWriter := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		session.Run(writerCtx)
	}()
	go func() {
		select {
		case <-ctx.Done():
			session.Close(contract.CloseGoingAway, "server shutting down")
		case <-session.Done():
		}
	}()

	defer func() {
		r.registry.Unbind(owner, session)
		session.Close(contract.CloseNormal, "")
		stopWriter()
		<-writerDone
		log.Info("Session closed", "dropped_frames", session.Dropped())
		transition(Disconnected)
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			log.Debug("Connection read ended", "error", err)
			return nil
		}
		r.handle(ctx, log, session, frame)
	}
}

func (r *Router) handle(ctx context.Context, log *slog.Logger, session *Session, frame domain.InboundFrame) {
	if frame.Event != domain.EventSendMessage {
		log.Debug("Frame dropped", "event", frame.Event, "error", errors.ErrUnknownEvent)
		return
	}

	var req domain.SendMessageRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		log.Debug("Frame dropped", "event", frame.Event, "error", errors.Validation(err))
		return
	}

	msg, err := r.chat.Post(ctx, session.OwnerID(), session.ID(), req)
	if err != nil {
		log.Info("Message rejected", "error", err)
		if req.CorrelationID != "" {
			r.reply(log, session, domain.NackFrame(req.CorrelationID, nackReason(err)))
		}
		return
	}
	if req.CorrelationID != "" {
		r.reply(log, session, domain.AckFrame(req.CorrelationID, msg))
	}
}

func (r *Router) reply(log *slog.Logger, session *Session, frame domain.OutboundFrame) {
	if err := session.Deliver(frame); err != nil {
		log.Debug("Reply not delivered", "event", frame.Event, "error", err)
	}
}

// authReason is the close reason sent to a rejected client.
func authReason(err error) string {
	for _, reason := range []error{
		errors.ErrMissingToken,
		errors.ErrMalformedToken,
		errors.ErrExpiredToken,
		errors.ErrInvalidSignature,
		errors.ErrInvalidSubject,
		context.DeadlineExceeded,
	} {
		if stderrors.Is(err, reason) {
			if reason == context.DeadlineExceeded {
				return "authentication timeout"
			}
			return reason.Error()
		}
	}
	return errors.ErrAuth.Error()
}

// nackReason hides storage details from clients.
func nackReason(err error) string {
	if stderrors.Is(err, errors.ErrValidation) {
		return err.Error()
	}
	return errors.ErrStoreUnavailable.Error()
}
