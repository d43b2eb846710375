package runtime

import (
	"care-chat/contract"
	"care-chat/domain"
	"care-chat/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// OverflowPolicy decides what happens when a session's outbound queue is full.
type OverflowPolicy string

const (
	// OverflowDisconnect closes a slow consumer so it can reconnect and read history.
	OverflowDisconnect OverflowPolicy = "disconnect"
	// OverflowDropOldest discards the oldest queued frame to make room.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
)

func ParseOverflowPolicy(raw string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(raw); p {
	case OverflowDisconnect, OverflowDropOldest:
		return p, nil
	case "":
		return OverflowDisconnect, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", raw)
	}
}

// Session is an authenticated connection with a bounded outbound queue.
// Deliver only enqueues; a single writer goroutine (Run) owns all writes to the Conn.
type Session struct {
	id      string
	owner   domain.ParticipantID
	conn    contract.Conn
	queue   chan domain.OutboundFrame
	policy  OverflowPolicy
	log     *slog.Logger
	closed  chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func NewSession(owner domain.ParticipantID, conn contract.Conn, queueSize int,
	policy OverflowPolicy, log *slog.Logger) *Session {
	if queueSize < 1 {
		queueSize = 1
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		owner:  owner,
		conn:   conn,
		queue:  make(chan domain.OutboundFrame, queueSize),
		policy: policy,
		log:    log.With("session_id", id, "participant_id", owner),
		closed: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) OwnerID() domain.ParticipantID { return s.owner }

// Dropped returns how many frames the drop-oldest policy discarded.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) Deliver(frame domain.OutboundFrame) error {
	select {
	case <-s.closed:
		return errors.ErrSessionClosed
	default:
	}

	select {
	case s.queue <- frame:
		return nil
	default:
	}

	if s.policy == OverflowDropOldest {
		for {
			select {
			case <-s.queue:
				s.dropped.Add(1)
			default:
			}
			select {
			case s.queue <- frame:
				s.log.Debug("Outbound queue full, oldest frame dropped")
				return nil
			case <-s.closed:
				return errors.ErrSessionClosed
			default:
			}
		}
	}

	s.log.Warn("Outbound queue full, disconnecting slow consumer", "capacity", cap(s.queue))
	s.shutdown(contract.CloseSlowConsumer, "slow consumer", true)
	return errors.ErrQueueOverflow
}

// Run drains the queue into the connection until ctx is cancelled, the session is
// closed, or a write fails. Frames still queued at that point are discarded.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case frame := <-s.queue:
			if err := s.conn.WriteFrame(frame); err != nil {
				s.log.Debug("Write failed, closing session", "error", err)
				s.Close(contract.CloseGoingAway, "write failed")
				return
			}
		}
	}
}

// Close is idempotent and safe from any goroutine.
func (s *Session) Close(code contract.CloseCode, reason string) {
	s.shutdown(code, reason, false)
}

// shutdown marks the session closed at once. With detach the transport close runs
// in its own goroutine: it can wait on a writer stuck behind a peer that stopped
// reading, and Deliver runs on the sender's task.
func (s *Session) shutdown(code contract.CloseCode, reason string, detach bool) {
	s.once.Do(func() {
		close(s.closed)
		closeConn := func() {
			if err := s.conn.Close(code, reason); err != nil {
				s.log.Debug("Closing connection failed", "error", err)
			}
		}
		if detach {
			go closeConn()
			return
		}
		closeConn()
	})
}
