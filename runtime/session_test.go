package runtime

import (
	"care-chat/contract"
	"care-chat/domain"
	"care-chat/errors"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func frame(i int) domain.OutboundFrame {
	return domain.OutboundFrame{Event: domain.EventReceiveMessage, Data: fmt.Sprintf("m%d", i)}
}

func TestSession_Run_Writes_In_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	conn := newFakeConn()
	session := NewSession(alice, conn, 8, OverflowDisconnect, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	// When three frames are delivered
	for i := 0; i < 3; i++ {
		req.NoError(session.Deliver(frame(i)))
	}

	// Then they are written in delivery order
	for i := 0; i < 3; i++ {
		select {
		case f := <-conn.writes:
			req.Equal(frame(i), f)
		case <-time.After(time.Second):
			req.FailNow("frame not written")
		}
	}
}

func TestSession_Overflow_Disconnects_Slow_Consumer(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	conn := newFakeConn()
	session := NewSession(alice, conn, 2, OverflowDisconnect, log)

	// Given a writer that is not running, so the queue never drains
	req.NoError(session.Deliver(frame(0)))
	req.NoError(session.Deliver(frame(1)))

	// When one more frame is delivered
	err := session.Deliver(frame(2))

	// Then the session is closed as a slow consumer
	req.ErrorIs(err, errors.ErrQueueOverflow)
	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		req.FailNow("connection not closed")
	}
	code, reason := conn.closedWith()
	req.Equal(contract.CloseSlowConsumer, code)
	req.Equal("slow consumer", reason)

	// And later deliveries fail fast
	req.ErrorIs(session.Deliver(frame(3)), errors.ErrSessionClosed)
}

func TestSession_Overflow_Does_Not_Wait_For_Transport_Close(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	conn := newFakeConn()
	conn.blockC = make(chan struct{})
	defer close(conn.blockC)
	session := NewSession(alice, conn, 1, OverflowDisconnect, log)

	// Given a full queue and a transport whose close hangs
	req.NoError(session.Deliver(frame(0)))

	// When the overflowing frame is delivered
	returned := make(chan error, 1)
	go func() { returned <- session.Deliver(frame(1)) }()

	// Then Deliver returns right away and the session is already closed
	select {
	case err := <-returned:
		req.ErrorIs(err, errors.ErrQueueOverflow)
	case <-time.After(time.Second):
		req.FailNow("Deliver blocked on the transport close")
	}
	select {
	case <-session.Done():
	default:
		req.FailNow("session not marked closed")
	}
	req.ErrorIs(session.Deliver(frame(2)), errors.ErrSessionClosed)
}

func TestSession_Overflow_Drops_Oldest(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	conn := newFakeConn()
	session := NewSession(alice, conn, 2, OverflowDropOldest, log)

	// Given a full queue
	req.NoError(session.Deliver(frame(0)))
	req.NoError(session.Deliver(frame(1)))

	// When one more frame is delivered
	req.NoError(session.Deliver(frame(2)))

	// Then the oldest frame was discarded and the session stays open
	req.Equal(uint64(1), session.Dropped())
	req.Equal(frame(1), <-session.queue)
	req.Equal(frame(2), <-session.queue)
	select {
	case <-session.Done():
		req.FailNow("session should stay open")
	default:
	}
}

func TestSession_Close_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	conn := newFakeConn()
	session := NewSession(alice, conn, 1, OverflowDisconnect, log)

	// When the session is closed twice with different codes
	session.Close(contract.CloseNormal, "bye")
	session.Close(contract.CloseGoingAway, "again")

	// Then the first close wins
	code, reason := conn.closedWith()
	req.Equal(contract.CloseNormal, code)
	req.Equal("bye", reason)
	req.NotEmpty(session.ID())
	req.Equal(alice, session.OwnerID())
}

func TestParseOverflowPolicy(t *testing.T) {
	req := require.New(t)
	p, err := ParseOverflowPolicy("")
	req.NoError(err)
	req.Equal(OverflowDisconnect, p)

	p, err = ParseOverflowPolicy("drop-oldest")
	req.NoError(err)
	req.Equal(OverflowDropOldest, p)

	_, err = ParseOverflowPolicy("block")
	req.Error(err)
}
