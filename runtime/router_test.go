package runtime

import (
	"care-chat/contract"
	"care-chat/domain"
	"care-chat/errors"
	"care-chat/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	registry *Registry
	verifier *mocks.MockIVerifier
	chat     *mocks.MockIChatService
	router   *Router
}

func newRouterFixture(t *testing.T, cfg RouterConfig) routerFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	verifier := mocks.NewMockIVerifier(ctrl)
	chat := mocks.NewMockIChatService(ctrl)
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 16
	}
	return routerFixture{
		registry: registry,
		verifier: verifier,
		chat:     chat,
		router:   NewRouter(registry, chat, verifier, log, cfg),
	}
}

func serveAsync(ctx context.Context, router *Router, credential string, conn contract.Conn) <-chan error {
	done := make(chan error, 1)
	go func() { done <- router.Serve(ctx, credential, conn) }()
	return done
}

func waitWrite(t *testing.T, conn *fakeConn) domain.OutboundFrame {
	t.Helper()
	select {
	case f := <-conn.writes:
		return f
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no frame written")
		return domain.OutboundFrame{}
	}
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		require.FailNow(t, "serve did not return")
		return nil
	}
}

func stored(id string) domain.Message {
	return domain.Message{
		ID:           id,
		Sender:       alice,
		Receiver:     carol,
		ReceiverType: domain.ReceiverUser,
		Content:      "hi",
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRouter_Rejected_Credential_Closes_With_Auth_Code(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, RouterConfig{AuthTimeout: time.Second})
	conn := newFakeConn()

	// Given an expired credential
	f.verifier.EXPECT().Verify(gomock.Any(), "expired").
		Return(domain.ParticipantID(""), errors.Auth(errors.ErrExpiredToken))

	// When the connection is served
	err := f.router.Serve(context.Background(), "expired", conn)

	// Then it is closed with the auth code and reason and never bound
	req.ErrorIs(err, errors.ErrAuth)
	code, reason := conn.closedWith()
	req.Equal(contract.CloseAuthFailed, code)
	req.Equal(errors.ErrExpiredToken.Error(), reason)
	req.Zero(f.registry.Count())
}

func TestRouter_Authentication_Timeout(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, RouterConfig{AuthTimeout: 20 * time.Millisecond})
	conn := newFakeConn()

	// Given a verifier slower than the authentication timeout
	f.verifier.EXPECT().Verify(gomock.Any(), "slow").
		DoAndReturn(func(ctx context.Context, _ string) (domain.ParticipantID, error) {
			<-ctx.Done()
			return "", errors.Auth(ctx.Err())
		})

	// When the connection is served
	err := f.router.Serve(context.Background(), "slow", conn)

	// Then the connection is rejected as timed out
	req.ErrorIs(err, context.DeadlineExceeded)
	code, reason := conn.closedWith()
	req.Equal(contract.CloseAuthFailed, code)
	req.Equal("authentication timeout", reason)
}

func TestRouter_Joined_Session_Is_Bound_Then_Unbound(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, RouterConfig{})
	conn := newFakeConn()
	f.verifier.EXPECT().Verify(gomock.Any(), "tok").Return(alice, nil)
	f.chat.EXPECT().Post(gomock.Any(), alice, gomock.Any(), gomock.Any()).Return(stored("m1"), nil)

	// Given an authenticated connection
	done := serveAsync(context.Background(), f.router, "tok", conn)

	// When a correlated message is sent
	conn.push(domain.EventSendMessage, domain.SendMessageRequest{
		CorrelationID: "c1", Receiver: carol.String(), Message: "hi",
	})
	ack := waitWrite(t, conn)

	// Then the session is bound while the connection is open
	req.Equal(domain.EventSendAck, ack.Event)
	req.Len(f.registry.SessionsFor(alice), 1)

	// When the peer disconnects
	conn.hangUp()
	req.NoError(waitServe(t, done))

	// Then the session is gone
	req.Empty(f.registry.SessionsFor(alice))
}

func TestRouter_Ack_Carries_Stored_Identity(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, RouterConfig{})
	conn := newFakeConn()
	f.verifier.EXPECT().Verify(gomock.Any(), "tok").Return(alice, nil)

	var origin string
	f.chat.EXPECT().Post(gomock.Any(), alice, gomock.Any(), domain.SendMessageRequest{
		CorrelationID: "c1", Receiver: carol.String(), ReceiverType: "Caretaker", Message: "hi",
	}).DoAndReturn(func(_ context.Context, _ domain.ParticipantID, originSessionID string, _ domain.SendMessageRequest) (domain.Message, error) {
		origin = originSessionID
		return stored("m1"), nil
	})

	done := serveAsync(context.Background(), f.router, "tok", conn)

	// When a message with a correlation id is sent
	conn.push(domain.EventSendMessage, domain.SendMessageRequest{
		CorrelationID: "c1", Receiver: carol.String(), ReceiverType: "Caretaker", Message: "hi",
	})

	// Then the origin session receives an ack with the stored id and timestamp
	ack := waitWrite(t, conn)
	req.Equal(domain.AckFrame("c1", stored("m1")), ack)
	req.Equal(f.registry.SessionsFor(alice)[0].ID(), origin)

	conn.hangUp()
	req.NoError(waitServe(t, done))
}

func TestRouter_Nack_On_Rejection(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, RouterConfig{})
	conn := newFakeConn()
	f.verifier.EXPECT().Verify(gomock.Any(), "tok").Return(alice, nil)
	gomock.InOrder(
		f.chat.EXPECT().Post(gomock.Any(), alice, gomock.Any(), gomock.Any()).
			Return(domain.Message{}, errors.Validation(errors.ErrEmptyContent)),
		f.chat.EXPECT().Post(gomock.Any(), alice, gomock.Any(), gomock.Any()).
			Return(domain.Message{}, errors.StoreUnavailable(context.Canceled)),
	)

	done := serveAsync(context.Background(), f.router, "tok", conn)

	// When a blank message is sent
	conn.push(domain.EventSendMessage, domain.SendMessageRequest{CorrelationID: "c1", Receiver: carol.String(), Message: " "})

	// Then a nack with the validation reason comes back
	nack := waitWrite(t, conn)
	req.Equal(domain.EventSendNack, nack.Event)
	payload := nack.Data.(domain.NackPayload)
	req.Equal("c1", payload.CorrelationID)
	req.Contains(payload.Reason, errors.ErrEmptyContent.Error())

	// When the store fails
	conn.push(domain.EventSendMessage, domain.SendMessageRequest{CorrelationID: "c2", Receiver: carol.String(), Message: "hi"})

	// Then the nack does not leak driver details
	nack = waitWrite(t, conn)
	req.Equal(domain.NackFrame("c2", errors.ErrStoreUnavailable.Error()), nack)

	conn.hangUp()
	req.NoError(waitServe(t, done))
}

func TestRouter_Drops_Unknown_And_Undecodable_Frames(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, RouterConfig{})
	conn := newFakeConn()
	f.verifier.EXPECT().Verify(gomock.Any(), "tok").Return(alice, nil)

	// Given a rejected message without correlation id, an unknown event and broken JSON
	gomock.InOrder(
		f.chat.EXPECT().Post(gomock.Any(), alice, gomock.Any(), gomock.Any()).
			Return(domain.Message{}, errors.Validation(errors.ErrSelfMessage)),
		f.chat.EXPECT().Post(gomock.Any(), alice, gomock.Any(), gomock.Any()).
			Return(stored("m9"), nil),
	)
	done := serveAsync(context.Background(), f.router, "tok", conn)
	conn.push(domain.EventSendMessage, domain.SendMessageRequest{Receiver: alice.String(), Message: "me"})
	conn.push("typing", map[string]string{"receiver": carol.String()})
	conn.pushRaw(domain.EventSendMessage, `{"receiver":`)

	// When a valid correlated message follows
	conn.push(domain.EventSendMessage, domain.SendMessageRequest{CorrelationID: "last", Receiver: carol.String(), Message: "hi"})

	// Then the only frame written is its ack and the connection stayed open
	ack := waitWrite(t, conn)
	req.Equal(domain.AckFrame("last", stored("m9")), ack)
	req.Len(conn.frames(), 1)

	conn.hangUp()
	req.NoError(waitServe(t, done))
}

func TestRouter_Processes_Frames_In_Order(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, RouterConfig{})
	conn := newFakeConn()
	f.verifier.EXPECT().Verify(gomock.Any(), "tok").Return(alice, nil)

	var seen []string
	f.chat.EXPECT().Post(gomock.Any(), alice, gomock.Any(), gomock.Any()).Times(5).
		DoAndReturn(func(_ context.Context, _ domain.ParticipantID, _ string, r domain.SendMessageRequest) (domain.Message, error) {
			seen = append(seen, r.Message)
			return stored(r.CorrelationID), nil
		})

	done := serveAsync(context.Background(), f.router, "tok", conn)

	// When five messages are sent back to back
	expected := []string{"1", "2", "3", "4", "5"}
	for _, m := range expected {
		conn.push(domain.EventSendMessage, domain.SendMessageRequest{CorrelationID: m, Receiver: carol.String(), Message: m})
	}
	for range expected {
		waitWrite(t, conn)
	}
	conn.hangUp()
	req.NoError(waitServe(t, done))

	// Then they were handled in arrival order
	req.Equal(expected, seen)
}

func TestRouter_Shutdown_Closes_Joined_Connection(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, RouterConfig{})
	conn := newFakeConn()
	f.verifier.EXPECT().Verify(gomock.Any(), "tok").Return(alice, nil)
	ctx, cancel := context.WithCancel(context.Background())

	// Given a joined connection
	done := serveAsync(ctx, f.router, "tok", conn)
	require.Eventually(t, func() bool { return f.registry.Count() == 1 }, time.Second, 5*time.Millisecond)

	// When the server shuts down
	cancel()

	// Then the connection is closed as going away and unbound
	req.NoError(waitServe(t, done))
	code, _ := conn.closedWith()
	req.Equal(contract.CloseGoingAway, code)
	req.Zero(f.registry.Count())
}

func TestConnState_String(t *testing.T) {
	req := require.New(t)
	req.Equal("joined", Joined.String())
	req.Equal("ConnState(9)", ConnState(9).String())
}
