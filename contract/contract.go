//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"care-chat/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// CloseCode is sent to the peer when the server ends a connection.
type CloseCode int

const (
	CloseNormal       CloseCode = 1000
	CloseGoingAway    CloseCode = 1001
	CloseAuthFailed   CloseCode = 4401
	CloseSlowConsumer CloseCode = 4008
)

// Conn is a transport-level bidirectional connection.
// ReadFrame is only called by the connection's own task; WriteFrame only by its session writer.
type Conn interface {
	ReadFrame() (domain.InboundFrame, error)
	WriteFrame(frame domain.OutboundFrame) error
	Close(code CloseCode, reason string) error
	RemoteAddr() string
}

// Session is one authenticated connection bound to a participant.
// Deliver must never block the caller.
type Session interface {
	ID() string
	OwnerID() domain.ParticipantID
	Deliver(frame domain.OutboundFrame) error
	Close(code CloseCode, reason string)
}

type IRegistry interface {
	Bind(owner domain.ParticipantID, session Session)
	Unbind(owner domain.ParticipantID, session Session)
	SessionsFor(owner domain.ParticipantID) []Session
}

type IMessageStore interface {
	Append(ctx context.Context, draft domain.Draft) (domain.Message, error)
	Thread(ctx context.Context, a, b domain.ParticipantID) ([]domain.Message, error)
	Close() error
}

type IVerifier interface {
	Verify(ctx context.Context, credential string) (domain.ParticipantID, error)
}

type IChatService interface {
	Post(ctx context.Context, sender domain.ParticipantID, originSessionID string, req domain.SendMessageRequest) (domain.Message, error)
}

type IHistoryService interface {
	GetThread(ctx context.Context, requester domain.ParticipantID, counterpart string) ([]domain.Message, error)
}
