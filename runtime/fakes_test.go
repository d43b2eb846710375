package runtime

import (
	"care-chat/contract"
	"care-chat/domain"
	"encoding/json"
	"io"
	"sync"
)

// fakeSession records delivered frames and never blocks.
type fakeSession struct {
	id     string
	owner  domain.ParticipantID
	mu     sync.Mutex
	frames []domain.OutboundFrame
	closed bool
}

func newFakeSession(id string, owner domain.ParticipantID) *fakeSession {
	return &fakeSession{id: id, owner: owner}
}

func (f *fakeSession) ID() string                    { return f.id }
func (f *fakeSession) OwnerID() domain.ParticipantID { return f.owner }

func (f *fakeSession) Deliver(frame domain.OutboundFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSession) Close(contract.CloseCode, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeConn feeds scripted inbound frames and records outbound ones.
// ReadFrame returns io.EOF once the script is exhausted and the conn is released,
// or immediately after Close.
type fakeConn struct {
	inbound   chan domain.InboundFrame
	mu        sync.Mutex
	written   []domain.OutboundFrame
	closeCode contract.CloseCode
	reason    string
	closed    chan struct{}
	closeOnce sync.Once
	writes    chan domain.OutboundFrame
	blockW    chan struct{}
	blockC    chan struct{}
}

func newFakeConn(frames ...domain.InboundFrame) *fakeConn {
	c := &fakeConn{
		inbound: make(chan domain.InboundFrame, len(frames)+16),
		closed:  make(chan struct{}),
		writes:  make(chan domain.OutboundFrame, 64),
	}
	for _, f := range frames {
		c.inbound <- f
	}
	return c
}

func (c *fakeConn) push(event domain.EventName, data any) {
	raw, _ := json.Marshal(data)
	c.inbound <- domain.InboundFrame{Event: event, Data: raw}
}

func (c *fakeConn) pushRaw(event domain.EventName, raw string) {
	c.inbound <- domain.InboundFrame{Event: event, Data: json.RawMessage(raw)}
}

// hangUp makes the next ReadFrame fail like a peer disconnect.
func (c *fakeConn) hangUp() {
	close(c.inbound)
}

func (c *fakeConn) ReadFrame() (domain.InboundFrame, error) {
	select {
	case f, ok := <-c.inbound:
		if !ok {
			return domain.InboundFrame{}, io.EOF
		}
		return f, nil
	case <-c.closed:
		return domain.InboundFrame{}, io.EOF
	}
}

func (c *fakeConn) WriteFrame(frame domain.OutboundFrame) error {
	if c.blockW != nil {
		select {
		case <-c.blockW:
		case <-c.closed:
			return io.ErrClosedPipe
		}
	}
	c.mu.Lock()
	c.written = append(c.written, frame)
	c.mu.Unlock()
	select {
	case c.writes <- frame:
	default:
	}
	return nil
}

func (c *fakeConn) Close(code contract.CloseCode, reason string) error {
	if c.blockC != nil {
		<-c.blockC
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.reason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:0" }

func (c *fakeConn) closedWith() (contract.CloseCode, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.reason
}

func (c *fakeConn) frames() []domain.OutboundFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.OutboundFrame(nil), c.written...)
}
