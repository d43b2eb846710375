package server

import (
	"care-chat/contract"
	"care-chat/domain"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + writeWait
	closeWait  = time.Second
)

// wsConn adapts a gorilla websocket to contract.Conn and keeps it alive with pings.
// Frames are JSON text messages shaped as {"event": ..., "data": ...}.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func newWSConn(ws *websocket.Conn, readLimit int64) *wsConn {
	c := &wsConn{ws: ws, done: make(chan struct{})}
	if readLimit > 0 {
		ws.SetReadLimit(readLimit)
	}
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()
	return c
}

// ReadFrame returns the next frame. A message that is not a JSON frame comes back
// with an empty event so the caller can drop it without ending the connection.
func (c *wsConn) ReadFrame() (domain.InboundFrame, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return domain.InboundFrame{}, err
	}
	var frame domain.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return domain.InboundFrame{Data: raw}, nil
	}
	return frame, nil
}

func (c *wsConn) WriteFrame(frame domain.OutboundFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(frame)
}

// Close sends the close frame when no write is in flight. Otherwise the writer is
// stuck on a peer that stopped reading, so the socket is closed without the frame,
// which also releases that writer.
func (c *wsConn) Close(code contract.CloseCode, reason string) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		if c.writeMu.TryLock() {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(int(code), reason), time.Now().Add(closeWait))
			c.writeMu.Unlock()
		}
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
