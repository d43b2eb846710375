package e2e

import (
	"care-chat/domain"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type testChatSuite struct {
	BaseRelaySuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

type frame struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

func (s *testChatSuite) read(ws *websocket.Conn) frame {
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	s.Require().NoError(ws.ReadJSON(&f))
	return f
}

func (s *testChatSuite) TestHealth() {
	if s.Config.HealthAddr == "" {
		s.T().Skip("E2E_HEALTH_ADDR not set")
	}
	conn := s.GrpcConn(s.T(), "Relay health", s.Config.HealthAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	s.Require().NoError(err)
	s.Require().Equal(grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func (s *testChatSuite) TestConversation() {
	alice, carol := s.NewParticipant(), s.NewParticipant()

	aliceWS := s.Dial("Alice connects", alice)
	defer aliceWS.Close()
	carolWS := s.Dial("Carol connects", carol)
	defer carolWS.Close()

	s.Run("Step 1: Alice writes to Carol", func() {
		s.Require().NoError(aliceWS.WriteJSON(map[string]any{
			"event": domain.EventSendMessage,
			"data": domain.SendMessageRequest{
				CorrelationID: "e2e-1", Receiver: carol.String(), ReceiverType: "Caretaker", Message: "hello from e2e",
			},
		}))

		ack := s.read(aliceWS)
		s.Require().Equal(domain.EventSendAck, ack.Event)

		pushed := s.read(carolWS)
		s.Require().Equal(domain.EventReceiveMessage, pushed.Event)
		var view domain.MessageView
		s.Require().NoError(json.Unmarshal(pushed.Data, &view))
		s.Require().Equal(alice.String(), view.Sender)
		s.Require().Equal("hello from e2e", view.Message)
	})

	s.Run("Step 2: Carol reads the thread", func() {
		r, err := http.NewRequest(http.MethodGet, s.Config.RelayURL+"/api/chat/messages/"+alice.String(), nil)
		s.Require().NoError(err)
		r.Header.Set("Authorization", "Bearer "+s.Token(carol))
		resp, err := http.DefaultClient.Do(r)
		s.Require().NoError(err)
		defer resp.Body.Close()

		s.Require().Equal(http.StatusOK, resp.StatusCode)
		var views []domain.MessageView
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&views))
		s.Require().Len(views, 1)
		s.Require().Equal(domain.ReceiverCaretaker, views[0].ReceiverType)
	})
}

