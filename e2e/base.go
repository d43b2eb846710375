package e2e

import (
	"care-chat/auth"
	"care-chat/domain"
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayURL == "" || s.Config.JWTSecret == "" {
		s.T().Skip("E2E_RELAY_URL and JWT_SECRET are required for end-to-end tests")
	}
}

func (s *BaseRelaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// NewParticipant returns a fresh identifier, so runs never share threads.
func (s *BaseRelaySuite) NewParticipant() domain.ParticipantID {
	id, err := domain.ParseParticipantID(primitive.NewObjectID().Hex())
	s.Require().NoError(err)
	return id
}

func (s *BaseRelaySuite) Token(id domain.ParticipantID) string {
	token, err := auth.GenerateToken(s.Config.JWTSecret, id, time.Hour)
	s.Require().NoError(err)
	return token
}

// Dial opens an authenticated socket for id.
func (s *BaseRelaySuite) Dial(name string, id domain.ParticipantID) *websocket.Conn {
	s.header(s.T(), name)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.Token(id))
	url := "ws" + strings.TrimPrefix(s.Config.RelayURL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	s.Require().NoError(err, "Failed to open socket at "+url)
	return ws
}

// GrpcConn initializes a gRPC connection with logging, colors, and JSON debugging
func (s *BaseRelaySuite) GrpcConn(t *testing.T, name string, addr string) *grpc.ClientConn {
	s.header(t, name)

	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+addr)
	return conn
}
