package main

import (
	"bufio"
	"care-chat/auth"
	"care-chat/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
// CHAT_TOKEN wins; otherwise a token is minted from JWT_SECRET for CHAT_PARTICIPANT_ID.
type Config struct {
	ServerURL     string        `envconfig:"CHAT_SERVER_URL" default:"ws://localhost:5000/ws"`
	Token         string        `envconfig:"CHAT_TOKEN"`
	JWTSecret     string        `envconfig:"JWT_SECRET"`
	ParticipantID string        `envconfig:"CHAT_PARTICIPANT_ID"`
	ReceiverID    string        `envconfig:"CHAT_RECEIVER_ID" required:"true"`
	ReceiverType  string        `envconfig:"CHAT_RECEIVER_TYPE" default:"user"`
	TokenDuration time.Duration `envconfig:"CHAT_TOKEN_DURATION" default:"1h"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"INFO"`
	Colours       bool          `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run reads lines from stdin, sends each one to the receiver and prints what the relay pushes back.
func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	if !config.Colours {
		color.Disable()
	}

	token, err := resolveToken(config)
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, header)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", redact(config.ServerURL), err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_ = ws.Close()
	}()

	color.Green.Printf(">>> Connected to %s, talking to %s (Ctrl+C to quit)\n", redact(config.ServerURL), config.ReceiverID)

	readErr := make(chan error, 1)
	go func() { readErr <- printIncoming(ws) }()

	lines := make(chan string)
	go scanLines(lines)

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case err := <-readErr:
			return exitRuntime, err
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			frame := map[string]any{
				"event": domain.EventSendMessage,
				"data": domain.SendMessageRequest{
					CorrelationID: uuid.NewString(),
					Receiver:      config.ReceiverID,
					ReceiverType:  config.ReceiverType,
					Message:       line,
				},
			}
			if err := ws.WriteJSON(frame); err != nil {
				return exitRuntime, fmt.Errorf("send failed: %w", err)
			}
		}
	}
}

func resolveToken(config Config) (string, error) {
	if config.Token != "" {
		return config.Token, nil
	}
	if config.JWTSecret == "" {
		return "", fmt.Errorf("config error: set CHAT_TOKEN or JWT_SECRET with CHAT_PARTICIPANT_ID")
	}
	id, err := domain.ParseParticipantID(config.ParticipantID)
	if err != nil {
		return "", fmt.Errorf("config error: CHAT_PARTICIPANT_ID: %w", err)
	}
	return auth.GenerateToken(config.JWTSecret, id, config.TokenDuration)
}

func printIncoming(ws *websocket.Conn) error {
	for {
		var frame struct {
			Event domain.EventName `json:"event"`
			Data  json.RawMessage  `json:"data"`
		}
		if err := ws.ReadJSON(&frame); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("relay closed the connection: %d %s", closeErr.Code, closeErr.Text)
			}
			return err
		}
		switch frame.Event {
		case domain.EventReceiveMessage:
			var view domain.MessageView
			if err := json.Unmarshal(frame.Data, &view); err != nil {
				continue
			}
			color.Cyan.Printf("[%s] %s: ", view.CreatedAt.Local().Format("15:04:05"), view.Sender)
			fmt.Println(view.Message)
		case domain.EventSendAck:
			color.Gray.Println("  ✓ delivered")
		case domain.EventSendNack:
			var nack domain.NackPayload
			_ = json.Unmarshal(frame.Data, &nack)
			color.Red.Printf("  ✗ rejected: %s\n", nack.Reason)
		}
	}
}

func scanLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// redact hides a token passed in the query string.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !u.Query().Has("token") {
		return raw
	}
	q := u.Query()
	q.Set("token", "***")
	u.RawQuery = q.Encode()
	return u.String()
}
