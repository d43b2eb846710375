package domain

import (
	"encoding/json"
	"time"
)

type EventName string

const (
	EventSendMessage    EventName = "send_message"
	EventReceiveMessage EventName = "receive_message"
	EventSendAck        EventName = "send_ack"
	EventSendNack       EventName = "send_nack"
)

// InboundFrame is what a client writes on its connection.
type InboundFrame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundFrame is what the server pushes to a session.
type OutboundFrame struct {
	Event EventName `json:"event"`
	Data  any       `json:"data"`
}

// SendMessageRequest is the payload of a send_message frame and of the REST write fallback.
type SendMessageRequest struct {
	CorrelationID string `json:"correlationId,omitempty"`
	Receiver      string `json:"receiver" validate:"required,participant"`
	ReceiverType  string `json:"receiverType"`
	Message       string `json:"message" validate:"required"`
}

// MessageView is the wire representation of a persisted Message.
type MessageView struct {
	ID           string       `json:"id"`
	Sender       string       `json:"sender"`
	Receiver     string       `json:"receiver"`
	ReceiverType ReceiverType `json:"receiverType"`
	Message      string       `json:"message"`
	CreatedAt    time.Time    `json:"createdAt"`
}

type AckPayload struct {
	CorrelationID string    `json:"correlationId"`
	MessageID     string    `json:"messageId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type NackPayload struct {
	CorrelationID string `json:"correlationId"`
	Reason        string `json:"reason"`
}

func ToView(m Message) MessageView {
	return MessageView{
		ID:           m.ID,
		Sender:       m.Sender.String(),
		Receiver:     m.Receiver.String(),
		ReceiverType: m.ReceiverType,
		Message:      m.Content,
		CreatedAt:    m.CreatedAt,
	}
}

func ReceiveMessageFrame(m Message) OutboundFrame {
	return OutboundFrame{Event: EventReceiveMessage, Data: ToView(m)}
}

func AckFrame(correlationID string, m Message) OutboundFrame {
	return OutboundFrame{Event: EventSendAck, Data: AckPayload{
		CorrelationID: correlationID,
		MessageID:     m.ID,
		CreatedAt:     m.CreatedAt,
	}}
}

func NackFrame(correlationID, reason string) OutboundFrame {
	return OutboundFrame{Event: EventSendNack, Data: NackPayload{CorrelationID: correlationID, Reason: reason}}
}
