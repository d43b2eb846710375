package services

import (
	"care-chat/contract"
	"care-chat/domain"
	"context"
	"log/slog"
)

// ChatService is the single send path shared by socket frames and the REST fallback.
type ChatService struct {
	store    contract.IMessageStore
	registry contract.IRegistry
	rules    domain.DraftRules
	log      *slog.Logger
}

func NewChatService(store contract.IMessageStore, registry contract.IRegistry,
	rules domain.DraftRules, log *slog.Logger) *ChatService {
	return &ChatService{store: store, registry: registry, rules: rules, log: log}
}

// Post validates, persists, then delivers to every session of the receiver and to
// the sender's other sessions. originSessionID is skipped; empty means none is.
// The message is stored before any delivery. Delivery failures never fail Post.
func (s *ChatService) Post(ctx context.Context, sender domain.ParticipantID, originSessionID string,
	req domain.SendMessageRequest) (domain.Message, error) {
	if err := ValidateSendRequest(req); err != nil {
		return domain.Message{}, err
	}
	draft, err := domain.NewDraft(sender, req.Receiver, req.ReceiverType, req.Message, s.rules)
	if err != nil {
		return domain.Message{}, err
	}

	msg, err := s.store.Append(ctx, draft)
	if err != nil {
		s.log.Error("Message not stored", "sender", sender, "receiver", draft.Receiver, "error", err)
		return domain.Message{}, err
	}

	frame := domain.ReceiveMessageFrame(msg)
	delivered := s.deliver(msg.Receiver, frame, "")
	delivered += s.deliver(msg.Sender, frame, originSessionID)
	s.log.Debug("Message routed", "message_id", msg.ID, "sender", msg.Sender,
		"receiver", msg.Receiver, "delivered", delivered)
	return msg, nil
}

func (s *ChatService) deliver(owner domain.ParticipantID, frame domain.OutboundFrame, skip string) int {
	count := 0
	for _, session := range s.registry.SessionsFor(owner) {
		if skip != "" && session.ID() == skip {
			continue
		}
		if err := session.Deliver(frame); err != nil {
			s.log.Warn("Delivery failed", "session_id", session.ID(), "participant_id", owner, "error", err)
			continue
		}
		count++
	}
	return count
}
