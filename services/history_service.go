package services

import (
	"care-chat/contract"
	"care-chat/domain"
	"care-chat/errors"
	"context"
	"log/slog"
)

// HistoryService reads conversation threads. It holds no state of its own.
type HistoryService struct {
	store contract.IMessageStore
	log   *slog.Logger
}

func NewHistoryService(store contract.IMessageStore, log *slog.Logger) *HistoryService {
	return &HistoryService{store: store, log: log}
}

// GetThread returns every message exchanged between requester and counterpart,
// oldest first. An unknown pair yields an empty slice.
func (s *HistoryService) GetThread(ctx context.Context, requester domain.ParticipantID,
	counterpart string) ([]domain.Message, error) {
	other, err := domain.ParseParticipantID(counterpart)
	if err != nil {
		return nil, errors.Validation(err)
	}
	messages, err := s.store.Thread(ctx, requester, other)
	if err != nil {
		s.log.Error("Thread not loaded", "requester", requester, "counterpart", other, "error", err)
		return nil, err
	}
	return messages, nil
}
