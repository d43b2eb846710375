// Package domain contains core concepts of the chat system.
// This file defines participant identifiers and receiver directories.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"care-chat/errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParticipantID is the canonical identifier of a user or caretaker account.
// Only ParseParticipantID produces valid values.
type ParticipantID string

// ParseParticipantID accepts a 24 hex digit ObjectID in any case and returns its lower-case form.
// Surrounding whitespace makes the identifier malformed.
func ParseParticipantID(raw string) (ParticipantID, error) {
	oid, err := primitive.ObjectIDFromHex(raw)
	if err != nil || oid.IsZero() {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidParticipantID, raw)
	}
	return ParticipantID(oid.Hex()), nil
}

func (p ParticipantID) String() string { return string(p) }

// ReceiverType tells which account directory the receiver belongs to.
type ReceiverType string

const (
	ReceiverUser      ReceiverType = "user"
	ReceiverCaretaker ReceiverType = "caretaker"
)

// ParseReceiverType matches case-insensitively, so the capitalised "Caretaker"
// stored by older clients is accepted. An empty value means ReceiverUser.
// With strict unset, unknown values also fall back to ReceiverUser.
func ParseReceiverType(raw string, strict bool) (ReceiverType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ReceiverUser):
		return ReceiverUser, nil
	case string(ReceiverCaretaker):
		return ReceiverCaretaker, nil
	}
	if !strict {
		return ReceiverUser, nil
	}
	return "", fmt.Errorf("%w: %q", errors.ErrUnknownReceiverType, raw)
}
