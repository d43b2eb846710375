// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are immutable once the store has assigned their ID and timestamp.
package domain

import (
	"care-chat/errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Draft is a validated send request that has not been persisted yet.
type Draft struct {
	Sender       ParticipantID
	Receiver     ParticipantID
	ReceiverType ReceiverType
	Content      string
}

// Message represents an immutable persisted chat record.
type Message struct {
	ID           string
	Sender       ParticipantID
	Receiver     ParticipantID
	ReceiverType ReceiverType
	Content      string
	CreatedAt    time.Time
	Seq          uint64 // insertion order inside one store
}

// DraftRules holds the configurable parts of send-request validation.
type DraftRules struct {
	MaxContentLength   int
	StrictReceiverType bool
}

// NewDraft validates and normalizes a send request issued by sender.
// Every failure wraps errors.ErrValidation.
func NewDraft(sender ParticipantID, receiver, receiverType, content string, rules DraftRules) (Draft, error) {
	to, err := ParseParticipantID(receiver)
	if err != nil {
		return Draft{}, errors.Validation(err)
	}
	if to == sender {
		return Draft{}, errors.Validation(errors.ErrSelfMessage)
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Draft{}, errors.Validation(errors.ErrEmptyContent)
	}
	if rules.MaxContentLength > 0 && utf8.RuneCountInString(trimmed) > rules.MaxContentLength {
		return Draft{}, errors.Validation(fmt.Errorf("%w: limit is %d characters",
			errors.ErrContentTooLong, rules.MaxContentLength))
	}
	kind, err := ParseReceiverType(receiverType, rules.StrictReceiverType)
	if err != nil {
		return Draft{}, errors.Validation(err)
	}
	return Draft{Sender: sender, Receiver: to, ReceiverType: kind, Content: trimmed}, nil
}
