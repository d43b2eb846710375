package storage

import (
	"care-chat/domain"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the persisted message record.
// Keep them stable: values already on disk are decoded with these numbers.
const (
	fieldID           protowire.Number = 1
	fieldSender       protowire.Number = 2
	fieldReceiver     protowire.Number = 3
	fieldReceiverType protowire.Number = 4
	fieldContent      protowire.Number = 5
	fieldCreatedAt    protowire.Number = 6
	fieldSeq          protowire.Number = 7
)

func encodeMessage(m domain.Message) []byte {
	b := make([]byte, 0, 96+len(m.Content))
	b = appendString(b, fieldID, m.ID)
	b = appendString(b, fieldSender, m.Sender.String())
	b = appendString(b, fieldReceiver, m.Receiver.String())
	b = appendString(b, fieldReceiverType, string(m.ReceiverType))
	b = appendString(b, fieldContent, m.Content)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Seq)
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// DecodeMessage reads a value written by the Badger store. Unknown fields are skipped.
func DecodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.Message{}, fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num >= fieldID && num <= fieldContent:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldID:
				m.ID = v
			case fieldSender:
				m.Sender = domain.ParticipantID(v)
			case fieldReceiver:
				m.Receiver = domain.ParticipantID(v)
			case fieldReceiverType:
				m.ReceiverType = domain.ReceiverType(v)
			case fieldContent:
				m.Content = v
			}
		case typ == protowire.VarintType && (num == fieldCreatedAt || num == fieldSeq):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldCreatedAt {
				m.CreatedAt = time.Unix(0, int64(v)).UTC()
			} else {
				m.Seq = v
			}
		default:
			// unknown field written by a newer version
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}
