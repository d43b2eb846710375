package domain

// Thread identifies the conversation between two participants regardless of direction.
// Lo is always the lexically smaller identifier.
type Thread struct {
	Lo ParticipantID
	Hi ParticipantID
}

func ThreadOf(a, b ParticipantID) Thread {
	if b < a {
		a, b = b, a
	}
	return Thread{Lo: a, Hi: b}
}

func (t Thread) Key() string {
	return string(t.Lo) + ":" + string(t.Hi)
}
