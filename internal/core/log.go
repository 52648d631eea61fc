package core

import (
	"time"

	"github.com/dkeye/parley/internal/domain"
)

// MessageLog is the append-only utterance record of one room. Sequence
// numbers are assigned here and only here, start at 1, and never repeat.
// Not goroutine-safe: owned by the room's Run goroutine.
type MessageLog struct {
	seq  uint64
	msgs []domain.Message
}

func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

func (l *MessageLog) Len() int { return len(l.msgs) }

// Append assigns the next sequence number and stamps the message.
func (l *MessageLog) Append(m domain.Message) domain.Message {
	l.seq++
	m.Seq = l.seq
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	l.msgs = append(l.msgs, m)
	return m
}

func (l *MessageLog) Get(seq uint64) (domain.Message, bool) {
	if seq == 0 || seq > uint64(len(l.msgs)) {
		return domain.Message{}, false
	}
	return l.msgs[seq-1], true
}

// Edit replaces the display text of an existing message. Sequence number
// and position are untouched; the previous text goes to History.
func (l *MessageLog) Edit(seq uint64, text string) (domain.Message, error) {
	if seq == 0 || seq > uint64(len(l.msgs)) {
		return domain.Message{}, ErrUnknownMessage
	}
	m := &l.msgs[seq-1]
	m.History = append(m.History, m.Text)
	m.Text = text
	m.Edited = true
	return *m, nil
}

// Window returns a copy of the most recent n messages, oldest first.
func (l *MessageLog) Window(n int) []domain.Message {
	if n <= 0 || n > len(l.msgs) {
		n = len(l.msgs)
	}
	out := make([]domain.Message, n)
	copy(out, l.msgs[len(l.msgs)-n:])
	return out
}
