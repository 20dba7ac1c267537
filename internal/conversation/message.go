package conversation

import (
	"strings"
	"time"
)

// Role identifies who authored a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the stored roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single inbound or outbound chat message. MessageSid is unique
// across the store; messages are never updated once written.
type Message struct {
	From       string
	To         string
	Body       string
	MessageSid string
	Timestamp  time.Time
	ContactID  string
	Role       Role
}

// HistoryTurn is a stored message reduced to what prompt assembly needs.
type HistoryTurn struct {
	Role Role
	Body string
}

// ReplySid derives the id of the assistant reply to the inbound message sid.
func ReplySid(inboundSid string) string {
	return inboundSid + "-ai"
}

// ReplyTo builds the assistant message answering inbound. From and To are
// swapped so the reply travels back to the sender.
func ReplyTo(inbound Message, body, contactID string, now time.Time) Message {
	return Message{
		From:       inbound.To,
		To:         inbound.From,
		Body:       body,
		MessageSid: ReplySid(inbound.MessageSid),
		Timestamp:  now.UTC(),
		ContactID:  contactID,
		Role:       RoleAssistant,
	}
}

// TranscriptText renders messages as "role: body" lines for summarization.
func TranscriptText(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, string(m.Role)+": "+m.Body)
	}
	return strings.Join(lines, "\n")
}
