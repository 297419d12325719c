// Package conversation holds the chat session data model shared by the
// qualification, transcript and notification layers.
package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salesfusion/internal/qualification"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is immutable once appended to a conversation.
type Message struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Role      Role              `json:"role"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Message metadata keys.
const (
	MetaSource        = "source"
	MetaErrorKind     = "error_kind"
	SourceChatBackend = "chat_backend"
	SourceFallback    = "fallback"
)

// ProspectInfo is what the widget knows about the person chatting.
type ProspectInfo struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Conversation is one chat session. Messages are append-only and UpdatedAt
// moves on every mutation.
type Conversation struct {
	ID                  string               `json:"id"`
	SessionID           string               `json:"sessionId"`
	Messages            []Message            `json:"messages"`
	Prospect            ProspectInfo         `json:"prospect"`
	QualificationStatus qualification.Status `json:"qualificationStatus"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// New starts a conversation with the given initial qualification status.
func New(sessionID string, prospect ProspectInfo, status qualification.Status, now time.Time) *Conversation {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Conversation{
		ID:                  uuid.NewString(),
		SessionID:           sessionID,
		Messages:            []Message{},
		Prospect:            prospect,
		QualificationStatus: status,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Append adds a message, filling ID and Timestamp when empty.
func (c *Conversation) Append(msg Message, now time.Time) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = now
	return msg
}

// Turns converts messages to the detector's input shape.
func (c *Conversation) Turns() []qualification.Turn {
	out := make([]qualification.Turn, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, qualification.Turn{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// UserMessageCount counts messages written by the prospect.
func (c *Conversation) UserMessageCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// Transcript renders the conversation as plain text, one message per line.
func (c *Conversation) Transcript() string {
	var b strings.Builder
	for _, m := range c.Messages {
		speaker := "Prospect"
		if m.Role == RoleAssistant {
			speaker = "Assistant"
		}
		b.WriteString("[")
		b.WriteString(m.Timestamp.UTC().Format(time.RFC3339))
		b.WriteString("] ")
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Metadata != nil {
			meta := make(map[string]string, len(m.Metadata))
			for k, v := range m.Metadata {
				meta[k] = v
			}
			m.Metadata = meta
		}
		out.Messages[i] = m
	}
	out.QualificationStatus = c.QualificationStatus.Clone()
	return &out
}
