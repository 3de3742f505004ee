package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role tags a message variant on the wire.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FileRef describes a file sent with a user message. The payload itself is
// never persisted.
type FileRef struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Message is either a *UserMessage or an *AssistantMessage.
type Message interface {
	MessageID() string
	Role() Role
	isMessage()
}

// UserMessage is text typed by the user, optionally with one attachment.
type UserMessage struct {
	ID         string
	Text       string
	Attachment *FileRef
	CreatedAt  time.Time
}

// AssistantMessage is a completed reply. Markdown is the text as streamed,
// HTML its rendering for display. Interrupted marks replies whose stream
// ended abruptly; the text kept is what arrived.
type AssistantMessage struct {
	ID          string
	Markdown    string
	HTML        string
	Interrupted bool
	CreatedAt   time.Time
}

func (m *UserMessage) MessageID() string { return m.ID }
func (m *UserMessage) Role() Role        { return RoleUser }
func (*UserMessage) isMessage()          {}

func (m *AssistantMessage) MessageID() string { return m.ID }
func (m *AssistantMessage) Role() Role        { return RoleAssistant }
func (*AssistantMessage) isMessage()          {}

// NewUserMessage stamps a user message with a fresh id.
func NewUserMessage(text string, attachment *FileRef) *UserMessage {
	return &UserMessage{ID: uuid.NewString(), Text: text, Attachment: attachment, CreatedAt: time.Now().UTC()}
}

// NewAssistantMessage stamps an assistant message with a fresh id.
func NewAssistantMessage(markdown, html string, interrupted bool) *AssistantMessage {
	return &AssistantMessage{
		ID:          uuid.NewString(),
		Markdown:    markdown,
		HTML:        html,
		Interrupted: interrupted,
		CreatedAt:   time.Now().UTC(),
	}
}

type wireMessage struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Markdown    string    `json:"markdown,omitempty"`
	Attachment  *FileRef  `json:"attachment,omitempty"`
	Interrupted bool      `json:"interrupted,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toWire(m Message) (wireMessage, error) {
	switch v := m.(type) {
	case *UserMessage:
		return wireMessage{ID: v.ID, Role: RoleUser, Content: v.Text, Attachment: v.Attachment, CreatedAt: v.CreatedAt}, nil
	case *AssistantMessage:
		return wireMessage{ID: v.ID, Role: RoleAssistant, Content: v.HTML, Markdown: v.Markdown, Interrupted: v.Interrupted, CreatedAt: v.CreatedAt}, nil
	default:
		return wireMessage{}, fmt.Errorf("unknown message type %T", m)
	}
}

func fromWire(w wireMessage) (Message, error) {
	switch w.Role {
	case RoleUser:
		return &UserMessage{ID: w.ID, Text: w.Content, Attachment: w.Attachment, CreatedAt: w.CreatedAt}, nil
	case RoleAssistant:
		return &AssistantMessage{ID: w.ID, Markdown: w.Markdown, HTML: w.Content, Interrupted: w.Interrupted, CreatedAt: w.CreatedAt}, nil
	default:
		return nil, fmt.Errorf("unknown message role %q", w.Role)
	}
}

// EncodeMessages serializes messages with a role discriminator.
func EncodeMessages(messages []Message) ([]byte, error) {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		w, err := toWire(m)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return json.Marshal(out)
}

// DecodeMessages is the inverse of EncodeMessages.
func DecodeMessages(data []byte) ([]Message, error) {
	var in []wireMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	messages := make([]Message, 0, len(in))
	for _, w := range in {
		m, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}
