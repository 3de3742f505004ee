package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConversationKey is the fixed storage key of the conversation mirror.
const ConversationKey = "visivo.conversation"

// Conversation owns the ordered message list and mirrors it to a KeyValue
// after every mutation.
type Conversation struct {
	kv       KeyValue
	messages []Message
}

// NewConversation loads the persisted conversation, if any.
func NewConversation(ctx context.Context, kv KeyValue) (*Conversation, error) {
	c := &Conversation{kv: kv}
	messages, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.messages = messages
	return c, nil
}

// Load reads the persisted sequence, empty when nothing is stored.
func (c *Conversation) Load(ctx context.Context) ([]Message, error) {
	data, ok, err := c.kv.Get(ctx, ConversationKey)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}
	return DecodeMessages(data)
}

// Messages returns a copy of the current sequence.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Append adds a completed message and persists.
func (c *Conversation) Append(ctx context.Context, m Message) error {
	if m == nil {
		return errors.New("nil message")
	}
	c.messages = append(c.messages, m)
	return c.Persist(ctx)
}

// Persist overwrites the stored sequence with the current one.
func (c *Conversation) Persist(ctx context.Context) error {
	data, err := EncodeMessages(c.messages)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, ConversationKey, data); err != nil {
		return fmt.Errorf("persist conversation: %w", err)
	}
	return nil
}

// Clear drops every message, in memory and in storage.
func (c *Conversation) Clear(ctx context.Context) error {
	c.messages = nil
	if err := c.kv.Delete(ctx, ConversationKey); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// SendOption configures Send.
type SendOption func(*sendOptions)

type sendOptions struct {
	onFragment func(string)
}

// WithFragmentHandler receives in-flight fragments for live display. They
// are never persisted individually.
func WithFragmentHandler(fn func(string)) SendOption {
	return func(o *sendOptions) { o.onFragment = fn }
}

// Send appends the user message, streams the reply, and appends it as one
// rendered assistant message once the stream ends. When the stream is
// interrupted the text received so far is kept, marked Interrupted, and the
// returned error wraps ErrStreamInterrupted.
func (c *Conversation) Send(ctx context.Context, cl *Client, text string, attachment *Attachment, opts ...SendOption) (*AssistantMessage, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.Append(ctx, NewUserMessage(text, attachment.Ref())); err != nil {
		return nil, err
	}

	stream, err := cl.StreamChat(ctx, text, attachment)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var buf strings.Builder
	for stream.Next() {
		fragment := stream.Fragment()
		buf.WriteString(fragment)
		if o.onFragment != nil {
			o.onFragment(fragment)
		}
	}

	streamErr := stream.Err()
	interrupted := errors.Is(streamErr, ErrStreamInterrupted)
	if streamErr != nil && !interrupted {
		return nil, streamErr
	}
	if interrupted && buf.Len() == 0 {
		return nil, streamErr
	}

	text = buf.String()
	html, err := RenderMarkdown(text)
	if err != nil {
		return nil, err
	}

	reply := NewAssistantMessage(text, html, interrupted)
	if err := c.Append(ctx, reply); err != nil {
		return nil, err
	}
	return reply, streamErr
}

// History converts the conversation for the multi-turn contract. Assistant
// turns carry the streamed Markdown, never the rendered HTML.
func (c *Conversation) History() []HistoryMessage {
	history := make([]HistoryMessage, 0, len(c.messages))
	for _, m := range c.messages {
		switch v := m.(type) {
		case *UserMessage:
			history = append(history, HistoryMessage{Role: RoleUser, Content: v.Text})
		case *AssistantMessage:
			history = append(history, HistoryMessage{Role: RoleAssistant, Content: v.Markdown})
		}
	}
	return history
}
