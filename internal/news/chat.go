package news

import (
	"context"
	"errors"
	"sync"

	"github.com/lepinkainen/feed-brief/internal/llm"
)

// Message roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of the chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is a chat session plus its transcript. A nil *Chat is usable and
// reports ErrChatNotReady.
type Chat struct {
	mu      sync.Mutex
	session llm.ChatSession
	history []Message
}

func newChat(session llm.ChatSession, greeting string) *Chat {
	return &Chat{
		session: session,
		history: []Message{{Role: RoleModel, Content: greeting}},
	}
}

// Send posts a user message and returns the reply. Both are appended to the
// transcript; a failed send only records the user message.
func (c *Chat) Send(ctx context.Context, text string) (string, error) {
	if c == nil || c.session == nil {
		return "", &llm.ChatError{Err: ErrChatNotReady}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, Message{Role: RoleUser, Content: text})
	reply, err := c.session.SendMessage(ctx, text)
	if err != nil {
		var ce *llm.ChatError
		if !errors.As(err, &ce) {
			err = &llm.ChatError{Err: err}
		}
		return "", err
	}

	c.history = append(c.history, Message{Role: RoleModel, Content: reply})
	return reply, nil
}

// History returns a copy of the transcript.
func (c *Chat) History() []Message {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...)
}
