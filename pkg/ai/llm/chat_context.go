package llm

import (
	"time"

	"github.com/google/uuid"
)

// ItemRole classifies a chat context item.
type ItemRole string

const (
	RoleSystem     ItemRole = "system"
	RoleUser       ItemRole = "user"
	RoleAssistant  ItemRole = "assistant"
	RoleToolCall   ItemRole = "tool_call"
	RoleToolOutput ItemRole = "tool_output"
)

// ChatItem is one entry in the conversation. Message roles carry Content;
// tool roles carry the call fields instead.
type ChatItem struct {
	ID        string
	Role      ItemRole
	Content   string
	CreatedAt time.Time

	// Tool call / output fields.
	ToolCallID string
	ToolName   string
	ToolArgs   string // JSON
}

// ChatContext is the ordered conversation history. It is append-only apart
// from explicit truncation; item ids are stable so providers with server-side
// state can apply incremental diffs.
type ChatContext struct {
	items []*ChatItem
}

func NewChatContext() *ChatContext {
	return &ChatContext{}
}

// Items returns the backing slice; callers must not mutate it.
func (c *ChatContext) Items() []*ChatItem {
	return c.items
}

func (c *ChatContext) Len() int {
	return len(c.items)
}

// AddMessage appends a message item and returns it.
func (c *ChatContext) AddMessage(role ItemRole, content string) *ChatItem {
	item := &ChatItem{
		ID:        "item_" + uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	c.items = append(c.items, item)
	return item
}

// AddToolCall records an invocation the model requested.
func (c *ChatContext) AddToolCall(callID, name, args string) *ChatItem {
	item := &ChatItem{
		ID:         "item_" + uuid.NewString(),
		Role:       RoleToolCall,
		CreatedAt:  time.Now(),
		ToolCallID: callID,
		ToolName:   name,
		ToolArgs:   args,
	}
	c.items = append(c.items, item)
	return item
}

// AddToolOutput records the result of an invocation.
func (c *ChatContext) AddToolOutput(callID, name, output string) *ChatItem {
	item := &ChatItem{
		ID:         "item_" + uuid.NewString(),
		Role:       RoleToolOutput,
		Content:    output,
		CreatedAt:  time.Now(),
		ToolCallID: callID,
		ToolName:   name,
	}
	c.items = append(c.items, item)
	return item
}

// Insert appends an existing item (used by Apply and context transfer).
func (c *ChatContext) Insert(item *ChatItem) {
	c.items = append(c.items, item)
}

// Copy returns a shallow copy: the item list is fresh, the items shared.
// Items are treated as immutable once created, except assistant-message
// truncation on interruption, which replaces the item.
func (c *ChatContext) Copy() *ChatContext {
	items := make([]*ChatItem, len(c.items))
	copy(items, c.items)
	return &ChatContext{items: items}
}

// Truncate keeps the last n non-system items, preserving system items.
func (c *ChatContext) Truncate(n int) {
	var system, rest []*ChatItem
	for _, it := range c.items {
		if it.Role == RoleSystem {
			system = append(system, it)
		} else {
			rest = append(rest, it)
		}
	}
	if len(rest) > n {
		rest = rest[len(rest)-n:]
	}
	c.items = append(system, rest...)
}

// IndexByID returns the position of the item with the given id, or -1.
func (c *ChatContext) IndexByID(id string) int {
	for i, it := range c.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
