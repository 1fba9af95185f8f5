package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrSystemRole is returned when a system-role message is appended after
// conversation creation; the system message only exists as the first message.
var ErrSystemRole = errors.New("system message can only be set at creation")

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged utterance in a conversation. Messages are
// immutable once appended.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is a durable, ordered, append-only sequence of messages owned
// by one user. By convention the first message is a system-role message
// establishing behavior constraints.
type Conversation struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Title     string            `json:"title"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Summary is a lightweight listing view of a conversation.
type Summary struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	MessageCount int               `json:"message_count"`
	LastMessage  *Message          `json:"last_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ContextDoc is an ingested document whose chunks are embedded into the
// vector store.
type ContextDoc struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Tags      string    `json:"tags"` // JSON array stored as text
	CreatedAt time.Time `json:"created_at"`
	VectorIDs string    `json:"vector_ids"` // JSON array stored as text
}

// Job is one unit of background work in the SQLite job queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
