package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateConversation allocates a fresh conversation for ownerID and persists
// it with a single system-role message carrying systemPrompt. The returned
// conversation is fully materialized.
func (s *Store) CreateConversation(ownerID, systemPrompt string, metadata map[string]string) (Conversation, error) {
	now := time.Now().UTC()
	conv := Conversation{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
		Messages: []Message{{
			ID:        uuid.New().String(),
			Role:      RoleSystem,
			Content:   systemPrompt,
			CreatedAt: now,
		}},
	}
	if title, ok := metadata["title"]; ok {
		conv.Title = title
	}

	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return Conversation{}, fmt.Errorf("encoding messages: %w", err)
	}
	metadataJSON, err := marshalMetadata(conv.Metadata)
	if err != nil {
		return Conversation{}, err
	}

	_, err = s.db.Exec(`
		INSERT INTO conversations (id, owner_id, title, created_at, updated_at, messages, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
		string(messagesJSON), metadataJSON,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("inserting conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns the conversation with the given id owned by ownerID.
// Returns ErrNotFound when absent. A row whose serialized state cannot be
// decoded is surfaced as an error, never as ErrNotFound.
func (s *Store) GetConversation(conversationID, ownerID string) (Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, title, created_at, updated_at, messages, metadata
		FROM conversations WHERE id = ? AND owner_id = ?`, conversationID, ownerID)
	return scanConversation(row)
}

// ListConversations returns summaries of ownerID's conversations ordered by
// most recent update, paginated by limit/offset. An owner with no
// conversations yields an empty slice, not an error.
func (s *Store) ListConversations(ownerID string, limit, offset int) ([]Summary, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(`
		SELECT id, owner_id, title, created_at, updated_at, messages, metadata
		FROM conversations WHERE owner_id = ?
		ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		sum := Summary{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
			Metadata:     conv.Metadata,
		}
		if n := len(conv.Messages); n > 0 {
			last := conv.Messages[n-1]
			sum.LastMessage = &last
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// AppendMessage appends a message to an existing conversation and persists
// the updated conversation. The read-modify-write runs under the
// conversation's keyed mutex, so concurrent appends to the same id never
// lose an update. Returns ErrNotFound if the conversation does not exist;
// a conversation is never created as a side effect. Appending a system-role
// message after creation returns ErrSystemRole.
func (s *Store) AppendMessage(conversationID, ownerID string, role Role, content string, metadata map[string]any) (Message, error) {
	if role == RoleSystem {
		return Message{}, ErrSystemRole
	}

	s.locks.Lock(conversationID)
	defer s.locks.Unlock(conversationID)

	conv, err := s.GetConversation(conversationID, ownerID)
	if err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
		Metadata:  metadata,
	}
	conv.Messages = append(conv.Messages, msg)

	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return Message{}, fmt.Errorf("encoding messages: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		string(messagesJSON), now.Format(time.RFC3339), conversationID, ownerID,
	)
	if err != nil {
		return Message{}, fmt.Errorf("updating conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Message{}, err
	}
	if n == 0 {
		return Message{}, ErrNotFound
	}
	return msg, nil
}

// DeleteConversation removes a conversation wholesale. It is idempotent and
// reports whether a conversation was actually deleted.
func (s *Store) DeleteConversation(conversationID, ownerID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ? AND owner_id = ?`, conversationID, ownerID)
	if err != nil {
		return false, fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var conv Conversation
	var createdAt, updatedAt, messagesJSON, metadataJSON string
	err := row.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &createdAt, &updatedAt, &messagesJSON, &metadataJSON)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}

	if conv.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return Conversation{}, fmt.Errorf("decoding messages for conversation %s: %w", conv.ID, err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &conv.Metadata); err != nil {
		return Conversation{}, fmt.Errorf("decoding metadata for conversation %s: %w", conv.ID, err)
	}
	return conv, nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(b), nil
}
