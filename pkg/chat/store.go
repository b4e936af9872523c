package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// UnsavedConversationID is the sentinel for a conversation that has not
// completed its first server round-trip.
const UnsavedConversationID int64 = 0

// Message is one turn in a conversation. Content is mutable while the
// assistant reply is still streaming and append-only until finalized.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is an ordered list of messages.
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationStore holds conversations in memory and merges streaming
// deltas into the right message. Exactly one conversation is active in
// the UI at a time, but the store may hold several.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[int64]*Conversation
	order         []int64
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[int64]*Conversation),
	}
}

// AppendMessage inserts a message at the end of the conversation's list,
// creating the conversation if needed. A missing message ID is assigned.
// The stored message is returned.
func (s *ConversationStore) AppendMessage(conversationID int64, msg Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	conv := s.ensureLocked(conversationID, now)
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = now
	return msg
}

// UpdateStreamingMessage merges a cumulative streaming delta. If the last
// message of the conversation carries the given streaming ID its content
// is replaced; otherwise a new assistant message with that ID is appended.
// Repeated calls with monotonically growing cumulative content therefore
// leave exactly one message holding the final string.
func (s *ConversationStore) UpdateStreamingMessage(conversationID int64, streamingID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := s.ensureLocked(conversationID, now)
	conv.UpdatedAt = now

	if n := len(conv.Messages); n > 0 && conv.Messages[n-1].ID == streamingID {
		conv.Messages[n-1].Content = content
		return
	}
	conv.Messages = append(conv.Messages, Message{
		ID:        streamingID,
		Role:      "assistant",
		Content:   content,
		CreatedAt: now,
	})
}

// Promote re-keys a conversation after its first server round-trip
// assigned a real ID. Message order and identity are preserved. A no-op
// if the old ID is unknown or the new ID already exists.
func (s *ConversationStore) Promote(oldID, serverID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if oldID == serverID {
		return
	}
	conv, ok := s.conversations[oldID]
	if !ok {
		return
	}
	if _, exists := s.conversations[serverID]; exists {
		return
	}

	delete(s.conversations, oldID)
	conv.ID = serverID
	s.conversations[serverID] = conv
	for i, id := range s.order {
		if id == oldID {
			s.order[i] = serverID
			break
		}
	}
}

// SetTitle sets a conversation title, creating the conversation if needed.
func (s *ConversationStore) SetTitle(conversationID int64, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := s.ensureLocked(conversationID, now)
	conv.Title = title
	conv.UpdatedAt = now
}

// Get returns a copy of the conversation.
func (s *ConversationStore) Get(conversationID int64) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, false
	}
	return snapshot(conv), true
}

// Conversations returns copies of all conversations in creation order.
func (s *ConversationStore) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, len(s.order))
	for _, id := range s.order {
		if conv, ok := s.conversations[id]; ok {
			out = append(out, snapshot(conv))
		}
	}
	return out
}

// Delete removes a conversation and its messages.
func (s *ConversationStore) Delete(conversationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return
	}
	delete(s.conversations, conversationID)
	for i, id := range s.order {
		if id == conversationID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *ConversationStore) ensureLocked(conversationID int64, now time.Time) *Conversation {
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &Conversation{
			ID:        conversationID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.conversations[conversationID] = conv
		s.order = append(s.order, conversationID)
	}
	return conv
}

func snapshot(conv *Conversation) Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return out
}
