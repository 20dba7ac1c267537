package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process MessageStore for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message
	sids     map[string]struct{}
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sids: make(map[string]struct{}),
		now:  time.Now,
	}
}

var _ MessageStore = (*MemoryStore)(nil)

func (s *MemoryStore) RecordMessage(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.MessageSid) == "" {
		return errors.New("conversation: message sid required")
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("conversation: invalid role %q", msg.Role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sids[msg.MessageSid]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.MessageSid)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	msg.Timestamp = msg.Timestamp.UTC()
	s.sids[msg.MessageSid] = struct{}{}
	s.messages = append(s.messages, msg)
	return nil
}

// conversation returns the messages for address in insertion-stable time order.
func (s *MemoryStore) conversation(address string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Message
	for _, m := range s.messages {
		if m.From == address || m.To == address {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (s *MemoryStore) FetchRecentHistory(_ context.Context, address, excludeSid string, limit int) ([]HistoryTurn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var turns []HistoryTurn
	for _, m := range s.conversation(address) {
		if m.MessageSid == excludeSid || m.Body == "" {
			continue
		}
		turns = append(turns, HistoryTurn{Role: m.Role, Body: m.Body})
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (s *MemoryStore) FetchFullConversation(_ context.Context, address string) ([]Message, error) {
	return s.conversation(address), nil
}
