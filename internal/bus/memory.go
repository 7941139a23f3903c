package bus

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local single-binary
// runs. Mutual exclusion for Claim comes from the store mutex, mirroring the
// single-row atomicity the Postgres implementation gets from its conditional
// UPDATE.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]*Message
}

// NewMemoryStore creates an empty in-memory message store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]*Message)}
}

func (s *MemoryStore) Insert(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, NotFoundError("message %q not found", id)
	}
	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) ListPending(_ context.Context, agent Agent, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []*Message
	for _, msg := range s.messages {
		if msg.To == agent && msg.Status == StatusPending {
			cp := *msg
			msgs = append(msgs, &cp)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *MemoryStore) Claim(_ context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.Status != StatusPending {
		return nil, nil
	}
	msg.Status = StatusProcessing
	msg.UpdatedAt = time.Now().UTC()
	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) MarkDone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return NotFoundError("message %q not found", id)
	}
	if msg.Status == StatusProcessing {
		msg.Status = StatusDone
		msg.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return NotFoundError("message %q not found", id)
	}
	if msg.Status == StatusPending || msg.Status == StatusProcessing {
		msg.Status = StatusFailed
		msg.Error = &reason
		msg.UpdatedAt = time.Now().UTC()
	}
	return nil
}
