package membership

import (
	"context"
	"sync"
)

// Memory is a Provider kept entirely in process memory.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]set
	users  map[string]set
}

func NewMemory() *Memory {
	return &Memory{
		groups: make(map[string]set),
		users:  make(map[string]set),
	}
}

func (m *Memory) GroupsOf(_ context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[userID].sorted(), nil
}

func (m *Memory) UsersOf(_ context.Context, groupID string) ([]string, error) {
	if groupID == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groups[groupID].sorted(), nil
}

func (m *Memory) EnsureGroup(_ context.Context, groupID string) error {
	if groupID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[groupID]; !ok {
		m.groups[groupID] = make(set)
	}
	return nil
}

func (m *Memory) AddMembership(_ context.Context, groupID, userID string) error {
	if groupID == "" || userID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.groups[groupID]
	if !ok {
		members = make(set)
		m.groups[groupID] = members
	}
	members[userID] = struct{}{}

	groups, ok := m.users[userID]
	if !ok {
		groups = make(set)
		m.users[userID] = groups
	}
	groups[groupID] = struct{}{}
	return nil
}

func (m *Memory) EnsureUser(_ context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = make(set)
	}
	return nil
}

// HasGroup reports whether groupID exists, with or without members.
func (m *Memory) HasGroup(groupID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.groups[groupID]
	return ok
}
