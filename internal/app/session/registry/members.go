package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicebox/internal/domain/track"
)

var (
	ErrInvalidMember = errors.New("invalid member")
	ErrKicked        = errors.New("member was kicked")
)

// Member is a requester that joined a context.
type Member struct {
	ID       string
	Name     string
	JoinedAt time.Time
}

// Members tracks which requesters joined which context, with thread-safe access.
type Members struct {
	mu       sync.RWMutex
	contexts map[string]map[string]*Member
	kicked   map[string]map[string]struct{}
}

// NewMembers creates an empty membership table.
func NewMembers() *Members {
	return &Members{
		contexts: make(map[string]map[string]*Member),
		kicked:   make(map[string]map[string]struct{}),
	}
}

// Join records requester as a member of contextID. Joining twice keeps the
// original join time and reports false. Kicked requesters cannot rejoin.
func (m *Members) Join(contextID string, requester track.Requester) (bool, error) {
	if requester.ID == "" {
		return false, errors.Wrap(ErrInvalidMember, "requester id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, kicked := m.kicked[contextID][requester.ID]; kicked {
		return false, errors.Wrapf(ErrKicked, "requester %s in context %s", requester.ID, contextID)
	}

	members, ok := m.contexts[contextID]
	if !ok {
		members = make(map[string]*Member)
		m.contexts[contextID] = members
	}
	if existing, ok := members[requester.ID]; ok {
		existing.Name = requester.Name
		return false, nil
	}

	members[requester.ID] = &Member{
		ID:       requester.ID,
		Name:     requester.Name,
		JoinedAt: time.Now(),
	}
	return true, nil
}

// Validate checks that requesterID joined contextID.
func (m *Members) Validate(contextID, requesterID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.contexts[contextID][requesterID]; !ok {
		return ErrInvalidMember
	}
	return nil
}

// Leave removes requesterID from contextID and reports whether it was a member.
func (m *Members) Leave(contextID, requesterID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(contextID, requesterID)
}

func (m *Members) leaveLocked(contextID, requesterID string) bool {
	members, ok := m.contexts[contextID]
	if !ok {
		return false
	}
	if _, ok := members[requesterID]; !ok {
		return false
	}
	delete(members, requesterID)
	if len(members) == 0 {
		delete(m.contexts, contextID)
	}
	return true
}

// Kick removes requesterID from contextID and bars it from rejoining.
// Kicking someone who never joined still bars them.
func (m *Members) Kick(contextID, requesterID string) error {
	if requesterID == "" {
		return errors.Wrap(ErrInvalidMember, "requester id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveLocked(contextID, requesterID)
	kicked, ok := m.kicked[contextID]
	if !ok {
		kicked = make(map[string]struct{})
		m.kicked[contextID] = kicked
	}
	kicked[requesterID] = struct{}{}
	return nil
}

// IsKicked reports whether requesterID was kicked from contextID.
func (m *Members) IsKicked(contextID, requesterID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.kicked[contextID][requesterID]
	return ok
}

// All returns the members of contextID ordered by join time.
func (m *Members) All(contextID string) []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Member, 0, len(m.contexts[contextID]))
	for _, member := range m.contexts[contextID] {
		result = append(result, *member)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result
}
