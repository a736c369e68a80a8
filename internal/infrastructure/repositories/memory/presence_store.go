package memory

import (
	"fmt"
	"sort"
	"sync"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"

	"github.com/samber/lo"
)

type room struct {
	members []domain.Member // join order
}

func (r *room) remove(id domain.ConnectionID) (domain.Member, bool) {
	for i, m := range r.members {
		if m.ID == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return m, true
		}
	}
	return domain.Member{}, false
}

// PresenceStore keeps room membership in memory. Both indexes are
// updated under one lock so they can never disagree.
type PresenceStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*room
	conns map[domain.ConnectionID]domain.RoomID
}

var _ ports.PresenceStore = (*PresenceStore)(nil)

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		rooms: make(map[domain.RoomID]*room),
		conns: make(map[domain.ConnectionID]domain.RoomID),
	}
}

func (s *PresenceStore) Join(connID domain.ConnectionID, roomID domain.RoomID, displayName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.conns[connID]; ok {
		if current == roomID {
			return false, nil
		}
		return false, domain.ErrAlreadyInRoom
	}

	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{}
		s.rooms[roomID] = r
	}
	r.members = append(r.members, domain.Member{ID: connID, DisplayName: displayName})
	s.conns[connID] = roomID
	return true, nil
}

func (s *PresenceStore) Leave(connID domain.ConnectionID) (domain.RoomID, domain.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.conns[connID]
	if !ok {
		return "", domain.Member{}, false
	}
	delete(s.conns, connID)

	r := s.rooms[roomID]
	member, _ := r.remove(connID)
	if len(r.members) == 0 {
		delete(s.rooms, roomID)
	}
	return roomID, member, true
}

func (s *PresenceStore) MembersOf(roomID domain.RoomID) []domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return []domain.Member{}
	}
	out := make([]domain.Member, len(r.members))
	copy(out, r.members)
	return out
}

func (s *PresenceStore) CountOf(roomID domain.RoomID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.rooms[roomID]; ok {
		return len(r.members)
	}
	return 0
}

func (s *PresenceStore) RoomOf(connID domain.ConnectionID) (domain.RoomID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.conns[connID]
	return roomID, ok
}

// Rooms returns the ids of all non-empty rooms, sorted.
func (s *PresenceStore) Rooms() []domain.RoomID {
	s.mu.RLock()
	ids := lo.Keys(s.rooms)
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Check verifies that the room and connection indexes agree and
// returns the first inconsistency found.
func (s *PresenceStore) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := 0
	for roomID, r := range s.rooms {
		if len(r.members) == 0 {
			return fmt.Errorf("empty room %q retained", roomID)
		}
		for _, m := range r.members {
			if s.conns[m.ID] != roomID {
				return fmt.Errorf("member %q of room %q has connection entry %q", m.ID, roomID, s.conns[m.ID])
			}
			seen++
		}
	}
	if seen != len(s.conns) {
		return fmt.Errorf("%d connection entries but %d room members", len(s.conns), seen)
	}
	return nil
}
