package session

import (
	"github.com/example/autoescola/internal/domain"
)

// Phase tracks how far an identity has been loaded.
type Phase int

const (
	// PhasePending holds the minimal identity from the sign-in response while the profile loads.
	PhasePending Phase = iota + 1
	// PhaseResolved holds the identity merged with its stored profile.
	PhaseResolved
	// PhaseDegraded holds the minimal identity after the profile lookup failed or timed out.
	PhaseDegraded
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseResolved:
		return "resolved"
	case PhaseDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Slot is one role's live session.
type Slot struct {
	Identity domain.Identity
	Token    string
	Phase    Phase
}

// SessionSet holds at most one slot per role. The zero value is empty.
// Methods return modified copies; a SessionSet is never mutated in place.
type SessionSet struct {
	slots   [3]Slot
	present [3]bool
}

func index(role domain.Role) (int, bool) {
	switch role {
	case domain.RoleStudent:
		return 0, true
	case domain.RoleInstructor:
		return 1, true
	case domain.RoleAdmin:
		return 2, true
	}
	return 0, false
}

// Get returns the slot for role.
func (s SessionSet) Get(role domain.Role) (Slot, bool) {
	i, ok := index(role)
	if !ok || !s.present[i] {
		return Slot{}, false
	}
	return s.slots[i], true
}

// Has reports whether role has a live slot.
func (s SessionSet) Has(role domain.Role) bool {
	_, ok := s.Get(role)
	return ok
}

// With returns a copy of s with role's slot replaced.
func (s SessionSet) With(role domain.Role, slot Slot) SessionSet {
	i, ok := index(role)
	if !ok {
		return s
	}
	slot.Identity.Role = role
	s.slots[i] = slot
	s.present[i] = true
	return s
}

// Without returns a copy of s with role's slot removed.
func (s SessionSet) Without(role domain.Role) SessionSet {
	i, ok := index(role)
	if !ok {
		return s
	}
	s.slots[i] = Slot{}
	s.present[i] = false
	return s
}

// Roles lists the roles with a live slot in priority order.
func (s SessionSet) Roles() []domain.Role {
	var out []domain.Role
	for _, role := range domain.RolesByPriority {
		if s.Has(role) {
			out = append(out, role)
		}
	}
	return out
}

// Len returns the number of live slots.
func (s SessionSet) Len() int {
	n := 0
	for _, p := range s.present {
		if p {
			n++
		}
	}
	return n
}

// DeriveActive resolves the active identity of s.
//
// An explicit preference wins while its slot is live. Otherwise the highest
// priority live role is used: admin, then instructor, then student.
func DeriveActive(s SessionSet, preferred domain.Role) (domain.Identity, bool) {
	if slot, ok := s.Get(preferred); ok {
		return slot.Identity, true
	}
	for _, role := range domain.RolesByPriority {
		if slot, ok := s.Get(role); ok {
			return slot.Identity, true
		}
	}
	return domain.Identity{}, false
}
