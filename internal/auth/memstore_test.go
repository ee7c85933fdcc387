package auth

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store for service and directory tests. It
// mirrors the semantics of the pg implementation, including the
// conditional consume.
type memStore struct {
	mu         sync.Mutex
	tenants    map[string]Tenant
	principals map[string]Principal
	links      map[string]MagicLink
	sessions   map[string]Session
}

func newMemStore() *memStore {
	return &memStore{
		tenants:    map[string]Tenant{},
		principals: map[string]Principal{},
		links:      map[string]MagicLink{},
		sessions:   map[string]Session{},
	}
}

func (m *memStore) Tenants() TenantStore       { return (*memTenants)(m) }
func (m *memStore) Principals() PrincipalStore { return (*memPrincipals)(m) }
func (m *memStore) MagicLinks() MagicLinkStore { return (*memLinks)(m) }
func (m *memStore) Sessions() SessionStore     { return (*memSessions)(m) }

type memTenants memStore

func (m *memTenants) Create(_ context.Context, t Tenant) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Domain == t.Domain {
			return Tenant{}, ErrConflict
		}
	}
	m.tenants[t.ID] = t
	return t, nil
}

func (m *memTenants) Find(_ context.Context, id string) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (m *memTenants) FindByDomain(_ context.Context, domain string) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Domain == domain {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (m *memTenants) List(_ context.Context) ([]Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *memTenants) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(m.tenants, id)
	return nil
}

type memPrincipals memStore

func (m *memPrincipals) Create(_ context.Context, p Principal) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.principals {
		if existing.Email == p.Email {
			return Principal{}, ErrConflict
		}
	}
	m.principals[p.ID] = p
	return p, nil
}

func (m *memPrincipals) Find(_ context.Context, id string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (m *memPrincipals) FindByEmail(_ context.Context, email string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.principals {
		if p.Email == email {
			return p, nil
		}
	}
	return Principal{}, ErrNotFound
}

func (m *memPrincipals) List(_ context.Context, filter ScopeFilter) ([]Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Principal
	for _, p := range m.principals {
		if p.TenantID != filter.TenantID {
			continue
		}
		if filter.TeamID != nil && (p.TeamID == nil || *p.TeamID != *filter.TeamID) {
			continue
		}
		if filter.PrincipalID != nil && p.ID != *filter.PrincipalID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memPrincipals) Update(_ context.Context, id string, upd PrincipalUpdate) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	if upd.Email != nil {
		p.Email = *upd.Email
	}
	if upd.Role != nil {
		p.Role = *upd.Role
	}
	if upd.ClearTeamID {
		p.TeamID = nil
	} else if upd.TeamID != nil {
		p.TeamID = upd.TeamID
	}
	m.principals[id] = p
	return p, nil
}

func (m *memPrincipals) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[id]; !ok {
		return ErrNotFound
	}
	delete(m.principals, id)
	return nil
}

type memLinks memStore

func (m *memLinks) Create(_ context.Context, l MagicLink) (MagicLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[l.ID] = l
	return l, nil
}

func (m *memLinks) FindByHash(_ context.Context, tokenHash string) (MagicLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.TokenHash == tokenHash {
			return l, nil
		}
	}
	return MagicLink{}, ErrNotFound
}

func (m *memLinks) DeleteUnredeemed(_ context.Context, principalID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, l := range m.links {
		if l.PrincipalID == principalID && l.UsedAt == nil {
			delete(m.links, id)
			n++
		}
	}
	return n, nil
}

func (m *memLinks) Consume(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok || l.UsedAt != nil {
		return false, nil
	}
	l.UsedAt = &at
	m.links[id] = l
	return true, nil
}

func (m *memLinks) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, l := range m.links {
		if !now.Before(l.ExpiresAt) || l.UsedAt != nil {
			delete(m.links, id)
			n++
		}
	}
	return n, nil
}

type memSessions memStore

func (m *memSessions) Create(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memSessions) FindByHash(_ context.Context, tokenHash string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (m *memSessions) DeleteByHash(_ context.Context, tokenHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.TokenHash == tokenHash {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteByPrincipal(_ context.Context, principalID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.PrincipalID == principalID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
