package zauth

import (
	"net"
	"sort"
	"sync"
)

// CredentialStore supplies the material the default validator checks
// requests against: PLAIN users, allowed CURVE client keys, and
// address allow/deny rules.
type CredentialStore interface {
	// PlainSecret returns the secret for a PLAIN username; ok is false
	// for unknown users
	PlainSecret(username string) (secret string, ok bool, err error)
	SetPlain(username, secret string) error
	RemovePlain(username string) error
	PlainUsernames() ([]string, error)

	// CurveAllowed reports whether a Z85-encoded client public key is
	// accepted
	CurveAllowed(publicKey string) (bool, error)
	AllowCurve(publicKey string) error
	RemoveCurve(publicKey string) error

	// CheckAddress applies the deny list first, then the allow list:
	// a denied address fails, and when an allow list exists every
	// address not on it fails
	CheckAddress(address string) (bool, error)
	Allow(addresses ...string) error
	Deny(addresses ...string) error

	Close() error
}

// ruleMatches reports whether an allow/deny entry covers a peer
// address. Entries match the full address or just its host part, so
// "127.0.0.1" covers "127.0.0.1:53412".
func ruleMatches(rules map[string]bool, address string) bool {
	if rules[address] {
		return true
	}
	if host, _, err := net.SplitHostPort(address); err == nil && rules[host] {
		return true
	}
	return false
}

// MemoryStore is a CredentialStore held entirely in memory, for
// embedding a handler in-process and for tests
type MemoryStore struct {
	mu      sync.RWMutex
	plain   map[string]string
	curve   map[string]bool
	allowed map[string]bool
	denied  map[string]bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plain:   make(map[string]string),
		curve:   make(map[string]bool),
		allowed: make(map[string]bool),
		denied:  make(map[string]bool),
	}
}

func (s *MemoryStore) PlainSecret(username string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.plain[username]
	return secret, ok, nil
}

func (s *MemoryStore) SetPlain(username, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plain[username] = secret
	return nil
}

func (s *MemoryStore) RemovePlain(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plain, username)
	return nil
}

func (s *MemoryStore) PlainUsernames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.plain))
	for name := range s.plain {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) CurveAllowed(publicKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curve[publicKey], nil
}

func (s *MemoryStore) AllowCurve(publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curve[publicKey] = true
	return nil
}

func (s *MemoryStore) RemoveCurve(publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.curve, publicKey)
	return nil
}

func (s *MemoryStore) CheckAddress(address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ruleMatches(s.denied, address) {
		return false, nil
	}
	if len(s.allowed) > 0 && !ruleMatches(s.allowed, address) {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Allow(addresses ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range addresses {
		s.allowed[addr] = true
	}
	return nil
}

func (s *MemoryStore) Deny(addresses ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range addresses {
		s.denied[addr] = true
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
