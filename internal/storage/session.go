package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Provider resolves a qualified table reference ("file.sheet" or a bare
// name) to a fully materialized Table. Implementations own all I/O; the
// engine never learns where rows came from.
type Provider interface {
	Resolve(ctx context.Context, qualifiedName string) (*Table, error)
}

// TableNotFoundError reports a table reference that no provider and no
// temporary table could satisfy.
type TableNotFoundError struct {
	Name string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table not found: %q", e.Name)
}

// Session is the per-session table namespace: base tables supplied by the
// Provider plus temporary tables created with CREATE TABLE AS. A temporary
// name shadows a base table of the same name for the rest of the session.
// Session is safe for concurrent use; mutations are whole-table
// replacements, so a single mutex suffices.
type Session struct {
	ID string

	mu       sync.RWMutex
	provider Provider
	temps    map[string]*Table
}

// NewSession creates a session backed by the given provider. A nil provider
// is allowed; such a session can only see temporary tables.
func NewSession(p Provider) *Session {
	return &Session{
		ID:       uuid.NewString(),
		provider: p,
		temps:    make(map[string]*Table),
	}
}

// Resolve returns the table for a qualified name, checking temporary tables
// before the provider.
func (s *Session) Resolve(ctx context.Context, name string) (*Table, error) {
	s.mu.RLock()
	t, ok := s.temps[strings.ToLower(name)]
	s.mu.RUnlock()
	if ok {
		return t, nil
	}
	if s.provider == nil {
		return nil, &TableNotFoundError{Name: name}
	}
	return s.provider.Resolve(ctx, name)
}

// PutTemp registers (or replaces) a temporary table under the given name.
func (s *Session) PutTemp(name string, t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temps[strings.ToLower(name)] = t
}

// DropTemp removes a temporary table. Dropping an unknown name is an error
// so callers can surface typos.
func (s *Session) DropTemp(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := s.temps[key]; !ok {
		return &TableNotFoundError{Name: name}
	}
	delete(s.temps, key)
	return nil
}

// ListTemp returns the names of all temporary tables, sorted.
func (s *Session) ListTemp() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.temps))
	for name := range s.temps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ClearTemp drops every temporary table.
func (s *Session) ClearTemp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temps = make(map[string]*Table)
}
