// Package memory provides the local fallback row store used when the real
// backend is degraded, and doubles as the test double for the row port.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/store"
)

// Store is a mutex-guarded in-memory row store. Rows are matched by
// equality filters the same way the real backend applies them, so callers
// receive identically shaped data regardless of source.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
}

// New creates an empty Store.
func New() *Store {
	return &Store{tables: make(map[string][]store.Row)}
}

func matches(row store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		v, ok := row[f.Column]
		if !ok || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func clone(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Select implements store.RowStore.
func (s *Store) Select(ctx context.Context, table string, filters ...store.Filter) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Row
	for _, row := range s.tables[table] {
		if matches(row, filters) {
			out = append(out, clone(row))
		}
	}
	return out, nil
}

// Insert implements store.RowStore, assigning an id when none is provided.
func (s *Store) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := clone(row)
	if _, ok := stored["id"]; !ok {
		// Match the real backend's key shape so rows can later be
		// reconciled by id across sources.
		stored["id"] = uuid.NewString()
	}
	s.tables[table] = append(s.tables[table], stored)
	return clone(stored), nil
}

// Update implements store.RowStore.
func (s *Store) Update(ctx context.Context, table string, changes store.Row, filters ...store.Filter) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Row
	for i, row := range s.tables[table] {
		if !matches(row, filters) {
			continue
		}
		for k, v := range changes {
			row[k] = v
		}
		s.tables[table][i] = row
		out = append(out, clone(row))
	}
	if len(out) == 0 {
		return nil, &apperrors.BackendError{Code: "PGRST116", Message: "no rows matched update"}
	}
	return out, nil
}

// Delete implements store.RowStore. Deleting zero rows is not an error,
// matching the real backend.
func (s *Store) Delete(ctx context.Context, table string, filters ...store.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tables[table][:0]
	for _, row := range s.tables[table] {
		if !matches(row, filters) {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept
	return nil
}

// Apply folds a change-feed event into the table, keeping this store
// usable as a warm fallback mirror of the real backend.
func (s *Store) Apply(ev store.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := func(row store.Row) string {
		v, _ := row["id"].(string)
		return v
	}

	switch ev.Type {
	case store.EventInsert, store.EventUpdate:
		target := id(ev.New)
		if target == "" {
			return
		}
		for i, row := range s.tables[ev.Table] {
			if id(row) == target {
				s.tables[ev.Table][i] = clone(ev.New)
				return
			}
		}
		s.tables[ev.Table] = append(s.tables[ev.Table], clone(ev.New))
	case store.EventDelete:
		target := id(ev.Old)
		if target == "" {
			return
		}
		kept := s.tables[ev.Table][:0]
		for _, row := range s.tables[ev.Table] {
			if id(row) != target {
				kept = append(kept, row)
			}
		}
		s.tables[ev.Table] = kept
	}
}

// Seed replaces a table's contents. Test and bootstrap helper.
func (s *Store) Seed(table string, rows []store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		copied = append(copied, clone(r))
	}
	s.tables[table] = copied
}
