// Package memory persists pipeline run records as a JSON array on disk.
//
// The loader is tolerant: besides the canonical array it accepts a single
// JSON value and JSON Lines, skipping lines it cannot parse. Every write
// replaces the file atomically with the canonical array.
package memory

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// Record is one persisted pipeline run. Keys beyond the well known ones are
// preserved as-is.
type Record map[string]any

// Well known record keys.
const (
	KeySessionID = "session_id"
	KeyTimestamp = "timestamp"
	KeyQuery     = "query"
	KeyFindings  = "findings"
	KeySummary   = "summary"
	KeyCritique  = "critique"
	KeyDraft     = "draft"
	KeyRunID     = "run_id"
)

// SessionID returns the record's session identifier, or "" when absent or not
// a string.
func (r Record) SessionID() string {
	s, _ := r[KeySessionID].(string)
	return s
}

// String returns the string stored under key, or "".
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Store is an append-only record log backed by a single JSON file.
// It is safe for concurrent use within one process.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries []any
	skipped int

	rename func(oldpath, newpath string) error
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, rename: os.Rename}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory sequence with the file's contents.
// Unparseable content is dropped; only I/O errors are returned.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.entries, s.skipped = nil, 0
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read memory store: %w", err)
	}

	entries, skipped := Decode(data)

	s.mu.Lock()
	s.entries, s.skipped = entries, skipped
	s.mu.Unlock()
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Skipped returns how many non-blank lines the last load had to drop.
func (s *Store) Skipped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Append adds rec to the end of the log and persists the whole log. On a
// persist failure the record is not kept and the file is left untouched.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, cloneValue(map[string]any(rec)))
	if err := s.persistLocked(s.entries); err != nil {
		s.entries[len(s.entries)-1] = nil
		s.entries = s.entries[:len(s.entries)-1]
		return err
	}
	return nil
}

// Clear empties the log and persists the empty array.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked([]any{}); err != nil {
		return err
	}
	s.entries = nil
	return nil
}

// FindLastBySession returns the most recent record for sessionID.
func (s *Store) FindLastBySession(sessionID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		rec, ok := asRecord(s.entries[i])
		if ok && rec.SessionID() == sessionID {
			return cloneRecord(rec), true
		}
	}
	return nil, false
}

// All returns a copy of every entry in insertion order, including entries
// that are not JSON objects.
func (s *Store) All() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]any, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneValue(e)
	}
	return out
}

// Records returns the entries that are JSON objects, in insertion order.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.entries))
	for _, e := range s.entries {
		if rec, ok := asRecord(e); ok {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

func (s *Store) persistLocked(entries []any) error {
	if entries == nil {
		entries = []any{}
	}
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data, s.rename)
}

func asRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return Record(m), true
	default:
		return nil, false
	}
}

func cloneRecord(r Record) Record {
	return Record(cloneValue(map[string]any(r)).(map[string]any))
}

// cloneValue deep-copies decoded JSON so callers never share the store's
// maps or slices.
func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return cloneValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
