package versionstore

import (
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/stratadb/strata/internal/model"
)

// Store holds every version ever written. Records are kept in an append-only
// arena indexed by write id, value payloads are deduplicated by content id,
// and a mutable current-pointer map resolves each key to its latest write.
// Historical data is immutable; only the current pointers change.
type Store struct {
	mu      sync.RWMutex
	records map[string]*storedRecord // write_id -> record metadata
	values  map[string][]byte        // content_id -> payload (deduplicated)
	current map[string]string        // "namespace:key" -> latest write_id
	order   []string                 // write_ids in insertion order
}

type storedRecord struct {
	contentID       string
	timestamp       int64
	previousWriteID string
	deleted         bool
}

// NewStore creates an empty version store
func NewStore() *Store {
	return &Store{
		records: make(map[string]*storedRecord),
		values:  make(map[string][]byte),
		current: make(map[string]string),
	}
}

// Append stores a record and its payload. The payload is written at most
// once per content id; later identical writes only add record metadata.
// Append does not move the current pointer, callers commit that separately
// via SetCurrent.
func (s *Store) Append(rec *model.VersionedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.WriteID]; exists {
		return
	}

	s.records[rec.WriteID] = &storedRecord{
		contentID:       rec.ContentID,
		timestamp:       rec.Timestamp,
		previousWriteID: rec.PreviousWriteID,
		deleted:         rec.Deleted,
	}
	s.order = append(s.order, rec.WriteID)

	if _, exists := s.values[rec.ContentID]; !exists {
		s.values[rec.ContentID] = append([]byte(nil), rec.Value...)
	}
}

// SetCurrent moves a key's current pointer to the given write
func (s *Store) SetCurrent(key model.FullKey, writeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[key.String()] = writeID
}

// CurrentWriteID returns the write the key's current pointer resolves to
func (s *Store) CurrentWriteID(key model.FullKey) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeID, ok := s.current[key.String()]
	return writeID, ok
}

// Record materializes the record for a write id, payload included
func (s *Store) Record(writeID string) (*model.VersionedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordLocked(writeID)
}

func (s *Store) recordLocked(writeID string) (*model.VersionedRecord, bool) {
	sr, ok := s.records[writeID]
	if !ok {
		return nil, false
	}
	// The stored payload is shared by every record with this content id,
	// so callers get their own copy.
	var value []byte
	if stored, ok := s.values[sr.contentID]; ok {
		value = append([]byte(nil), stored...)
	}
	return &model.VersionedRecord{
		ContentID:       sr.contentID,
		WriteID:         writeID,
		Value:           value,
		Timestamp:       sr.timestamp,
		PreviousWriteID: sr.previousWriteID,
		Deleted:         sr.deleted,
	}, true
}

// Current returns the key's current record
func (s *Store) Current(key model.FullKey) (*model.VersionedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	writeID, ok := s.current[key.String()]
	if !ok {
		return nil, false
	}
	return s.recordLocked(writeID)
}

// VersionAt walks the key's version chain newest-first and returns the
// first record captured at or before the requested timestamp
func (s *Store) VersionAt(key model.FullKey, timestamp int64) (*model.VersionedRecord, bool) {
	for rec := range s.History(key) {
		if rec.Timestamp <= timestamp {
			return rec, true
		}
	}
	return nil, false
}

// History returns a lazy, restartable, newest-first walk of the key's
// version chain, following previous-write pointers to the first write
func (s *Store) History(key model.FullKey) iter.Seq[*model.VersionedRecord] {
	return func(yield func(*model.VersionedRecord) bool) {
		s.mu.RLock()
		writeID, ok := s.current[key.String()]
		s.mu.RUnlock()

		for ok && writeID != "" {
			s.mu.RLock()
			rec, found := s.recordLocked(writeID)
			s.mu.RUnlock()
			if !found {
				return
			}
			if !yield(rec) {
				return
			}
			writeID = rec.PreviousWriteID
		}
	}
}

// Enumerate yields every (write_id, content_id) pair in insertion order.
// The order is stable within a process lifetime; external reconciliation
// builds its set-difference structures from this.
func (s *Store) Enumerate() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		s.mu.RLock()
		order := append([]string(nil), s.order...)
		s.mu.RUnlock()

		for _, writeID := range order {
			s.mu.RLock()
			sr, ok := s.records[writeID]
			s.mu.RUnlock()
			if !ok {
				continue
			}
			if !yield(writeID, sr.contentID) {
				return
			}
		}
	}
}

// ContainsKey reports whether the key has a live (non-tombstone) current
// version
func (s *Store) ContainsKey(key model.FullKey) bool {
	rec, ok := s.Current(key)
	return ok && !rec.Deleted
}

// KeyCount returns the number of keys with a live current version
func (s *Store) KeyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, writeID := range s.current {
		if sr, ok := s.records[writeID]; ok && !sr.deleted {
			count++
		}
	}
	return count
}

// VersionCount returns the total number of records ever written
func (s *Store) VersionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// UniqueValueCount returns the number of distinct payloads retained.
// The gap between VersionCount and this is the deduplication win.
func (s *Store) UniqueValueCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Namespaces returns the sorted set of namespaces with live keys
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for full, writeID := range s.current {
		sr, ok := s.records[writeID]
		if !ok || sr.deleted {
			continue
		}
		if ns, _, found := strings.Cut(full, ":"); found {
			seen[ns] = true
		}
	}

	namespaces := make([]string, 0, len(seen))
	for ns := range seen {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	return namespaces
}

// Scan yields the live keys of a namespace in sorted order together with
// their current records. The key set is snapshotted up front, so records
// written during iteration may or may not appear.
func (s *Store) Scan(namespace string) iter.Seq2[string, *model.VersionedRecord] {
	return func(yield func(string, *model.VersionedRecord) bool) {
		for _, key := range s.Keys(namespace) {
			rec, ok := s.Current(model.FullKey{Namespace: namespace, Key: key})
			if !ok || rec.Deleted {
				continue
			}
			if !yield(key, rec) {
				return
			}
		}
	}
}

// Keys returns the sorted live keys within a namespace
func (s *Store) Keys(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := namespace + ":"
	var keys []string
	for full, writeID := range s.current {
		sr, ok := s.records[writeID]
		if !ok || sr.deleted {
			continue
		}
		if strings.HasPrefix(full, prefix) {
			keys = append(keys, strings.TrimPrefix(full, prefix))
		}
	}
	sort.Strings(keys)
	return keys
}
