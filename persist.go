package main

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
)

// transcriptStore keeps a local copy of every message the channel delivered,
// in a PebbleDB key-value store. Keys are 4-byte big-endian room ids followed
// by 8-byte big-endian sequence numbers, so a room's transcript iterates in
// arrival order.
type transcriptStore struct {
	db   *pebble.DB
	mu   sync.Mutex
	next map[int]uint64
}

func openTranscriptStore(dir string) (*transcriptStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &transcriptStore{db: db, next: make(map[int]uint64)}, nil
}

func roomKey(roomID int, seq uint64) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint32(key[:4], uint32(roomID))
	binary.BigEndian.PutUint64(key[4:], seq)
	return key
}

func roomBounds(roomID int) (lower, upper []byte) {
	lower = make([]byte, 4)
	binary.BigEndian.PutUint32(lower, uint32(roomID))
	upper = make([]byte, 4)
	binary.BigEndian.PutUint32(upper, uint32(roomID)+1)
	return lower, upper
}

// seq returns the next sequence number for the room, discovering it from the
// last stored key on first use after open.
func (s *transcriptStore) seq(roomID int) (uint64, error) {
	if n, ok := s.next[roomID]; ok {
		s.next[roomID] = n + 1
		return n, nil
	}
	lower, upper := roomBounds(roomID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()
	var n uint64
	if it.Last() && len(it.Key()) == 12 {
		n = binary.BigEndian.Uint64(it.Key()[4:]) + 1
	}
	s.next[roomID] = n + 1
	return n, nil
}

// Append persists one delivered message at the end of the room transcript.
func (s *transcriptStore) Append(roomID int, m Message) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.seq(roomID)
	if err != nil {
		return err
	}
	val, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Set(roomKey(roomID, n), val, pebble.Sync)
}

// LoadRecent returns up to limit of the newest messages for the room, oldest
// first. limit <= 0 loads the whole transcript.
func (s *transcriptStore) LoadRecent(roomID, limit int) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	lower, upper := roomBounds(roomID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	var out []Message
	for ok := it.Last(); ok && (limit <= 0 || len(out) < limit); ok = it.Prev() {
		var m Message
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	// reverse back to arrival order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *transcriptStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
