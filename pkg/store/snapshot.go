package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/pebble"

	"chathub/pkg/models"
)

// The snapshot surface serializes the whole store as one flat message
// list ordered by timestamp, tombstones included. It is the
// backup/restore format and the reference shape for round-trip tests:
// importing an export reproduces the same dialog partition and an
// equal-or-greater id counter.

// Export writes every message as a JSON array to w.
func (s *Store) Export(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return errClosed
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	var msgs []models.Message
	pfx := []byte(dialogPrefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := iter.Error(); err != nil {
		return err
	}
	sortByTimestamp(msgs)
	if msgs == nil {
		msgs = []models.Message{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(msgs)
}

// Import loads a flat message list produced by Export. Records keep their
// ids; the id counter advances to max(imported, current). Malformed input
// is rejected before any write happens.
func (s *Store) Import(r io.Reader) (int, error) {
	var msgs []models.Message
	if err := json.NewDecoder(r).Decode(&msgs); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, errClosed
	}
	var max uint64
	b := s.db.NewBatch()
	n := 0
	for _, m := range msgs {
		if m.ID == 0 || m.From == "" || m.To == "" {
			continue
		}
		m.From = models.CanonIdentity(m.From)
		m.To = models.CanonIdentity(m.To)
		pair := models.DialogKey(m.From, m.To)
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		_ = b.Set(msgKey(pair, m.ID), data, nil)
		_ = b.Set(idKey(m.ID), []byte(pair), nil)
		if m.ID > max {
			max = m.ID
		}
		n++
	}
	for {
		cur := s.lastID.Load()
		if max <= cur || s.lastID.CompareAndSwap(cur, max) {
			break
		}
	}
	_ = b.Set([]byte(highIDKey), []byte(strconv.FormatUint(s.lastID.Load(), 10)), nil)
	if err := s.db.Apply(b, pebble.Sync); err != nil {
		return 0, err
	}
	return n, nil
}
