package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"chathub/pkg/logger"
	"chathub/pkg/models"
)

// Store is the durable dialog store: every message between an unordered
// identity pair, ordered, with a process-wide monotonic id. All mutating
// operations are written through to pebble with Sync before they return,
// so a crash after a completed call never loses that call's effect.
type Store struct {
	mu     sync.RWMutex
	db     *pebble.DB
	path   string
	lastID atomic.Uint64
}

// Open opens (or creates) the store at path and recovers the id counter
// as max(existing ids)+1. A corrupt database is moved aside and replaced
// with an empty one rather than failing startup.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Warn("store_open_failed_recovering", zap.String("path", path), zap.Error(err))
		aside := path + ".corrupt." + time.Now().UTC().Format("20060102T150405Z")
		if rerr := os.Rename(path, aside); rerr != nil && !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		db, err = pebble.Open(path, &pebble.Options{})
		if err != nil {
			return nil, fmt.Errorf("open %s after recovery: %w", path, err)
		}
		logger.Log.Warn("store_recovered_empty", zap.String("path", path), zap.String("moved_to", aside))
	}
	s := &Store{db: db, path: path}
	if err := s.recoverLastID(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Log.Info("store_opened", zap.String("path", path), zap.Uint64("last_id", s.lastID.Load()))
	return s, nil
}

// recoverLastID scans the id index and the high-water mark. The high-water
// mark survives retention purges, so purged ids are never reassigned.
func (s *Store) recoverLastID() error {
	var max uint64
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	pfx := []byte(idPrefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		id, ok := parseIDKey(iter.Key())
		if !ok {
			logger.Log.Warn("store_skip_bad_id_key", zap.ByteString("key", iter.Key()))
			continue
		}
		if id > max {
			max = id
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if v, closer, err := s.db.Get([]byte(highIDKey)); err == nil {
		if hw, perr := strconv.ParseUint(string(v), 10, 64); perr == nil && hw > max {
			max = hw
		}
		_ = closer.Close()
	}
	s.lastID.Store(max)
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// LastID returns the highest id assigned so far.
func (s *Store) LastID() uint64 { return s.lastID.Load() }

// Append assigns the next id to m, stamps missing fields and writes the
// message durably. Two concurrent appends never share an id.
func (s *Store) Append(m models.Message) (models.Message, error) {
	m.From = models.CanonIdentity(m.From)
	m.To = models.CanonIdentity(m.To)
	m.ID = s.lastID.Add(1)
	if m.TS == 0 {
		m.TS = time.Now().UTC().UnixNano()
	}
	if !m.Status.Valid() {
		m.Status = models.StatusSent
	}
	pair := models.DialogKey(m.From, m.To)

	data, err := json.Marshal(m)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return models.Message{}, errClosed
	}
	b := s.db.NewBatch()
	_ = b.Set(msgKey(pair, m.ID), data, nil)
	_ = b.Set(idKey(m.ID), []byte(pair), nil)
	_ = b.Set([]byte(highIDKey), []byte(strconv.FormatUint(m.ID, 10)), nil)
	if err := s.db.Apply(b, pebble.Sync); err != nil {
		logger.Log.Error("append_write_failed", zap.Uint64("id", m.ID), zap.Error(err))
		mutationFailures.WithLabelValues("append").Inc()
		return models.Message{}, err
	}
	mutations.WithLabelValues("append").Inc()
	logger.Log.Debug("message_appended", zap.Uint64("id", m.ID), zap.String("dialog", pair))
	return m, nil
}

var errClosed = fmt.Errorf("store is closed")

// Get returns the message with the given id, including tombstones.
func (s *Store) Get(id uint64) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, _, ok := s.lookup(id)
	return m, ok
}

// lookup resolves id -> (message, pair). Callers hold s.mu.
func (s *Store) lookup(id uint64) (models.Message, string, bool) {
	if s.db == nil {
		return models.Message{}, "", false
	}
	pv, closer, err := s.db.Get(idKey(id))
	if err != nil {
		return models.Message{}, "", false
	}
	pair := string(pv)
	_ = closer.Close()

	mv, closer, err := s.db.Get(msgKey(pair, id))
	if err != nil {
		return models.Message{}, "", false
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(mv, &m); err != nil {
		logger.Log.Warn("store_skip_bad_record", zap.Uint64("id", id), zap.Error(err))
		return models.Message{}, "", false
	}
	return m, pair, true
}

// History returns all non-deleted messages between a and b, ordered by
// timestamp ascending (id breaks ties). No dialog yet means an empty
// slice, not an error.
func (s *Store) History(a, b string) ([]models.Message, error) {
	pair := models.DialogKey(a, b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}
	msgs, err := s.scanDialog(pair, false)
	if err != nil {
		return nil, err
	}
	sortByTimestamp(msgs)
	return msgs, nil
}

// scanDialog reads a dialog's messages in key (id) order. Callers hold
// s.mu. Undecodable records are skipped with a warning.
func (s *Store) scanDialog(pair string, includeDeleted bool) ([]models.Message, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := dialogMsgPrefix(pair)
	msgs := []models.Message{}
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Log.Warn("store_skip_bad_record", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		if m.Deleted && !includeDeleted {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, iter.Error()
}

func sortByTimestamp(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].TS != msgs[j].TS {
			return msgs[i].TS < msgs[j].TS
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// UpdateStatus advances the status of the message with the given id.
// Unknown ids and regressing transitions are no-ops; the returned bool
// tells the caller whether anything changed (and is worth notifying).
func (s *Store) UpdateStatus(id uint64, st models.Status) (models.Message, bool) {
	if !st.Valid() {
		return models.Message{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, pair, ok := s.lookup(id)
	if !ok || m.Deleted {
		return models.Message{}, false
	}
	if st.Rank() <= m.Status.Rank() {
		return models.Message{}, false
	}
	m.Status = st
	if !s.writeBack(pair, m, "status") {
		return models.Message{}, false
	}
	return m, true
}

// UpdateText replaces the text of the message with the given id and
// refreshes its timestamp. Unknown ids are a no-op.
func (s *Store) UpdateText(id uint64, text string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, pair, ok := s.lookup(id)
	if !ok || m.Deleted {
		return models.Message{}, false
	}
	m.Text = text
	m.TS = time.Now().UTC().UnixNano()
	if !s.writeBack(pair, m, "edit") {
		return models.Message{}, false
	}
	return m, true
}

// Remove soft-deletes the message with the given id. The tombstone keeps
// the id out of circulation and out of history; the retention sweep hard
// deletes it later. Returns whether a removal actually occurred.
func (s *Store) Remove(id uint64) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, pair, ok := s.lookup(id)
	if !ok || m.Deleted {
		return models.Message{}, false
	}
	m.Deleted = true
	m.DeletedTS = time.Now().UTC().UnixNano()
	if !s.writeBack(pair, m, "delete") {
		return models.Message{}, false
	}
	return m, true
}

// writeBack rewrites a message record in place. Callers hold s.mu.
func (s *Store) writeBack(pair string, m models.Message, op string) bool {
	data, err := json.Marshal(m)
	if err != nil {
		logger.Log.Error("writeback_marshal_failed", zap.Uint64("id", m.ID), zap.Error(err))
		mutationFailures.WithLabelValues(op).Inc()
		return false
	}
	if err := s.db.Set(msgKey(pair, m.ID), data, pebble.Sync); err != nil {
		logger.Log.Error("writeback_failed", zap.Uint64("id", m.ID), zap.String("op", op), zap.Error(err))
		mutationFailures.WithLabelValues(op).Inc()
		return false
	}
	mutations.WithLabelValues(op).Inc()
	return true
}

// Purge hard-deletes tombstones whose deletion time is before cutoff.
// Ids remain retired via the high-water mark. Returns the purge count.
func (s *Store) Purge(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, errClosed
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	pfx := []byte(dialogPrefix)
	type victim struct {
		pair string
		id   uint64
	}
	var victims []victim
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if !m.Deleted || m.DeletedTS >= cutoff.UnixNano() {
			continue
		}
		if pair, ok := pairFromDialogKey(iter.Key()); ok {
			victims = append(victims, victim{pair: pair, id: m.ID})
		}
	}
	ierr := iter.Error()
	_ = iter.Close()
	if ierr != nil {
		return 0, ierr
	}
	if len(victims) == 0 {
		return 0, nil
	}
	b := s.db.NewBatch()
	for _, v := range victims {
		_ = b.Delete(msgKey(v.pair, v.id), nil)
		_ = b.Delete(idKey(v.id), nil)
	}
	if err := s.db.Apply(b, pebble.Sync); err != nil {
		logger.Log.Error("purge_failed", zap.Int("count", len(victims)), zap.Error(err))
		return 0, err
	}
	logger.Log.Info("tombstones_purged", zap.Int("count", len(victims)))
	return len(victims), nil
}

// Dialogs returns a summary per dialog, non-deleted messages only.
func (s *Store) Dialogs() ([]models.DialogSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	sums := map[string]*models.DialogSummary{}
	var order []string
	pfx := []byte(dialogPrefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		pair, ok := pairFromDialogKey(iter.Key())
		if !ok {
			continue
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil || m.Deleted {
			continue
		}
		sum := sums[pair]
		if sum == nil {
			a, bb := models.DialogParticipants(pair)
			sum = &models.DialogSummary{Key: pair, Participants: []string{a, bb}}
			sums[pair] = sum
			order = append(order, pair)
		}
		sum.Messages++
		if m.TS > sum.LastTS {
			sum.LastTS = m.TS
		}
	}
	out := make([]models.DialogSummary, 0, len(order))
	for _, k := range order {
		out = append(out, *sums[k])
	}
	return out, iter.Error()
}

// Identities returns every identity that participates in at least one
// dialog, sorted. Feeds the contacts listing.
func (s *Store) Identities() ([]string, error) {
	sums, err := s.Dialogs()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, d := range sums {
		for _, p := range d.Participants {
			if p == "" {
				continue
			}
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
