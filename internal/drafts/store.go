// Package drafts persists in-progress check-ins on the device.
package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

const (
	// KeyAll holds the draftId -> draft mapping.
	KeyAll = "all_checkin_drafts"
	// KeyLegacy holds the most recently saved draft for clients that only
	// knew about one draft at a time.
	KeyLegacy = "checkin_draft"
)

// KV is the device-local storage the store persists into.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
}

// Store is the device-local draft collection. Read-only lookups treat an
// unreadable collection as empty; writes refuse to replace it.
type Store struct {
	kv  KV
	log *slog.Logger
	now func() time.Time

	// mu guards the read-modify-write of KeyAll.
	mu sync.Mutex
}

// NewStore constructs a Store over kv.
func NewStore(kv KV, log *slog.Logger) *Store {
	return &Store{kv: kv, log: log, now: time.Now}
}

// WithClock replaces the clock used to stamp saveTime.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ListAll returns every stored draft keyed by draft id.
func (s *Store) ListAll(ctx context.Context) map[string]*checkin.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns the draft stored under id, or nil.
func (s *Store) Get(ctx context.Context, id string) *checkin.Draft {
	return s.ListAll(ctx)[id]
}

// Put upserts d under id, stamping its saveTime, and mirrors it into the
// legacy slot. The stored copy is returned.
func (s *Store) Put(ctx context.Context, id string, d *checkin.Draft) (*checkin.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *d
	stored.DraftID = id
	stored.IsDraft = true
	stored.SaveTime = s.now()
	checkin.Normalize(&stored)

	all, err := s.loadForWrite(ctx)
	if err != nil {
		s.log.Error("saving draft", "draft_id", id, "err", err)
		return nil, &checkin.StorageError{Op: "put", Key: KeyAll, Err: err}
	}
	all[id] = &stored
	if err := s.kv.SetJSON(ctx, KeyAll, all); err != nil {
		s.log.Error("saving draft", "draft_id", id, "err", err)
		return nil, &checkin.StorageError{Op: "put", Key: KeyAll, Err: err}
	}
	if err := s.kv.SetJSON(ctx, KeyLegacy, &stored); err != nil {
		s.log.Warn("mirroring draft to legacy slot", "draft_id", id, "err", err)
	}

	out := stored
	return &out, nil
}

// Delete removes the draft stored under id. Absent ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadForWrite(ctx)
	if err != nil {
		s.log.Error("deleting draft", "draft_id", id, "err", err)
		return &checkin.StorageError{Op: "delete", Key: KeyAll, Err: err}
	}
	if _, ok := all[id]; !ok {
		return nil
	}
	delete(all, id)
	if err := s.kv.SetJSON(ctx, KeyAll, all); err != nil {
		s.log.Error("deleting draft", "draft_id", id, "err", err)
		return &checkin.StorageError{Op: "delete", Key: KeyAll, Err: err}
	}
	return nil
}

// FindLatestForMuseum returns the draft for museumID with the greatest
// timestamp embedded in its id. When the collection holds none, the legacy
// slot is used if it belongs to the same museum.
func (s *Store) FindLatestForMuseum(ctx context.Context, museumID int64) *checkin.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		latest   *checkin.Draft
		latestTS int64 = -1
	)
	for id, d := range s.load(ctx) {
		if d.MuseumID != museumID {
			continue
		}
		ts := checkin.DraftTimestamp(id)
		if ts > latestTS || (ts == latestTS && id > latest.DraftID) {
			latest, latestTS = d, ts
		}
	}
	if latest != nil {
		return latest
	}

	legacy := s.loadLegacy(ctx)
	if legacy != nil && legacy.MuseumID == museumID {
		return legacy
	}
	return nil
}

// DeleteForMuseum removes every draft of museumID, including the legacy
// slot when it belongs to that museum, and returns the removed ids.
func (s *Store) DeleteForMuseum(ctx context.Context, museumID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadForWrite(ctx)
	if err != nil {
		s.log.Error("deleting museum drafts", "museum_id", museumID, "err", err)
		return nil, &checkin.StorageError{Op: "delete", Key: KeyAll, Err: err}
	}
	var removed []string
	for id, d := range all {
		if d.MuseumID == museumID {
			removed = append(removed, id)
			delete(all, id)
		}
	}
	sort.Strings(removed)

	if len(removed) > 0 {
		if err := s.kv.SetJSON(ctx, KeyAll, all); err != nil {
			s.log.Error("deleting museum drafts", "museum_id", museumID, "err", err)
			return nil, &checkin.StorageError{Op: "delete", Key: KeyAll, Err: err}
		}
	}

	if legacy := s.loadLegacy(ctx); legacy != nil && legacy.MuseumID == museumID {
		if err := s.kv.Delete(ctx, KeyLegacy); err != nil {
			s.log.Warn("clearing legacy draft slot", "museum_id", museumID, "err", err)
		}
	}
	return removed, nil
}

// List returns every draft, most recently saved first.
func (s *Store) List(ctx context.Context) []*checkin.Draft {
	all := s.ListAll(ctx)
	list := make([]*checkin.Draft, 0, len(all))
	for _, d := range all {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].SaveTime.Equal(list[j].SaveTime) {
			return list[i].SaveTime.After(list[j].SaveTime)
		}
		return list[i].DraftID > list[j].DraftID
	})
	return list
}

// load reads the collection for lookups; failures read as empty.
// Callers hold s.mu.
func (s *Store) load(ctx context.Context) map[string]*checkin.Draft {
	all, err := s.loadForWrite(ctx)
	if err != nil {
		s.log.Error("reading drafts", "err", err)
		return make(map[string]*checkin.Draft)
	}
	return all
}

// loadForWrite reads and normalizes the whole collection. A read or parse
// failure is returned so the caller does not overwrite what it could not
// see. Callers hold s.mu.
func (s *Store) loadForWrite(ctx context.Context) (map[string]*checkin.Draft, error) {
	out := make(map[string]*checkin.Draft)

	raw, err := s.kv.Get(ctx, KeyAll)
	if err != nil {
		return nil, fmt.Errorf("reading drafts: %w", err)
	}
	if raw == nil {
		return out, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing drafts: %w", err)
	}
	for id, entry := range entries {
		d, err := checkin.DecodeDraft(entry, id)
		if err != nil {
			s.log.Warn("skipping unreadable draft", "draft_id", id, "err", err)
			continue
		}
		out[id] = d
	}
	return out, nil
}

func (s *Store) loadLegacy(ctx context.Context) *checkin.Draft {
	raw, err := s.kv.Get(ctx, KeyLegacy)
	if err != nil {
		s.log.Error("reading legacy draft", "err", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	d, err := checkin.DecodeDraft(raw, "")
	if err != nil {
		s.log.Warn("skipping unreadable legacy draft", "err", err)
		return nil
	}
	return d
}
