package tower

import (
	"sort"
	"sync"

	"github.com/user/towerbridge/logger"
)

// Persister stores the persistent cache outside the process
type Persister interface {
	SaveTower(rec Record) error
}

// Registry holds the towers seen by discovery.
//
// The session cache is cleared at the start of every discovery sweep; the persistent cache
// survives sweeps so a known tower can be connected without rediscovering it.
// Both caches are keyed by TowerID and updated last-write-wins.
type Registry struct {
	mu         sync.RWMutex
	session    map[TowerID]Record
	persistent map[TowerID]Record
	persister  Persister
}

// NewRegistry creates an empty registry. persister may be nil.
func NewRegistry(persister Persister) *Registry {
	return &Registry{
		session:    make(map[TowerID]Record),
		persistent: make(map[TowerID]Record),
		persister:  persister,
	}
}

// Warm seeds the persistent cache (e.g. from a Store) without touching the session cache
func (r *Registry) Warm(records []Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		r.persistent[rec.ID] = rec
	}
}

// RecordDiscovered upserts a record into both caches
func (r *Registry) RecordDiscovered(rec Record) {
	r.mu.Lock()
	prev, known := r.persistent[rec.ID]
	r.session[rec.ID] = rec
	r.persistent[rec.ID] = rec
	persister := r.persister
	r.mu.Unlock()

	if known && (prev.Name != rec.Name || prev.FirmwareVersion != rec.FirmwareVersion) {
		logger.Debug("Registry", "tower %s changed: name %q -> %q, firmware %q -> %q",
			rec.ID.short(), prev.Name, rec.Name, prev.FirmwareVersion, rec.FirmwareVersion)
	}

	if persister != nil {
		if err := persister.SaveTower(rec); err != nil {
			logger.Warn("Registry", "failed to persist tower %s: %v", rec.ID.short(), err)
		}
	}
}

// LookupPersistent returns the cached record for id
func (r *Registry) LookupPersistent(id TowerID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.persistent[id]
	return rec, ok
}

// LookupSession returns the record for id if it was seen in the current sweep
func (r *Registry) LookupSession(id TowerID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.session[id]
	return rec, ok
}

// ClearSession empties the session cache. The persistent cache is untouched.
func (r *Registry) ClearSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = make(map[TowerID]Record)
}

// SessionTowers returns the towers seen in the current sweep, ordered by id
func (r *Registry) SessionTowers() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedRecords(r.session)
}

// PersistentTowers returns every cached tower, ordered by id
func (r *Registry) PersistentTowers() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedRecords(r.persistent)
}

// Len returns the sizes of the session and persistent caches
func (r *Registry) Len() (session, persistent int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.session), len(r.persistent)
}

func sortedRecords(m map[TowerID]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}
