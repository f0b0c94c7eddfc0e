// Package registry keeps the in-memory table of tracked child processes.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
)

// Entry is one tracked child process. It owns its artifact until removed.
type Entry struct {
	ID           string    `json:"id"`
	PID          int       `json:"pid"`
	Name         string    `json:"name"`
	ArtifactPath string    `json:"artifact_path"`
	Folder       string    `json:"folder"`
	Minutes      int       `json:"minutes"`
	StartedAt    time.Time `json:"started_at"`
}

// Registry is a mutex-guarded table of entries keyed by pid.
//
// A panic inside a critical section poisons the registry: it is marked degraded and every
// later call returns a LockDegraded error without touching the table.
type Registry struct {
	mu       sync.Mutex
	byPID    map[int]Entry
	degraded bool
	logger   *logging.Logger
}

// New returns an empty registry
func New(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		byPID:  make(map[int]Entry),
		logger: logger.Component("registry"),
	}
}

// guard runs fn under the lock, converting a panic into degradation
func (r *Registry) guard(op string, fn func()) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.degraded {
		r.logger.Error("registry degraded, operation skipped", logging.Fields{"op": op})
		return procerr.New(procerr.KindLockDegraded, op, nil)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.degraded = true
			r.logger.Error("panic under registry lock, registry degraded", logging.Fields{"op": op, "panic": fmt.Sprint(rec)})
			err = procerr.New(procerr.KindLockDegraded, op, fmt.Errorf("panic: %v", rec))
		}
	}()

	fn()
	return nil
}

// Insert adds e. Entries sharing its pid (the OS reused the pid) or its artifact path (a later
// placement replaced the file) are displaced and returned so the caller can settle them.
func (r *Registry) Insert(e Entry) ([]Entry, error) {
	if e.PID <= 0 {
		return nil, procerr.InvalidInput("insert", "pid must be > 0, got %d", e.PID)
	}
	var displaced []Entry
	err := r.guard("insert", func() {
		for pid, old := range r.byPID {
			if pid == e.PID || (e.ArtifactPath != "" && old.ArtifactPath == e.ArtifactPath) {
				displaced = append(displaced, old)
				delete(r.byPID, pid)
			}
		}
		r.byPID[e.PID] = e
	})
	if err != nil {
		return nil, err
	}
	sortEntries(displaced)
	return displaced, nil
}

// RemoveDead drops every entry isAlive rejects and returns the dropped entries. The table is
// left untouched if isAlive panics.
func (r *Registry) RemoveDead(isAlive func(Entry) bool) ([]Entry, error) {
	var dead []Entry
	err := r.guard("remove_dead", func() {
		kept := make(map[int]Entry, len(r.byPID))
		var removed []Entry
		for pid, e := range r.byPID {
			if isAlive(e) {
				kept[pid] = e
			} else {
				removed = append(removed, e)
			}
		}
		r.byPID = kept
		dead = removed
	})
	if err != nil {
		return nil, err
	}
	sortEntries(dead)
	return dead, nil
}

// DrainAll empties the registry and returns everything it held
func (r *Registry) DrainAll() ([]Entry, error) {
	var all []Entry
	err := r.guard("drain_all", func() {
		all = make([]Entry, 0, len(r.byPID))
		for _, e := range r.byPID {
			all = append(all, e)
		}
		r.byPID = make(map[int]Entry)
	})
	if err != nil {
		return nil, err
	}
	sortEntries(all)
	return all, nil
}

// Get returns the entry tracked under pid
func (r *Registry) Get(pid int) (Entry, bool) {
	var (
		e  Entry
		ok bool
	)
	r.guard("get", func() {
		e, ok = r.byPID[pid]
	})
	return e, ok
}

// List returns a copy of all entries ordered by start time
func (r *Registry) List() []Entry {
	var out []Entry
	r.guard("list", func() {
		out = make([]Entry, 0, len(r.byPID))
		for _, e := range r.byPID {
			out = append(out, e)
		}
	})
	sortEntries(out)
	return out
}

// Len returns the number of tracked entries
func (r *Registry) Len() int {
	var n int
	r.guard("len", func() {
		n = len(r.byPID)
	})
	return n
}

// Degraded reports whether the registry has been poisoned
func (r *Registry) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartedAt.Equal(entries[j].StartedAt) {
			return entries[i].PID < entries[j].PID
		}
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})
}
