package accumulator

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// GateAccumulator merges gate IDs from many sources. At most one entry exists
// per ID; a strictly higher-priority source replaces the entry, anything else
// is skipped.
type GateAccumulator struct {
	mu       sync.RWMutex
	entries  map[string]gate.Entry
	order    []string
	blocking map[string]bool
	frozen   bool
	now      func() time.Time
	logger   logging.Logger
}

// NewGateAccumulator creates an empty accumulator
func NewGateAccumulator(logger logging.Logger) *GateAccumulator {
	return &GateAccumulator{
		entries:  make(map[string]gate.Entry),
		blocking: make(map[string]bool),
		now:      time.Now,
		logger:   logging.OrGlobal(logger),
	}
}

// Add records id from source. Returns true when the entry was created or replaced.
func (a *GateAccumulator) Add(id string, source gate.Source, metadata map[string]interface{}) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		a.logger.Warnw("gate accumulator frozen; add rejected", "gateId", id, "source", source)
		return false
	}

	priority := source.Priority()
	if existing, ok := a.entries[id]; ok {
		if priority <= existing.Priority {
			return false
		}
		a.logger.Debugw("gate source replaced",
			"gateId", id, "from", existing.Source, "to", source)
	} else {
		a.order = append(a.order, id)
	}

	a.entries[id] = gate.Entry{
		ID:       id,
		Source:   source,
		Priority: priority,
		AddedAt:  a.now(),
		Metadata: metadata,
	}
	return true
}

// AddAll adds every id from source and returns how many were added or replaced
func (a *GateAccumulator) AddAll(ids []string, source gate.Source) int {
	n := 0
	for _, id := range ids {
		if a.Add(id, source, nil) {
			n++
		}
	}
	return n
}

// Get returns the entry for id
func (a *GateAccumulator) Get(id string) (gate.Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[strings.TrimSpace(id)]
	return e, ok
}

// Has reports whether id was accumulated
func (a *GateAccumulator) Has(id string) bool {
	_, ok := a.Get(id)
	return ok
}

// IDs returns gate IDs in first-insertion order
func (a *GateAccumulator) IDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Entries returns entries in first-insertion order
func (a *GateAccumulator) Entries() []gate.Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]gate.Entry, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.entries[id])
	}
	return out
}

// BySource returns the entries currently owned by source
func (a *GateAccumulator) BySource(source gate.Source) []gate.Entry {
	var out []gate.Entry
	for _, e := range a.Entries() {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// CountsBySource returns how many entries each source owns
func (a *GateAccumulator) CountsBySource() map[gate.Source]int {
	counts := make(map[gate.Source]int)
	for _, e := range a.Entries() {
		counts[e.Source]++
	}
	return counts
}

// Len returns the number of distinct gate IDs
func (a *GateAccumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}

// Freeze rejects every later Add. It cannot be undone.
func (a *GateAccumulator) Freeze() {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()
}

// IsFrozen reports whether Freeze was called
func (a *GateAccumulator) IsFrozen() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frozen
}

// MarkBlocking flags id as a gate whose failure suppresses returned content
func (a *GateAccumulator) MarkBlocking(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	a.mu.Lock()
	a.blocking[id] = true
	a.mu.Unlock()
}

// IsBlocking reports whether id was marked blocking
func (a *GateAccumulator) IsBlocking(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.blocking[strings.TrimSpace(id)]
}

// BlockingGates returns the blocking gate IDs, sorted
func (a *GateAccumulator) BlockingGates() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.blocking))
	for id := range a.blocking {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
