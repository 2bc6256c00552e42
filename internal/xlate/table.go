package xlate

import "sync"

// tableKey indexes entries by (source arbitration ID, addressing mode);
// mismatched addressing modes never match even with equal numeric IDs.
type tableKey struct {
	id       uint32
	extended bool
}

// Table is a concurrent-safe mapping from (source ID, is_extended) to one
// Entry. Reads (Get) may proceed concurrently with each other; Add
// serializes with both reads and other adds via a single RWMutex, mirroring
// the reader/writer discipline the hub package uses for its client set.
type Table struct {
	mu      sync.RWMutex
	entries map[tableKey]Entry
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[tableKey]Entry)}
}

// Get returns the entry for (sourceID, isExtended), or ok=false if no entry
// matches both the ID and the addressing mode.
func (t *Table) Get(sourceID uint32, isExtended bool) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[tableKey{id: sourceID, extended: isExtended}]
	return e, ok
}

// Add inserts or overwrites the entry keyed by (entry.SourceID,
// entry.SourceIsExtended). Safe for concurrent use with Get.
func (t *Table) Add(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[tableKey{id: e.SourceID, extended: e.SourceIsExtended}] = e
}

// Len reports the current number of entries (used for metrics gauges).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
