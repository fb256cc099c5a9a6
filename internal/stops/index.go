// Package stops holds the searchable in-memory index of parent stops.
package stops

import (
	"errors"
	"strings"
	"sync"

	"mtd-arrivals/internal/transit"
)

var ErrNotFound = errors.New("stop not found")

// Index is safe for concurrent use. Replace swaps the whole stop list at once.
type Index struct {
	mu    sync.RWMutex
	stops []transit.ParentStop
	byID  map[string]int
	names []string // lowercased, parallel to stops
}

func NewIndex() *Index {
	return &Index{byID: map[string]int{}}
}

func (ix *Index) Replace(stops []transit.ParentStop) {
	byID := make(map[string]int, len(stops))
	names := make([]string, len(stops))
	cp := make([]transit.ParentStop, len(stops))
	copy(cp, stops)
	for i, s := range cp {
		byID[s.ID] = i
		names[i] = strings.ToLower(s.Name)
	}

	ix.mu.Lock()
	ix.stops = cp
	ix.byID = byID
	ix.names = names
	ix.mu.Unlock()
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.stops)
}

func (ix *Index) Get(id string) (transit.ParentStop, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.byID[id]
	if !ok {
		return transit.ParentStop{}, ErrNotFound
	}
	return ix.stops[i], nil
}

// Search returns stops whose name contains key, ignoring case. When only is
// non-nil, results are further restricted to the ids it contains.
func (ix *Index) Search(key string, only map[string]bool) []transit.ParentStop {
	key = strings.ToLower(key)

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := []transit.ParentStop{}
	for i, s := range ix.stops {
		if !strings.Contains(ix.names[i], key) {
			continue
		}
		if only != nil && !only[s.ID] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Filter returns the indexed stops whose id is in ids, in index order.
func (ix *Index) Filter(ids map[string]bool) []transit.ParentStop {
	return ix.Search("", ids)
}

// IDSet is a convenience for building the set arguments of Search and Filter.
func IDSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
