// Package remap translates category ids of the old blog into slugs of the
// new one.
package remap

import (
	"sort"
)

// DefaultFallback is where posts with an unmapped legacy category end up.
const DefaultFallback = "gestao-financeira"

type Remapper struct {
	table    map[int]string
	fallback string
}

func New(table map[int]string, fallback string) *Remapper {
	if fallback == "" {
		fallback = DefaultFallback
	}
	t := make(map[int]string, len(table))
	for id, slug := range table {
		t[id] = slug
	}
	return &Remapper{table: t, fallback: fallback}
}

// Resolve returns the slug for a legacy category id. Unknown ids resolve to
// the fallback slug with mapped set to false; callers are expected to warn.
func (r *Remapper) Resolve(legacyID int) (slug string, mapped bool) {
	if slug, ok := r.table[legacyID]; ok {
		return slug, true
	}
	return r.fallback, false
}

func (r *Remapper) Fallback() string {
	return r.fallback
}

// Unmapped returns, sorted and without duplicates, the ids that have no entry.
func (r *Remapper) Unmapped(ids []int) []int {
	seen := map[int]bool{}
	res := []int{}
	for _, id := range ids {
		if _, ok := r.table[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	sort.Ints(res)
	return res
}
