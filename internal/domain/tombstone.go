package domain

import (
	"sort"
	"time"
)

type Tombstone struct {
	EntityID  string    `json:"entityId"`
	DeletedAt time.Time `json:"deletedAt"`
}

// MergeTombstones combines two tombstone sets last-writer-wins: an entity
// present in both keeps the later DeletedAt. The result is sorted by entity
// id so serialized output is deterministic.
func MergeTombstones(a, b []*Tombstone) []*Tombstone {
	byID := make(map[string]*Tombstone, len(a)+len(b))
	for _, ts := range a {
		byID[ts.EntityID] = ts
	}
	for _, ts := range b {
		if cur, ok := byID[ts.EntityID]; !ok || Newer(ts.DeletedAt, cur.DeletedAt) {
			byID[ts.EntityID] = ts
		}
	}
	merged := make([]*Tombstone, 0, len(byID))
	for _, ts := range byID {
		merged = append(merged, ts)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].EntityID < merged[j].EntityID })
	return merged
}
