package domain

import (
	"testing"
	"time"
)

func ts(id string, at int64) *Tombstone {
	return &Tombstone{EntityID: id, DeletedAt: time.UnixMilli(at)}
}

func TestMergeTombstones(t *testing.T) {
	tests := []struct {
		name string
		a    []*Tombstone
		b    []*Tombstone
		want []*Tombstone
	}{
		{
			name: "disjoint sets union",
			a:    []*Tombstone{ts("b", 100)},
			b:    []*Tombstone{ts("a", 200)},
			want: []*Tombstone{ts("a", 200), ts("b", 100)},
		},
		{
			name: "later deletion wins",
			a:    []*Tombstone{ts("x", 100)},
			b:    []*Tombstone{ts("x", 300)},
			want: []*Tombstone{ts("x", 300)},
		},
		{
			name: "earlier deletion does not overwrite",
			a:    []*Tombstone{ts("x", 300)},
			b:    []*Tombstone{ts("x", 100)},
			want: []*Tombstone{ts("x", 300)},
		},
		{
			name: "both empty",
			a:    nil,
			b:    nil,
			want: []*Tombstone{},
		},
		{
			name: "one side empty",
			a:    nil,
			b:    []*Tombstone{ts("a", 50)},
			want: []*Tombstone{ts("a", 50)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeTombstones(tt.a, tt.b)
			if len(got) != len(tt.want) {
				t.Fatalf("MergeTombstones() returned %d tombstones, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].EntityID != tt.want[i].EntityID {
					t.Errorf("MergeTombstones()[%d].EntityID = %s, want %s", i, got[i].EntityID, tt.want[i].EntityID)
				}
				if got[i].DeletedAt.UnixMilli() != tt.want[i].DeletedAt.UnixMilli() {
					t.Errorf("MergeTombstones()[%d].DeletedAt = %d, want %d", i, got[i].DeletedAt.UnixMilli(), tt.want[i].DeletedAt.UnixMilli())
				}
			}
		})
	}
}

func TestNewer(t *testing.T) {
	base := time.UnixMilli(1000)

	tests := []struct {
		name string
		a    time.Time
		b    time.Time
		want bool
	}{
		{"strictly later millisecond", time.UnixMilli(1001), base, true},
		{"strictly earlier millisecond", time.UnixMilli(999), base, false},
		{"equal instants", time.UnixMilli(1000), base, false},
		{"sub-millisecond difference is a tie", base.Add(400 * time.Microsecond), base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Newer(tt.a, tt.b); got != tt.want {
				t.Errorf("Newer(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
