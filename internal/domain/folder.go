package domain

import (
	"sort"
	"time"
)

type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parentId"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BuildChildIndex maps each parent folder id ("" for the root level) to its
// children, sorted by Order then Name. Built once per operation instead of
// re-filtering the folder list on every recursive step.
func BuildChildIndex(folders []*Folder) map[string][]*Folder {
	index := make(map[string][]*Folder, len(folders))
	for _, f := range folders {
		parent := ""
		if f.ParentID != nil {
			parent = *f.ParentID
		}
		index[parent] = append(index[parent], f)
	}
	for _, children := range index {
		sort.Slice(children, func(i, j int) bool {
			if children[i].Order != children[j].Order {
				return children[i].Order < children[j].Order
			}
			return children[i].Name < children[j].Name
		})
	}
	return index
}

// Descendants returns every folder below rootID in depth-first order,
// excluding rootID itself.
func Descendants(index map[string][]*Folder, rootID string) []*Folder {
	var result []*Folder
	stack := make([]string, 0, len(index))
	stack = append(stack, rootID)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range index[id] {
			result = append(result, child)
			stack = append(stack, child.ID)
		}
	}
	return result
}

// Newer reports whether a is strictly later than b at millisecond precision,
// the resolution every replica agrees on.
func Newer(a, b time.Time) bool {
	return a.UnixMilli() > b.UnixMilli()
}
