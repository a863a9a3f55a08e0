package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"sync"
)

// Content returns the lowercase hex SHA-256 digest of the given text.
func Content(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	updatedAt int64
	digest    string
}

// Hasher memoizes content digests keyed by (id, updatedAt in milliseconds).
// A page that has not been touched since the last sync is never re-hashed.
type Hasher struct {
	mu    sync.RWMutex
	cache map[string]entry
}

func NewHasher() *Hasher {
	return &Hasher{cache: make(map[string]entry)}
}

func (h *Hasher) Sum(id string, updatedAt int64, content string) string {
	h.mu.RLock()
	e, ok := h.cache[id]
	h.mu.RUnlock()
	if ok && e.updatedAt == updatedAt {
		return e.digest
	}

	digest := Content(content)
	h.mu.Lock()
	h.cache[id] = entry{updatedAt: updatedAt, digest: digest}
	h.mu.Unlock()
	return digest
}

// Item is one entry in a batch digest request.
type Item struct {
	ID        string
	UpdatedAt int64
	Content   string
}

// SumAll digests a whole batch, fanning the work out across up to
// runtime.NumCPU workers, and returns the digests keyed by item id.
// Items already in the cache cost no hashing.
func (h *Hasher) SumAll(items []Item) map[string]string {
	workers := runtime.NumCPU()
	if workers > len(items) {
		workers = len(items)
	}

	digests := make([]string, len(items))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				it := items[i]
				digests[i] = h.Sum(it.ID, it.UpdatedAt, it.Content)
			}
		}()
	}
	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := make(map[string]string, len(items))
	for i, it := range items {
		out[it.ID] = digests[i]
	}
	return out
}
