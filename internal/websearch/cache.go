package websearch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RecentURLCache remembers recently served URLs so consecutive
// collection runs rotate through fresh material. Oldest entries are
// evicted first. The cache optionally persists to a JSON file across
// restarts.
type RecentURLCache struct {
	mu      sync.Mutex
	order   []string
	seen    map[string]struct{}
	maxSize int
	path    string
}

// NewRecentURLCache creates a cache holding up to maxSize URLs. If
// path is non-empty the cache loads prior state from it and persists
// on every change. A missing or corrupt file starts the cache empty.
func NewRecentURLCache(maxSize int, path string) *RecentURLCache {
	if maxSize <= 0 {
		maxSize = 200
	}
	c := &RecentURLCache{
		seen:    make(map[string]struct{}),
		maxSize: maxSize,
		path:    path,
	}
	c.load()
	return c
}

// Contains reports whether url was recently served.
func (c *RecentURLCache) Contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[url]
	return ok
}

// Add records urls as served, evicting oldest entries past capacity.
func (c *RecentURLCache) Add(urls ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, url := range urls {
		if _, ok := c.seen[url]; ok {
			continue
		}
		c.seen[url] = struct{}{}
		c.order = append(c.order, url)
	}
	for len(c.order) > c.maxSize {
		evicted := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, evicted)
	}
	c.persist()
}

// Len returns the number of cached URLs.
func (c *RecentURLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// load reads persisted state. Errors leave the cache empty.
func (c *RecentURLCache) load() {
	if c.path == "" {
		return
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return
	}
	if len(order) > c.maxSize {
		order = order[len(order)-c.maxSize:]
	}
	c.order = order
	for _, url := range order {
		c.seen[url] = struct{}{}
	}
}

// persist writes state to disk. Callers hold the lock.
func (c *RecentURLCache) persist() {
	if c.path == "" {
		return
	}
	data, err := json.Marshal(c.order)
	if err != nil {
		return
	}
	if dir := filepath.Dir(c.path); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	tmp := fmt.Sprintf("%s.tmp", c.path)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return
	}
	_ = os.Rename(tmp, c.path)
}
