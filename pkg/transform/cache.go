package transform

import (
	"crypto/sha256"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/jormeli/slangload/pkg/resolve"
)

// DefaultCacheSize is the artifact cache limit used when none is given (32 MB).
const DefaultCacheSize = 32 * 1000 * 1000

const (
	bytesPerKB         = 1024.0
	evictionSampleSize = 5
)

// Fingerprint is the sha256 of a module file's contents.
type Fingerprint [sha256.Size]byte

// Artifact is a cached compile result.
type Artifact struct {
	Code         string
	Dependencies []string
	// Fingerprints covers the entry and every dependency.
	Fingerprints map[string]Fingerprint
	// Absent lists paths that were missing at compile time. Creating any of
	// them can shadow a climbed import.
	Absent []string
}

func (a *Artifact) size() int64 {
	size := len(a.Code)

	for path := range a.Fingerprints {
		size += len(path) + sha256.Size
	}

	for _, path := range a.Absent {
		size += len(path)
	}

	return int64(size)
}

// fresh reports whether every input still has its recorded contents and no
// absent candidate has appeared.
func (a *Artifact) fresh(fsys resolve.FileSystem) bool {
	for _, path := range a.Absent {
		if fsys.Exists(path) {
			return false
		}
	}

	for path, want := range a.Fingerprints {
		data, err := fsys.ReadFile(path)
		if err != nil || sha256.Sum256(data) != want {
			return false
		}
	}

	return true
}

// FingerprintFiles hashes the current contents of paths.
func FingerprintFiles(fsys resolve.FileSystem, paths []string) (map[string]Fingerprint, error) {
	out := make(map[string]Fingerprint, len(paths))

	for _, path := range paths {
		data, err := fsys.ReadFile(path)
		if err != nil {
			return nil, err
		}

		out[path] = sha256.Sum256(data)
	}

	return out, nil
}

// Cache is a size-bounded LRU of compile artifacts keyed by entry and target.
// Large, rarely hit artifacts are evicted first.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	head        *cacheEntry // Most recently used.
	tail        *cacheEntry // Least recently used.
	maxSize     int64
	currentSize int64

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key         string
	artifact    *Artifact
	size        int64
	accessCount int64
	prev        *cacheEntry
	next        *cacheEntry
}

// evictionCost is the access count per KB; lower is evicted first.
func (e *cacheEntry) evictionCost() float64 {
	sizeKB := float64(e.size) / bytesPerKB
	if sizeKB < 1 {
		sizeKB = 1
	}

	return float64(e.accessCount) / sizeKB
}

// NewCache creates a cache holding up to maxSize bytes.
func NewCache(maxSize int64) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}

	return &Cache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
	}
}

// Get returns the artifact for key if every input file is unchanged in fsys.
// A stale artifact is dropped.
func (c *Cache) Get(key string, fsys resolve.FileSystem) (*Artifact, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)

		return nil, false
	}

	if !entry.artifact.fresh(fsys) {
		c.mu.Lock()
		if c.entries[key] == entry {
			c.removeLocked(entry)
		}
		c.mu.Unlock()

		c.misses.Add(1)

		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits.Add(1)

	entry.accessCount++
	if c.entries[key] == entry {
		c.moveToFront(entry)
	}

	return entry.artifact, true
}

// Put stores a copy of artifact under key, replacing any previous value.
func (c *Cache) Put(key string, artifact *Artifact) {
	if artifact == nil {
		return
	}

	stored := &Artifact{
		Code:         artifact.Code,
		Dependencies: slices.Clone(artifact.Dependencies),
		Fingerprints: maps.Clone(artifact.Fingerprints),
		Absent:       slices.Clone(artifact.Absent),
	}

	size := stored.size()
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLowestCost()
	}

	entry := &cacheEntry{
		key:         key,
		artifact:    stored,
		size:        size,
		accessCount: 1,
	}

	c.entries[key] = entry
	c.currentSize += size
	c.addToFront(entry)
}

// CacheStats holds cache counters.
type CacheStats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate returns the hit rate (0.0 to 1.0).
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.head = nil
	c.tail = nil
	c.currentSize = 0
}

func (c *Cache) removeLocked(entry *cacheEntry) {
	c.removeFromList(entry)
	delete(c.entries, entry.key)
	c.currentSize -= entry.size
}

func (c *Cache) moveToFront(entry *cacheEntry) {
	if entry == c.head {
		return
	}

	c.removeFromList(entry)
	c.addToFront(entry)
}

func (c *Cache) addToFront(entry *cacheEntry) {
	entry.prev = nil
	entry.next = c.head

	if c.head != nil {
		c.head.prev = entry
	}

	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

func (c *Cache) removeFromList(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}

	entry.prev = nil
	entry.next = nil
}

// evictLowestCost samples the LRU tail and evicts the cheapest entry.
func (c *Cache) evictLowestCost() {
	var candidates [evictionSampleSize]*cacheEntry

	count := 0

	for entry := c.tail; entry != nil && count < evictionSampleSize; entry = entry.prev {
		candidates[count] = entry
		count++
	}

	if count == 0 {
		return
	}

	victim := candidates[0]
	lowestCost := victim.evictionCost()

	for i := 1; i < count; i++ {
		cost := candidates[i].evictionCost()
		if cost < lowestCost {
			lowestCost = cost
			victim = candidates[i]
		}
	}

	c.removeLocked(victim)
}
