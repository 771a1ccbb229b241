package cache

import (
	"container/list"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxEntries   = 1000
	defaultTTLSeconds   = 3600
	defaultMaxEntryByte = 1 << 20 // 1 MiB
	persistedSchemaVer  = 1
)

// Entry is one cached execution result, per spec §3 "Cache Entry".
type Entry struct {
	Code         string              `json:"code"`
	Context      model.Context       `json:"context"`
	ToolVersions map[string]string   `json:"toolVersions"`
	Result       model.ExecutionResult `json:"result"`
	CreatedAt    time.Time           `json:"createdAt"`
	ExpiresAt    time.Time           `json:"expiresAt"`
	HitCount     int64               `json:"hitCount"`
}

// PersistenceConfig enables optional disk persistence of cache entries.
type PersistenceConfig struct {
	Dir string
}

// Config configures a Cache. Zero-value fields take the spec defaults.
type Config struct {
	Enabled       bool
	MaxEntries    int
	TTLSeconds    int64
	MaxEntryBytes int
	Persistence   *PersistenceConfig
}

type lruRecord struct {
	key   string
	entry *Entry
}

// Cache is the content-addressed Result Cache. All access is
// serialized under a single mutex, matching spec §5's "cache reads/
// writes are serialized under an internal mutex".
type Cache struct {
	enabled       bool
	maxEntries    int
	ttl           time.Duration
	maxEntryBytes int
	persistDir    string

	mu      sync.Mutex
	entries map[string]*list.Element // key.String() -> *list.Element(*lruRecord)
	order   *list.List                // front = most-recently-used

	now func() time.Time
}

// New constructs a Cache from cfg, loading any persisted entries found
// under cfg.Persistence.Dir.
func New(cfg Config) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	ttlSeconds := cfg.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = defaultTTLSeconds
	}
	maxEntryBytes := cfg.MaxEntryBytes
	if maxEntryBytes <= 0 {
		maxEntryBytes = defaultMaxEntryByte
	}

	c := &Cache{
		enabled:       cfg.Enabled,
		maxEntries:    maxEntries,
		ttl:           time.Duration(ttlSeconds) * time.Second,
		maxEntryBytes: maxEntryBytes,
		entries:       map[string]*list.Element{},
		order:         list.New(),
		now:           time.Now,
	}
	if cfg.Persistence != nil {
		c.persistDir = cfg.Persistence.Dir
		c.loadPersisted()
	}
	return c
}

// Get returns a deep clone of the cached entry for key, or (nil, false)
// on a miss or an expired entry (which is evicted as a side effect, per
// spec §4.4 "get returns null on expiry and removes the entry"). A hit
// bumps HitCount and performs an LRU touch. The returned entry shares
// no memory with the stored one, per spec §4.6.1 step 2's "deep clone
// of the cached result" — callers may freely mutate it.
func (c *Cache) Get(key Key) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key.String()]
	if !ok {
		return nil, false
	}
	rec := elem.Value.(*lruRecord)
	if c.now().After(rec.entry.ExpiresAt) {
		c.removeLocked(key.String(), elem)
		return nil, false
	}

	rec.entry.HitCount++
	c.order.MoveToFront(elem)
	cloned := deepCloneEntry(rec.entry)
	return cloned, true
}

// deepCloneEntry returns a copy of entry whose Result field shares no
// memory with the stored entry. entry.Result is typically a
// map[string]any/[]any tree (an object/array return value); a shallow
// struct copy still aliases that tree, so a caller mutating its result
// would corrupt every future cache hit for the same key. Set only ever
// admits JSON-serializable results (see Set below), so a JSON
// marshal/unmarshal round-trip is always available and is the simplest
// correct deep copy for an arbitrary any-typed JSON value.
func deepCloneEntry(entry *Entry) *Entry {
	cloned := *entry
	if entry.Result.Result != nil {
		raw, err := json.Marshal(entry.Result.Result)
		if err == nil {
			var v any
			if json.Unmarshal(raw, &v) == nil {
				cloned.Result.Result = v
			}
		}
	}
	return &cloned
}

// Set inserts entry under key if it is cache-eligible (success=true,
// JSON-serializable, within MaxEntryBytes). It reports whether the
// entry was actually stored. Errors are never cached — the caller
// (sandbox.Executor) simply never calls Set for a failed execution.
func (c *Cache) Set(key Key, entry Entry) bool {
	if !c.enabled || !entry.Result.Success {
		return false
	}
	raw, err := json.Marshal(entry.Result)
	if err != nil || len(raw) > c.maxEntryBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry.CreatedAt = c.now()
	entry.ExpiresAt = entry.CreatedAt.Add(c.ttl)

	if elem, ok := c.entries[key.String()]; ok {
		elem.Value.(*lruRecord).entry = &entry
		c.order.MoveToFront(elem)
	} else {
		elem := c.order.PushFront(&lruRecord{key: key.String(), entry: &entry})
		c.entries[key.String()] = elem
	}

	for c.order.Len() > c.maxEntries {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(*lruRecord).key, back)
	}

	if c.persistDir != "" {
		c.persistOne(key.String(), &entry)
	}
	return true
}

// InvalidateByToolVersion evicts every entry whose ToolVersions map
// records a version for serverID other than newVersion, per spec
// §4.4's invalidateByToolVersion contract.
func (c *Cache) InvalidateByToolVersion(serverID, newVersion string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	var toRemove []*list.Element
	for k, elem := range c.entries {
		rec := elem.Value.(*lruRecord)
		for toolKey, version := range rec.entry.ToolVersions {
			if toolKeyServer(toolKey) == serverID && version != newVersion {
				toRemove = append(toRemove, elem)
				_ = k
				break
			}
		}
	}
	for _, elem := range toRemove {
		rec := elem.Value.(*lruRecord)
		c.removeLocked(rec.key, elem)
		removed++
	}
	return removed
}

func toolKeyServer(toolKey string) string {
	for i := 0; i < len(toolKey); i++ {
		if toolKey[i] == '.' {
			return toolKey[:i]
		}
	}
	return toolKey
}

func (c *Cache) removeLocked(key string, elem *list.Element) {
	delete(c.entries, key)
	c.order.Remove(elem)
	if c.persistDir != "" {
		_ = os.Remove(c.persistedPath(key))
	}
}

// Len returns the current number of live (not necessarily unexpired)
// entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

type persistedEntry struct {
	SchemaVersion int   `json:"schemaVersion"`
	Entry         Entry `json:"entry"`
}

func (c *Cache) persistedPath(key string) string {
	return filepath.Join(c.persistDir, key+".json")
}

func (c *Cache) persistOne(key string, entry *Entry) {
	if err := os.MkdirAll(c.persistDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("cache: failed to create persistence directory")
		return
	}
	raw, err := json.Marshal(persistedEntry{SchemaVersion: persistedSchemaVer, Entry: *entry})
	if err != nil {
		return
	}
	if err := os.WriteFile(c.persistedPath(key), raw, 0o644); err != nil {
		log.Warn().Err(err).Msg("cache: failed to persist entry")
	}
}

// loadPersisted re-reads every entry file under persistDir, discarding
// anything past its ExpiresAt and anything with an unrecognized schema
// version, per spec §6 "Persisted state": "unknown versions are
// discarded, not errored".
func (c *Cache) loadPersisted() {
	files, err := os.ReadDir(c.persistDir)
	if err != nil {
		return
	}
	now := c.now()
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(c.persistDir, f.Name()))
		if err != nil {
			continue
		}
		var pe persistedEntry
		if err := json.Unmarshal(raw, &pe); err != nil {
			continue
		}
		if pe.SchemaVersion != persistedSchemaVer {
			continue
		}
		if now.After(pe.Entry.ExpiresAt) {
			continue
		}
		key := f.Name()[:len(f.Name())-len(".json")]
		elem := c.order.PushBack(&lruRecord{key: key, entry: &pe.Entry})
		c.entries[key] = elem
	}
}
