package service

import (
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// CacheMode controls whether a master chat may fall back to its last destination.
type CacheMode string

const (
	CacheModeEnabled  CacheMode = "enabled"  // 静默使用上次目标
	CacheModeWarn     CacheMode = "warn"     // 使用上次目标, 首次提示
	CacheModeDisabled CacheMode = "disabled" // 不使用缓存
)

// DestinationCache remembers the slave chat each master chat last replied into.
// Entries expire after ttl; when full the oldest entry is evicted.
type DestinationCache struct {
	mu      sync.Mutex
	mode    CacheMode
	entries map[entity.MasterChatUID]*destinationEntry
	warned  map[entity.MasterChatUID]time.Time
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type destinationEntry struct {
	slave     entity.SlaveChatUID
	updatedAt time.Time
}

// NewDestinationCache 创建最近目标缓存
func NewDestinationCache(mode CacheMode, maxSize int, ttl time.Duration) *DestinationCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxSize <= 0 {
		maxSize = 20
	}
	return &DestinationCache{
		mode:    normalizeMode(mode),
		entries: make(map[entity.MasterChatUID]*destinationEntry, maxSize),
		warned:  make(map[entity.MasterChatUID]time.Time, maxSize),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Mode 当前模式
func (c *DestinationCache) Mode() CacheMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the mode at runtime (relay flag hot reload).
func (c *DestinationCache) SetMode(mode CacheMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = normalizeMode(mode)
}

// Get returns the cached destination. Always misses in disabled mode.
func (c *DestinationCache) Get(master entity.MasterChatUID) (entity.SlaveChatUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == CacheModeDisabled {
		return "", false
	}
	entry, ok := c.entries[master]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.updatedAt) > c.ttl {
		delete(c.entries, master)
		delete(c.warned, master)
		return "", false
	}
	return entry.slave, true
}

// Set stores the destination and refreshes its TTL.
// A different destination starts unwarned, so the user hears about the switch.
func (c *DestinationCache) Set(master entity.MasterChatUID, slave entity.SlaveChatUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[master]
	if !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	if !exists || entry.slave != slave {
		delete(c.warned, master)
	}
	c.entries[master] = &destinationEntry{slave: slave, updatedAt: c.now()}
}

// Remove 删除缓存项和提示标记
func (c *DestinationCache) Remove(master entity.MasterChatUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, master)
	delete(c.warned, master)
}

// IsWarned reports whether the user was already told about the cached destination.
// Disabled mode reports true so no warning is ever produced.
func (c *DestinationCache) IsWarned(master entity.MasterChatUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == CacheModeDisabled {
		return true
	}
	at, ok := c.warned[master]
	if !ok {
		return false
	}
	if c.now().Sub(at) > c.ttl {
		delete(c.warned, master)
		return false
	}
	return true
}

// SetWarned 标记已提示
func (c *DestinationCache) SetWarned(master entity.MasterChatUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.warned[master]; !exists && len(c.warned) >= c.maxSize {
		var oldest entity.MasterChatUID
		var oldestAt time.Time
		for k, at := range c.warned {
			if oldest == "" || at.Before(oldestAt) {
				oldest, oldestAt = k, at
			}
		}
		delete(c.warned, oldest)
	}
	c.warned[master] = c.now()
}

// Len 当前缓存项数
func (c *DestinationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently set entry. Caller must hold the lock.
func (c *DestinationCache) evictOldest() {
	var oldestKey entity.MasterChatUID
	var oldestTime time.Time

	for k, e := range c.entries {
		if oldestKey == "" || e.updatedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.updatedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		delete(c.warned, oldestKey)
	}
}

func normalizeMode(mode CacheMode) CacheMode {
	switch mode {
	case CacheModeEnabled, CacheModeWarn, CacheModeDisabled:
		return mode
	}
	return CacheModeWarn
}
