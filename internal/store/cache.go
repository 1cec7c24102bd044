package store

import (
	"sync"
	"time"
)

// 中文说明：
// 内存缓存：保存最近一次计算结果并给出明确的 TTL 边界，
// 过期数据绝不静默提供。ttl<=0 表示立即过期（每次都强制重算）。

// Cache 缓存单个不可变结果。调用方约定值在放入后不再修改。
type Cache[T any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	val *T
	at  time.Time
}

func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{ttl: ttl}
}

// Get 在值存在且未过期时返回它。
func (c *Cache[T]) Get(now time.Time) (*T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.val == nil || c.ttl <= 0 {
		return nil, false
	}
	if now.Sub(c.at) > c.ttl {
		return nil, false
	}
	return c.val, true
}

// Put 覆盖缓存值并重置时钟。
func (c *Cache[T]) Put(val *T, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = val
	c.at = now
}

// Invalidate 清空缓存。
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = nil
}
