package storage

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/teranos/semstore/sem/types"
)

// stubCache keeps recently read stubs. Entries are added with Add and read
// with Peek, so recency is never refreshed and the oldest entry is evicted
// first. A nil cache is disabled.
type stubCache struct {
	lru *lru.Cache[string, *Stub]
}

func newStubCache(size int) *stubCache {
	if size <= 0 {
		return &stubCache{}
	}
	c, err := lru.New[string, *Stub](size)
	if err != nil {
		return &stubCache{}
	}
	return &stubCache{lru: c}
}

func (c *stubCache) get(ref types.EntityRef) (*Stub, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Peek(ref.Key())
}

func (c *stubCache) add(stub *Stub) {
	if c.lru == nil {
		return
	}
	c.lru.Add(stub.Subject().Key(), stub)
}

// invalidate drops ref's page and every subobject of it
func (c *stubCache) invalidate(ref types.EntityRef) {
	if c.lru == nil {
		return
	}
	base := ref.Base()
	for _, key := range c.lru.Keys() {
		stub, ok := c.lru.Peek(key)
		if ok && stub.Subject().Base() == base {
			c.lru.Remove(key)
		}
	}
}

func (c *stubCache) purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

func (c *stubCache) len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
