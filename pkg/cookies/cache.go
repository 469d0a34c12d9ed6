package cookies

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Cache keeps the last cookie list reported by the host in serialized form.
// Every Get decodes a fresh copy, so callers can never mutate the cached
// state or the live jar.
type Cache struct {
	mu  sync.RWMutex
	raw []byte
}

type record struct {
	Name     string `cbor:"1,keyasint"`
	Value    string `cbor:"2,keyasint"`
	Domain   string `cbor:"3,keyasint"`
	Path     string `cbor:"4,keyasint"`
	Expires  *int64 `cbor:"5,keyasint,omitempty"`
	HTTPOnly bool   `cbor:"6,keyasint"`
	Secure   bool   `cbor:"7,keyasint"`
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Store replaces the cached list.
func (c *Cache) Store(list []Cookie) error {
	records := make([]record, 0, len(list))
	for _, ck := range list {
		r := record{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
		}
		if ck.Expires != nil {
			ms := ck.Expires.UnixMilli()
			r.Expires = &ms
		}
		records = append(records, r)
	}

	raw, err := cbor.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	c.mu.Lock()
	c.raw = raw
	c.mu.Unlock()
	return nil
}

// Get returns a decoded copy of the cached list. An empty cache yields an
// empty, non-nil slice.
func (c *Cache) Get() []Cookie {
	c.mu.RLock()
	raw := c.raw
	c.mu.RUnlock()

	if len(raw) == 0 {
		return []Cookie{}
	}

	var records []record
	if err := cbor.Unmarshal(raw, &records); err != nil {
		return []Cookie{}
	}

	out := make([]Cookie, 0, len(records))
	for _, r := range records {
		ck := Cookie{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   r.Domain,
			Path:     r.Path,
			HTTPOnly: r.HTTPOnly,
			Secure:   r.Secure,
		}
		if r.Expires != nil {
			t := time.UnixMilli(*r.Expires).UTC()
			ck.Expires = &t
		}
		out = append(out, ck)
	}
	return out
}
