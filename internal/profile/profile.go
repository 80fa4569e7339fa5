// Package profile keeps a phone-keyed cache of customer details so repeat
// callers do not re-dictate their address. It is a convenience layer only;
// the order row remains the authoritative record of who ordered what.
package profile

import (
	"strings"
	"sync"
	"time"
)

// Profile is the remembered detail for one phone number. LastAddress and the
// coordinates are the most recent delivery destination, reused as the
// default for the next order.
type Profile struct {
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	LastAddress string    `json:"last_address,omitempty"`
	LastLat     float64   `json:"last_lat,omitempty"`
	LastLng     float64   `json:"last_lng,omitempty"`
	OrderCount  int       `json:"order_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MemoryCache is a mutex-guarded in-process profile store.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]Profile
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: make(map[string]Profile)}
}

// Get looks up the profile for a phone number.
func (c *MemoryCache) Get(phone string) (Profile, bool) {
	key := normalizePhone(phone)
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.store[key]
	return p, ok
}

// Put stores a profile, replacing any previous entry for the same phone.
func (c *MemoryCache) Put(p Profile) {
	key := normalizePhone(p.Phone)
	if key == "" {
		return
	}
	p.Phone = key
	p.UpdatedAt = time.Now()
	c.mu.Lock()
	c.store[key] = p
	c.mu.Unlock()
}

// RecordOrder updates the profile after a placed order: refreshes the name
// and last destination and bumps the order counter. Empty fields keep the
// remembered value.
func (c *MemoryCache) RecordOrder(phone, name, address string, lat, lng float64) {
	key := normalizePhone(phone)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.store[key]
	p.Phone = key
	if name != "" {
		p.Name = name
	}
	if address != "" {
		p.LastAddress = address
		p.LastLat = lat
		p.LastLng = lng
	}
	p.OrderCount++
	p.UpdatedAt = time.Now()
	c.store[key] = p
}

// normalizePhone strips spaces and separator punctuation so "300 123-4567"
// and "3001234567" hit the same entry.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		switch r {
		case ' ', '-', '(', ')', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
