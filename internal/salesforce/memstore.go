package salesforce

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryStore is an in-memory CookieStore keyed by partition id. It backs
// offline runs (see LoadCookieFile) where no browser is attached.
type MemoryStore struct {
	mu      sync.RWMutex
	cookies map[string][]Cookie
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cookies: make(map[string][]Cookie)}
}

// Add stores cookies in the given partition.
func (m *MemoryStore) Add(storeID string, cookies ...Cookie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies[storeID] = append(m.cookies[storeID], cookies...)
}

func (m *MemoryStore) Cookie(_ context.Context, storeID, rawURL, name string) (*Cookie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SelectForURL(m.cookies[storeID], rawURL, name)
}

func (m *MemoryStore) Cookies(_ context.Context, storeID string, filter CookieFilter) ([]Cookie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Cookie
	for _, c := range m.cookies[storeID] {
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// LoadCookieFile reads a YAML cookie export into a MemoryStore. The file maps
// partition ids to cookie lists; "" is the default partition:
//
//	"":
//	  - {name: sid, value: "00D...!...", domain: acme.my.salesforce.com, path: /, secure: true}
func LoadCookieFile(path string) (*MemoryStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var partitions map[string][]Cookie
	if err := yaml.Unmarshal(raw, &partitions); err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}

	store := NewMemoryStore()
	for storeID, cookies := range partitions {
		for i, c := range cookies {
			if c.Name == "" || c.Domain == "" {
				return nil, fmt.Errorf("cookie file %s: partition %q entry %d needs name and domain", path, storeID, i)
			}
		}
		store.Add(storeID, cookies...)
	}
	return store, nil
}
