// Package routing implements the Model Catalog, the Circuit Breaker, and the
// Model Router: the collaborators the Run Supervisor consults to turn
// provider availability, routing preferences, and constraints into an
// ordered plan of (provider, model) candidates to try in turn.
package routing

import "sync"

// ModelClass is a capability tag a ModelProfile can advertise.
type ModelClass string

const (
	ClassDefault     ModelClass = "default"
	ClassFrontier    ModelClass = "frontier"
	ClassFast        ModelClass = "fast"
	ClassLongContext ModelClass = "long_context"
	ClassCheap       ModelClass = "cheap"
)

// Capabilities describes what a ModelProfile's backend supports.
type Capabilities struct {
	Streaming bool
	Tools     bool
}

// ModelProfile describes one (provider, model) pair's routing-relevant
// properties.
type ModelProfile struct {
	ProviderID       string
	ModelID          string
	Classes          []ModelClass
	LatencyRank      int
	CostRank         int
	MaxContextTokens *int
	Capabilities     *Capabilities
}

// Ref returns the canonical "provider:model" Breaker key.
func (p ModelProfile) Ref() string {
	return p.ProviderID + ":" + p.ModelID
}

func (p ModelProfile) hasClass(c ModelClass) bool {
	if c == ClassDefault {
		return len(p.Classes) > 0
	}
	for _, pc := range p.Classes {
		if pc == c {
			return true
		}
	}
	return false
}

// Catalog is an append-only registry of ModelProfiles.
type Catalog struct {
	mu       sync.RWMutex
	profiles []ModelProfile
}

// NewCatalog creates an empty Catalog, optionally seeded with profiles.
func NewCatalog(seed ...ModelProfile) *Catalog {
	c := &Catalog{}
	for _, p := range seed {
		c.Register(p)
	}
	return c
}

// Register appends profile to the catalog. Registering the same
// (provider, model) pair again appends a duplicate entry; callers that
// re-discover profiles from a provider should dedupe before calling this.
func (c *Catalog) Register(p ModelProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = append(c.profiles, p)
}

// All returns every registered profile.
func (c *Catalog) All() []ModelProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// ListByClass returns profiles advertising class, in registration order.
// ClassDefault matches any profile with a non-empty Classes list.
func (c *Catalog) ListByClass(class ModelClass) []ModelProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ModelProfile
	for _, p := range c.profiles {
		if p.hasClass(class) {
			out = append(out, p)
		}
	}
	return out
}

// ListByProvider returns every profile registered under providerID.
func (c *Catalog) ListByProvider(providerID string) []ModelProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ModelProfile
	for _, p := range c.profiles {
		if p.ProviderID == providerID {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the profile matching (provider, model), if any.
func (c *Catalog) Find(providerID, modelID string) (ModelProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.profiles {
		if p.ProviderID == providerID && p.ModelID == modelID {
			return p, true
		}
	}
	return ModelProfile{}, false
}
