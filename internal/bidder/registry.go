package bidder

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownBidder is returned when a bidder name is not registered.
var ErrUnknownBidder = errors.New("unknown bidder")

// Registry holds the registered bidders by name.
type Registry struct {
	mu      sync.RWMutex
	bidders map[string]Bidder
}

// NewRegistry creates an empty bidder registry.
func NewRegistry() *Registry {
	return &Registry{
		bidders: make(map[string]Bidder),
	}
}

// Register adds a bidder under the given name, replacing any previous one.
func (r *Registry) Register(name string, b Bidder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bidders[name] = b
}

// Get returns the bidder registered under name.
func (r *Registry) Get(name string) (Bidder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bidders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBidder, name)
	}
	return b, nil
}

// Resolve returns the sorted names of the registered bidders an impression
// extension addresses. Both top-level keys and the keys of prebid.bidder
// count. Unknown names are ignored.
func (r *Registry) Resolve(impExt json.RawMessage) ([]string, error) {
	if len(impExt) == 0 {
		return nil, nil
	}

	var ext map[string]json.RawMessage
	if err := json.Unmarshal(impExt, &ext); err != nil {
		return nil, fmt.Errorf("decode imp ext: %w", err)
	}

	candidates := make([]string, 0, len(ext))
	for k := range ext {
		candidates = append(candidates, k)
	}
	if raw, ok := ext["prebid"]; ok {
		var prebid struct {
			Bidder map[string]json.RawMessage `json:"bidder"`
		}
		if err := json.Unmarshal(raw, &prebid); err == nil {
			for k := range prebid.Bidder {
				candidates = append(candidates, k)
			}
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for _, name := range candidates {
		if _, ok := r.bidders[name]; ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// List returns information about all registered bidders, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.bidders))
	for name, b := range r.bidders {
		info := b.Info()
		info.Name = name
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
