// Package signal evaluates the independent model signals that feed the
// composite outreach score. Each signal has one Provider; providers never see
// each other's outputs.
package signal

import (
	"context"
	"sort"
	"sync"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Value is a single signal model output. Units depend on the signal:
// expected_return is a multiple of cost, success_prob is 0..1, expected_cost
// is USD, budget_plausible encodes a boolean as 0/1, the rest are 0..100.
type Value struct {
	Signal  string  `json:"signal"`
	Numeric float64 `json:"numeric"`
}

// Provider evaluates one signal for an action request against the matched
// identity. Evaluate must be safe for concurrent use.
type Provider interface {
	// Signal returns the signal name this provider supplies.
	Signal() string
	// Evaluate computes the signal value.
	Evaluate(ctx context.Context, req model.ActionRequest, identity model.MasterIdentity) (Value, error)
}

// Registry maps signal names to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider, replacing any previous provider for the signal.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Signal()] = p
}

// Get returns the provider for a signal, or nil.
func (r *Registry) Get(signal string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[signal]
}

// List returns registered signal names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
