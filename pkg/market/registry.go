package market

import (
	"fmt"
	"sync"
)

// Registry manages the set of trading pairs in a thread-safe manner. It is
// read-mostly: lookups from the hot order-submission path take the read
// lock, and registration/status changes are rare administrative writes.
type Registry struct {
	mu    sync.RWMutex
	pairs map[string]*TradingPairConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pairs: make(map[string]*TradingPairConfig)}
}

// Register adds a new pair. Returns an error if the symbol already exists
// or the config fails static validation.
func (r *Registry) Register(c *TradingPairConfig) error {
	if c == nil {
		return fmt.Errorf("market: cannot register nil config")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pairs[c.Symbol]; exists {
		return fmt.Errorf("market: %s already registered", c.Symbol)
	}
	r.pairs[c.Symbol] = c
	return nil
}

// Get retrieves a pair by symbol.
func (r *Registry) Get(symbol string) (*TradingPairConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.pairs[symbol]
	if !exists {
		return nil, fmt.Errorf("market: %s not found", symbol)
	}
	return c, nil
}

// List returns every registered pair.
func (r *Registry) List() []*TradingPairConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TradingPairConfig, 0, len(r.pairs))
	for _, c := range r.pairs {
		out = append(out, c)
	}
	return out
}

// ListTrading returns only pairs currently open for trading.
func (r *Registry) ListTrading() []*TradingPairConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TradingPairConfig, 0)
	for _, c := range r.pairs {
		if c.Status == Trading {
			out = append(out, c)
		}
	}
	return out
}

// UpdateStatus transitions a pair's status, rejecting transitions out of
// the terminal Delisted state.
func (r *Registry) UpdateStatus(symbol string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.pairs[symbol]
	if !exists {
		return fmt.Errorf("market: %s not found", symbol)
	}
	if c.Status == Delisted {
		return fmt.Errorf("market: %s is delisted (terminal state)", symbol)
	}
	c.Status = status
	return nil
}

// Exists reports whether symbol is registered.
func (r *Registry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.pairs[symbol]
	return exists
}

// Count returns the number of registered pairs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairs)
}
