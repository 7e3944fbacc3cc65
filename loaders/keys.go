// Package loaders resolves verification-key references to key material.
// Recursive credential witnesses carry only a reference to the inner
// program's verification key; a verifier resolves it through a Registry
// populated with the keys of the programs it trusts.
package loaders

import (
	"sync"

	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/cache"
	"github.com/iden3/go-private-credentials/constants"
	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned when no source can resolve a key reference.
var ErrKeyNotFound = errors.New("verification key not found")

// KeyLoader loads verification keys from an external source, keyed by the
// canonical key reference.
type KeyLoader interface {
	Load(ref string) (backend.VerificationKey, error)
}

// Registry resolves verification keys in order: registered keys, cache,
// fallback loader. A fallback result is cached unless caching is disabled.
type Registry struct {
	mu       sync.RWMutex
	keys     map[string]backend.VerificationKey
	fallback KeyLoader
	cache    cache.ICache[backend.VerificationKey]
}

// Option configures a Registry.
type Option func(*Registry)

// WithKeyLoader sets a fallback loader consulted for references that were
// never registered.
func WithKeyLoader(l KeyLoader) Option {
	return func(r *Registry) {
		r.fallback = l
	}
}

// WithCache replaces the default fallback-result cache.
func WithCache(c cache.ICache[backend.VerificationKey]) Option {
	return func(r *Registry) {
		r.cache = c
	}
}

// WithCacheDisabled disables caching of fallback results.
func WithCacheDisabled() Option {
	return func(r *Registry) {
		r.cache = nil
	}
}

// NewRegistry creates a key registry. By default fallback results are cached
// with the package defaults; use options to customize.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		keys:  make(map[string]backend.VerificationKey),
		cache: cache.NewInMemoryCache[backend.VerificationKey](constants.DefaultCacheMaxSize, constants.DefaultKeyCacheTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted verification key and returns its canonical
// reference.
func (r *Registry) Register(vk backend.VerificationKey) string {
	ref := vk.Ref()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[ref] = vk
	return ref
}

// Resolve returns the key for ref, consulting registered keys, then the
// cache, then the fallback loader.
func (r *Registry) Resolve(ref string) (backend.VerificationKey, error) {
	r.mu.RLock()
	vk, ok := r.keys[ref]
	r.mu.RUnlock()
	if ok {
		return vk, nil
	}

	if r.cache != nil {
		if vk, ok := r.cache.Get(ref); ok {
			return vk, nil
		}
	}

	if r.fallback == nil {
		return backend.VerificationKey{}, ErrKeyNotFound
	}
	vk, err := r.fallback.Load(ref)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return backend.VerificationKey{}, ErrKeyNotFound
		}
		return backend.VerificationKey{}, err
	}
	if r.cache != nil {
		r.cache.Set(ref, vk)
	}
	return vk, nil
}
