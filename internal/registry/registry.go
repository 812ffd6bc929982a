// Package registry maps provider identities to lazily built, memoized provider instances.
package registry

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/couchcryptid/geosearch/internal/domain"
)

// Factory builds a provider. It is called at most once per identity unless it fails.
type Factory func() (domain.Provider, error)

// Table is the static registration table: ordered identity lists plus a
// factory per provider type name (see domain.TypeName).
type Table struct {
	Street    []domain.Identity
	IP        []domain.Identity
	Factories map[string]Factory
}

// Registry owns one provider instance per identity for its lifetime.
type Registry struct {
	street    []domain.Identity
	ip        []domain.Identity
	valid     map[domain.Identity]struct{}
	factories map[string]Factory

	mu        sync.Mutex
	instances map[domain.Identity]domain.Provider

	// OnCreate, when set, is called after a provider is built. Used for metrics.
	OnCreate func(id domain.Identity)
}

// New creates a Registry from t. The street and IP lists must not be empty.
func New(t Table) *Registry {
	if len(t.Street) == 0 || len(t.IP) == 0 {
		panic("registry: street and ip provider lists must not be empty")
	}
	r := &Registry{
		street:    append([]domain.Identity(nil), t.Street...),
		ip:        append([]domain.Identity(nil), t.IP...),
		valid:     make(map[domain.Identity]struct{}, len(t.Street)+len(t.IP)),
		factories: make(map[string]Factory, len(t.Factories)),
		instances: make(map[domain.Identity]domain.Provider),
	}
	for _, id := range r.ValidIdentities() {
		r.valid[id] = struct{}{}
	}
	for name, f := range t.Factories {
		r.factories[name] = f
	}
	return r
}

// ValidIdentities returns the street identities followed by the IP identities.
func (r *Registry) ValidIdentities() []domain.Identity {
	out := make([]domain.Identity, 0, len(r.street)+len(r.ip))
	out = append(out, r.street...)
	return append(out, r.ip...)
}

// StreetDefault is the first street-address provider.
func (r *Registry) StreetDefault() domain.Identity { return r.street[0] }

// IPDefault is the first IP provider.
func (r *Registry) IPDefault() domain.Identity { return r.ip[0] }

// Resolve returns the provider for id, building it on first use. Concurrent
// first calls for the same identity observe the same instance.
func (r *Registry) Resolve(id domain.Identity) (domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[id]; ok {
		return p, nil
	}
	if _, ok := r.valid[id]; !ok {
		return nil, r.configErr(id, "not a registered provider", nil)
	}

	name := domain.TypeName(id)
	factory, ok := r.factories[name]
	if !ok {
		return nil, r.configErr(id, fmt.Sprintf("no provider type %s registered", name), nil)
	}
	p, err := factory()
	if err != nil {
		return nil, r.configErr(id, "provider could not be built", err)
	}
	r.instances[id] = p
	if r.OnCreate != nil {
		r.OnCreate(id)
	}
	return p, nil
}

// Instantiated returns how many providers have been built so far.
func (r *Registry) Instantiated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Close releases every built provider that holds resources, such as an open
// database file. The registry must not be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, p := range r.instances {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close provider %s: %w", id, err))
			}
		}
		delete(r.instances, id)
	}
	return errors.Join(errs...)
}

func (r *Registry) configErr(id domain.Identity, reason string, err error) *domain.ConfigurationError {
	return &domain.ConfigurationError{
		Identity: id,
		Valid:    r.ValidIdentities(),
		Reason:   reason,
		Err:      err,
	}
}
