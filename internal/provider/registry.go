package provider

import (
	"github.com/yourorg/metaswap-gateway/internal/fault"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/types"
)

// Registry holds the providers for the lifetime of the process. It is
// built once at start-up and only read afterwards.
type Registry struct {
	providers []Provider
}

// NewRegistry registers providers in order. When several providers serve
// the same chain and category, the one registered first wins.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make([]Provider, 0, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// Find returns the first registered provider supporting chain and category.
func (r *Registry) Find(chain types.SupportedChain, category types.MarketCategory) (Provider, error) {
	if i := r.first(chain, category); i >= 0 {
		return r.providers[i], nil
	}
	return nil, fault.New(fault.ProviderNotFound, "no provider for chain %q and category %q", chain, category)
}

// Descriptors lists the registered providers' capabilities in registration order
func (r *Registry) Descriptors() []model.ProviderDescriptor {
	out := make([]model.ProviderDescriptor, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Descriptor())
	}
	return out
}

// Shadowed lists providers that Find can never return because earlier
// registrations already serve every chain and category they declare.
func (r *Registry) Shadowed() []string {
	var out []string
	for i, p := range r.providers {
		d := p.Descriptor()
		reachable := false
		for _, chain := range d.Chains {
			for _, category := range d.Categories {
				if r.first(chain, category) == i {
					reachable = true
				}
			}
		}
		if !reachable {
			out = append(out, d.Name)
		}
	}
	return out
}

func (r *Registry) first(chain types.SupportedChain, category types.MarketCategory) int {
	for i, p := range r.providers {
		if p.Descriptor().Supports(chain, category) {
			return i
		}
	}
	return -1
}
