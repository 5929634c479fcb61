package llms

import (
	"fmt"

	"github.com/alexos/chainbot/pkg/registry"
)

// ============================================================================
// PROVIDER REGISTRY
// ============================================================================

// ProviderSet manages the registered completion providers.
type ProviderSet struct {
	*registry.BaseRegistry[Provider]
}

func NewProviderSet() *ProviderSet {
	return &ProviderSet{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

// RegisterProvider registers a provider under its own name.
func (s *ProviderSet) RegisterProvider(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	return s.Register(p.Name(), p)
}

// Available returns the names of providers currently able to serve requests.
func (s *ProviderSet) Available() []string {
	var names []string
	for _, name := range s.Names() {
		if p, ok := s.Get(name); ok && p.Available() {
			names = append(names, name)
		}
	}
	return names
}

// FirstAvailable returns an available provider, preferring the given name.
func (s *ProviderSet) FirstAvailable(preferred string) (Provider, bool) {
	if preferred != "" {
		if p, ok := s.Get(preferred); ok && p.Available() {
			return p, true
		}
	}
	for _, name := range s.Names() {
		if p, ok := s.Get(name); ok && p.Available() {
			return p, true
		}
	}
	return nil, false
}
