package tts

import "fmt"

// Routing names the three provider roles and the languages the system voice
// handles well. The zero value is not useful; start from DefaultRouting.
type Routing struct {
	Default         string
	System          string
	Clone           string
	SystemLanguages []string
}

// DefaultRouting reproduces the built-in routing: Japanese and Swedish go to
// the system voice, other non-English text to the clone model.
func DefaultRouting() Routing {
	return Routing{
		Default:         ProviderNeural,
		System:          ProviderSystem,
		Clone:           ProviderClone,
		SystemLanguages: []string{"ja", "sv"},
	}
}

// Selector maps (requested provider, language) onto a registered provider.
type Selector struct {
	registry  *Registry
	routing   Routing
	systemSet map[string]struct{}
}

// NewSelector creates a selector over registry.
func NewSelector(registry *Registry, routing Routing) *Selector {
	set := make(map[string]struct{}, len(routing.SystemLanguages))
	for _, l := range routing.SystemLanguages {
		set[BaseLanguage(l)] = struct{}{}
	}
	return &Selector{registry: registry, routing: routing, systemSet: set}
}

// Select returns the provider name for a request. An explicit, registered
// provider always wins. Otherwise non-English text is routed to the system
// voice (allow-listed languages only) or the clone model, and everything
// else goes to the default. ErrNoProvider is returned if the outcome is not
// registered.
func (s *Selector) Select(requested, languageCode string) (string, error) {
	if requested != "" && s.registry.Has(requested) {
		return requested, nil
	}

	name := s.routing.Default
	if base := BaseLanguage(languageCode); base != "" && base != "en" {
		_, allowed := s.systemSet[base]
		switch {
		case allowed && s.registry.Has(s.routing.System):
			name = s.routing.System
		case s.registry.Has(s.routing.Clone):
			name = s.routing.Clone
		}
	}

	if !s.registry.Has(name) {
		return "", fmt.Errorf("%w: %q is not registered", ErrNoProvider, name)
	}
	return name, nil
}
