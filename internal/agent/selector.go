package agent

import (
	"fmt"

	"evoforge/internal/logging"
)

// Selector resolves blueprint agent names to available capabilities, falling
// back down the blueprint's fallback list when the primary is unavailable.
type Selector struct {
	capabilities map[string]Capability
}

// NewSelector creates a selector over the given capabilities.
func NewSelector(capabilities map[string]Capability) *Selector {
	return &Selector{capabilities: capabilities}
}

// Select returns the capability for primary, or the first available fallback.
// Returns ErrUnavailable when neither the primary nor any fallback can serve.
func (s *Selector) Select(primary string, fallbacks []string) (Capability, error) {
	if cap, ok := s.capabilities[primary]; ok && cap.Available() {
		return cap, nil
	}

	for _, name := range fallbacks {
		if cap, ok := s.capabilities[name]; ok && cap.Available() {
			logging.Agent("agent %s unavailable, falling back to %s", primary, name)
			return cap, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (fallbacks: %v)", ErrUnavailable, primary, fallbacks)
}

// Names lists configured agent names.
func (s *Selector) Names() []string {
	out := make([]string, 0, len(s.capabilities))
	for name := range s.capabilities {
		out = append(out, name)
	}
	return out
}
