package universe

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownUniverse is wrapped by a LookupError when no provider serves the
// requested universe.
var ErrUnknownUniverse = errors.New("unknown universe")

// Provider lists the member symbols of named universes.
type Provider interface {
	ListSymbols(ctx context.Context, name string) ([]string, error)
	Universes() []string
}

// LookupError aborts a scan: the universe could not be resolved.
type LookupError struct {
	Universe string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("universe %q: %v", e.Universe, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// normalize trims, applies suffix to bare tickers and drops blanks and
// duplicates while keeping the first occurrence order.
func normalize(symbols []string, suffix string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if suffix != "" && !strings.Contains(s, ".") {
			s += suffix
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Registry routes lookups to the first provider that serves a universe.
type Registry struct {
	providers []Provider
}

func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Universes lists every served universe once, in provider order.
func (r *Registry) Universes() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range r.providers {
		for _, n := range p.Universes() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

func (r *Registry) ListSymbols(ctx context.Context, name string) ([]string, error) {
	for _, p := range r.providers {
		for _, n := range p.Universes() {
			if n == name {
				return p.ListSymbols(ctx, name)
			}
		}
	}
	return nil, &LookupError{Universe: name, Err: ErrUnknownUniverse}
}
