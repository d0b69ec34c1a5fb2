package universe

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticProvider serves fixed symbol lists, typically user watch lists.
type StaticProvider struct {
	names []string
	sets  map[string][]string
}

// staticFile is the YAML layout read by LoadStaticFile:
//
//	universes:
//	  - name: WATCHLIST
//	    suffix: .NS
//	    symbols: [TCS, INFY]
type staticFile struct {
	Universes []struct {
		Name    string   `yaml:"name"`
		Suffix  string   `yaml:"suffix"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"universes"`
}

// NewStaticProvider builds a provider from in-memory lists. Universes are
// reported in the order of names.
func NewStaticProvider(names []string, sets map[string][]string) *StaticProvider {
	p := &StaticProvider{sets: make(map[string][]string, len(sets))}
	for _, n := range names {
		if s, ok := sets[n]; ok {
			p.names = append(p.names, n)
			p.sets[n] = normalize(s, "")
		}
	}
	return p
}

// LoadStaticFile reads universes from a YAML file.
func LoadStaticFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universes file: %w", err)
	}
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse universes file: %w", err)
	}
	p := &StaticProvider{sets: make(map[string][]string)}
	for _, u := range f.Universes {
		if u.Name == "" {
			return nil, fmt.Errorf("universes file: entry without name")
		}
		if _, dup := p.sets[u.Name]; dup {
			return nil, fmt.Errorf("universes file: duplicate universe %q", u.Name)
		}
		p.names = append(p.names, u.Name)
		p.sets[u.Name] = normalize(u.Symbols, u.Suffix)
	}
	return p, nil
}

func (p *StaticProvider) Universes() []string {
	return append([]string(nil), p.names...)
}

func (p *StaticProvider) ListSymbols(_ context.Context, name string) ([]string, error) {
	s, ok := p.sets[name]
	if !ok {
		return nil, &LookupError{Universe: name, Err: ErrUnknownUniverse}
	}
	return append([]string(nil), s...), nil
}
