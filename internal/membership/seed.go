package membership

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk shape of a membership seed file:
//
//	groups:
//	  team-a: [alice, bob]
//	  lobby: []
type Seed struct {
	Groups map[string][]string `yaml:"groups"`
}

func ParseSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("parse membership seed: %w", err)
	}
	for g, users := range seed.Groups {
		if g == "" {
			return Seed{}, fmt.Errorf("parse membership seed: %w", ErrInvalidID)
		}
		for _, u := range users {
			if u == "" {
				return Seed{}, fmt.Errorf("parse membership seed: group %q: %w", g, ErrInvalidID)
			}
		}
	}
	return seed, nil
}

// Apply writes the seed through p. Existing memberships are kept.
func (s Seed) Apply(ctx context.Context, p Provider) error {
	groups := make([]string, 0, len(s.Groups))
	for g := range s.Groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, g := range groups {
		if err := p.EnsureGroup(ctx, g); err != nil {
			return fmt.Errorf("seed group %q: %w", g, err)
		}
		for _, u := range s.Groups[g] {
			if err := p.AddMembership(ctx, g, u); err != nil {
				return fmt.Errorf("seed membership %q/%q: %w", g, u, err)
			}
		}
	}
	return nil
}

// LoadSeedFile parses path and applies it to p. It returns the number of
// groups seeded.
func LoadSeedFile(ctx context.Context, path string, p Provider) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	seed, err := ParseSeed(f)
	if err != nil {
		return 0, err
	}
	if err := seed.Apply(ctx, p); err != nil {
		return 0, err
	}
	return len(seed.Groups), nil
}
