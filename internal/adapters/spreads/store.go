package spreads

import (
	"context"
	"embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

//go:embed data/spreads.yaml
var spreadFS embed.FS

// EmbeddedStore loads the spread catalog from the embedded YAML file.
type EmbeddedStore struct {
	once    sync.Once
	order   []string
	spreads map[string]domain.SpreadDef
	err     error
}

func NewEmbeddedStore() *EmbeddedStore {
	return &EmbeddedStore{}
}

func (s *EmbeddedStore) init() {
	raw, err := spreadFS.ReadFile("data/spreads.yaml")
	if err != nil {
		s.err = fmt.Errorf("read embedded spreads: %w", err)
		return
	}
	defs, err := parse(raw)
	if err != nil {
		s.err = err
		return
	}
	s.spreads = make(map[string]domain.SpreadDef, len(defs))
	for _, d := range defs {
		s.order = append(s.order, d.Key)
		s.spreads[d.Key] = d
	}
}

func parse(raw []byte) ([]domain.SpreadDef, error) {
	var defs []domain.SpreadDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse embedded spreads: %w", err)
	}
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		switch {
		case d.Key == "":
			return nil, fmt.Errorf("spread %d has no key", i)
		case seen[d.Key]:
			return nil, fmt.Errorf("spread %q defined twice", d.Key)
		case d.Count() < 1 || d.Count() > 10:
			return nil, fmt.Errorf("spread %q: %w", d.Key, domain.ErrInvalidN)
		}
		if d.MinTier == "" {
			defs[i].MinTier = domain.TierFree
		}
		seen[d.Key] = true
	}
	return defs, nil
}

func (s *EmbeddedStore) GetSpread(_ context.Context, key string) (domain.SpreadDef, error) {
	s.once.Do(s.init)
	if s.err != nil {
		return domain.SpreadDef{}, s.err
	}
	def, ok := s.spreads[key]
	if !ok {
		return domain.SpreadDef{}, fmt.Errorf("%w: %q", domain.ErrSpreadNotFound, key)
	}
	return def, nil
}

// ListSpreads returns the catalog in file order.
func (s *EmbeddedStore) ListSpreads(_ context.Context) ([]domain.SpreadDef, error) {
	s.once.Do(s.init)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.SpreadDef, 0, len(s.order))
	for _, k := range s.order {
		d := s.spreads[k]
		d.Positions = slices.Clone(d.Positions)
		out = append(out, d)
	}
	return out, nil
}
