package models

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var defaultCatalogYAML []byte

// Catalog holds the fixed construction sequence: ordered phases plus the
// gate transitions between phase groups.
type Catalog struct {
	Phases      []Phase          `yaml:"phases"`
	Transitions []GateTransition `yaml:"transitions"`

	byOrdinal map[int]*Phase
	byID      map[string]*Phase
}

// LoadCatalog parses a phase catalog from YAML and validates it.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse phase catalog: %w", err)
	}
	if len(c.Phases) == 0 {
		return nil, fmt.Errorf("phase catalog is empty")
	}

	sort.Slice(c.Phases, func(i, j int) bool { return c.Phases[i].Ordinal < c.Phases[j].Ordinal })

	c.byOrdinal = make(map[int]*Phase, len(c.Phases))
	c.byID = make(map[string]*Phase, len(c.Phases))
	for i := range c.Phases {
		p := &c.Phases[i]
		if _, dup := c.byOrdinal[p.Ordinal]; dup {
			return nil, fmt.Errorf("duplicate phase ordinal %d", p.Ordinal)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate phase id %q", p.ID)
		}
		c.byOrdinal[p.Ordinal] = p
		c.byID[p.ID] = p
	}

	for _, t := range c.Transitions {
		if _, ok := c.byOrdinal[t.After]; !ok {
			return nil, fmt.Errorf("transition %q references unknown ordinal %d", t.ID, t.After)
		}
	}

	return &c, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded phase catalog. The embedded data is
// validated at first use; a malformed catalog is a build defect.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := LoadCatalog(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded phase catalog invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Len returns the number of phases in the sequence.
func (c *Catalog) Len() int { return len(c.Phases) }

// PhaseByOrdinal returns the phase at the given ordinal, or nil.
func (c *Catalog) PhaseByOrdinal(ordinal int) *Phase { return c.byOrdinal[ordinal] }

// PhaseByID returns the phase with the given id, or nil.
func (c *Catalog) PhaseByID(id string) *Phase { return c.byID[id] }

// TransitionByID returns the gate transition with the given id, or nil.
func (c *Catalog) TransitionByID(id string) *GateTransition {
	for i := range c.Transitions {
		if c.Transitions[i].ID == id {
			return &c.Transitions[i]
		}
	}
	return nil
}

// RequiredGates returns the transitions whose gate must be passed before a
// lot may occupy the target ordinal, in sequence order.
func (c *Catalog) RequiredGates(targetOrdinal int) []GateTransition {
	var gates []GateTransition
	for _, t := range c.Transitions {
		if t.After < targetOrdinal {
			gates = append(gates, t)
		}
	}
	return gates
}

// ProgressPercentage derives a lot's progress from its current ordinal.
// A lot at ordinal N has completed N-1 of Len phases.
func (c *Catalog) ProgressPercentage(currentOrdinal int) int {
	if c.Len() == 0 {
		return 0
	}
	done := currentOrdinal - 1
	if done < 0 {
		done = 0
	}
	if done > c.Len() {
		done = c.Len()
	}
	return done * 100 / c.Len()
}
