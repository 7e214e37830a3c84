package space

import (
	"fmt"
	"math/rand"

	"gomodsel/domain/core"
)

// Separator joins a component name and its hyperparameter name.
const Separator = "__"

// InCondition activates Child only while Parent is active and takes one of Values.
type InCondition struct {
	Child  string
	Parent string
	Values []string
}

func (c InCondition) satisfiedBy(parentValue interface{}) bool {
	s := FormatValue(parentValue)
	for _, v := range c.Values {
		if v == s {
			return true
		}
	}
	return false
}

// ConfigurationSpace is the domain of tunable hyperparameters of one component
// or one pipeline, including conditional sub-domains.
//
// Conditions form a dependency graph over hyperparameters; a hyperparameter
// has at most one parent and the graph must stay acyclic. A space is
// read-only once handed to the optimizer and is safe to share across workers.
type ConfigurationSpace struct {
	params     []Hyperparameter
	index      map[string]int
	conditions map[string]InCondition // keyed by child
}

// New creates an empty configuration space.
func New() *ConfigurationSpace {
	return &ConfigurationSpace{
		index:      make(map[string]int),
		conditions: make(map[string]InCondition),
	}
}

// Add registers hyperparameters. Duplicate names are a configuration conflict.
func (s *ConfigurationSpace) Add(hps ...Hyperparameter) error {
	for _, hp := range hps {
		if err := checkDomain(hp); err != nil {
			return fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, err)
		}
		if _, exists := s.index[hp.Name()]; exists {
			return fmt.Errorf("%w: hyperparameter %q declared twice", core.ErrConfigurationConflict, hp.Name())
		}
		s.index[hp.Name()] = len(s.params)
		s.params = append(s.params, hp)
	}
	return nil
}

// MustAdd is Add for static component spaces whose declarations cannot fail.
func (s *ConfigurationSpace) MustAdd(hps ...Hyperparameter) *ConfigurationSpace {
	if err := s.Add(hps...); err != nil {
		panic(err)
	}
	return s
}

// AddCondition registers an activation predicate for a child hyperparameter.
func (s *ConfigurationSpace) AddCondition(c InCondition) error {
	child, ok := s.Get(c.Child)
	if !ok {
		return fmt.Errorf("%w: condition child %q not in space", core.ErrInvalidConfiguration, c.Child)
	}
	parent, ok := s.Get(c.Parent)
	if !ok {
		return fmt.Errorf("%w: condition parent %q not in space", core.ErrInvalidConfiguration, c.Parent)
	}
	if child.Name() == parent.Name() {
		return fmt.Errorf("%w: %q cannot condition itself", core.ErrInvalidConfiguration, c.Child)
	}
	if _, exists := s.conditions[c.Child]; exists {
		return fmt.Errorf("%w: %q already has a parent", core.ErrConfigurationConflict, c.Child)
	}
	if len(c.Values) == 0 {
		return fmt.Errorf("%w: condition on %q has no activating values", core.ErrInvalidConfiguration, c.Child)
	}
	if cat, ok := parent.(*Categorical); ok {
		for _, v := range c.Values {
			if !cat.Contains(v) {
				return fmt.Errorf("%w: %q is not a choice of %q", core.ErrInvalidConfiguration, v, c.Parent)
			}
		}
	}
	for p := c.Parent; p != ""; p = s.conditions[p].Parent {
		if p == c.Child {
			return fmt.Errorf("%w: condition cycle through %q", core.ErrInvalidConfiguration, c.Child)
		}
	}
	s.conditions[c.Child] = InCondition{Child: c.Child, Parent: c.Parent, Values: append([]string(nil), c.Values...)}
	return nil
}

// MustAddCondition is AddCondition for static component spaces.
func (s *ConfigurationSpace) MustAddCondition(c InCondition) *ConfigurationSpace {
	if err := s.AddCondition(c); err != nil {
		panic(err)
	}
	return s
}

// Get looks up a hyperparameter by name.
func (s *ConfigurationSpace) Get(name string) (Hyperparameter, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.params[i], true
}

// Hyperparameters returns the hyperparameters in declaration order.
func (s *ConfigurationSpace) Hyperparameters() []Hyperparameter {
	return append([]Hyperparameter(nil), s.params...)
}

// Conditions returns the registered conditions in hyperparameter order.
func (s *ConfigurationSpace) Conditions() []InCondition {
	var out []InCondition
	for _, hp := range s.params {
		if c, ok := s.conditions[hp.Name()]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Len is the number of hyperparameters.
func (s *ConfigurationSpace) Len() int {
	return len(s.params)
}

// order lists hyperparameters so that every parent precedes its children,
// keeping declaration order otherwise.
func (s *ConfigurationSpace) order() []Hyperparameter {
	depth := make(map[string]int, len(s.params))
	var depthOf func(name string) int
	depthOf = func(name string) int {
		if d, ok := depth[name]; ok {
			return d
		}
		d := 0
		if c, ok := s.conditions[name]; ok {
			d = depthOf(c.Parent) + 1
		}
		depth[name] = d
		return d
	}
	maxDepth := 0
	for _, hp := range s.params {
		if d := depthOf(hp.Name()); d > maxDepth {
			maxDepth = d
		}
	}
	ordered := make([]Hyperparameter, 0, len(s.params))
	for d := 0; d <= maxDepth; d++ {
		for _, hp := range s.params {
			if depth[hp.Name()] == d {
				ordered = append(ordered, hp)
			}
		}
	}
	return ordered
}

// isActive evaluates the activation chain of name against a partially built configuration.
func (s *ConfigurationSpace) isActive(name string, cfg Configuration) bool {
	c, ok := s.conditions[name]
	if !ok {
		return true
	}
	pv, present := cfg[c.Parent]
	if !present {
		return false
	}
	return s.isActive(c.Parent, cfg) && c.satisfiedBy(pv)
}

// IsActive reports whether name is active under cfg.
func (s *ConfigurationSpace) IsActive(name string, cfg Configuration) bool {
	if _, ok := s.index[name]; !ok {
		return false
	}
	return s.isActive(name, cfg)
}

// Sample draws a configuration containing exactly the active hyperparameters.
func (s *ConfigurationSpace) Sample(rng *rand.Rand) Configuration {
	cfg := make(Configuration, len(s.params))
	for _, hp := range s.order() {
		if s.isActive(hp.Name(), cfg) {
			cfg[hp.Name()] = hp.Sample(rng)
		}
	}
	return cfg
}

// Default returns the configuration of default values, restricted to active hyperparameters.
func (s *ConfigurationSpace) Default() Configuration {
	cfg := make(Configuration, len(s.params))
	for _, hp := range s.order() {
		if s.isActive(hp.Name(), cfg) {
			cfg[hp.Name()] = hp.Default()
		}
	}
	return cfg
}

// Validate checks a configuration at instantiation time: every active
// hyperparameter present and inside its domain, no inactive or unknown name.
func (s *ConfigurationSpace) Validate(cfg Configuration) error {
	for name := range cfg {
		if _, ok := s.index[name]; !ok {
			return fmt.Errorf("%w: unknown hyperparameter %q", core.ErrInvalidConfiguration, name)
		}
	}
	for _, hp := range s.order() {
		v, present := cfg[hp.Name()]
		active := s.isActive(hp.Name(), cfg)
		switch {
		case active && !present:
			return fmt.Errorf("%w: active hyperparameter %q missing", core.ErrInvalidConfiguration, hp.Name())
		case !active && present:
			return fmt.Errorf("%w: inactive hyperparameter %q set", core.ErrInvalidConfiguration, hp.Name())
		case present && !hp.Contains(v):
			return fmt.Errorf("%w: %q=%s outside its domain", core.ErrInvalidConfiguration, hp.Name(), FormatValue(v))
		}
	}
	return nil
}

// Merge copies every hyperparameter and condition of other into s under
// prefix+Separator. A collision after namespacing is a configuration conflict.
func (s *ConfigurationSpace) Merge(prefix string, other *ConfigurationSpace) error {
	if other == nil {
		return nil
	}
	if prefix == "" {
		return fmt.Errorf("%w: empty namespace prefix", core.ErrConfigurationConflict)
	}
	ns := func(name string) string { return prefix + Separator + name }
	for _, hp := range other.params {
		if err := s.Add(hp.rename(ns(hp.Name()))); err != nil {
			return err
		}
	}
	for _, c := range other.Conditions() {
		if err := s.AddCondition(InCondition{Child: ns(c.Child), Parent: ns(c.Parent), Values: c.Values}); err != nil {
			return err
		}
	}
	return nil
}

// Vector encodes cfg into [0, 1]^Len for surrogate models; inactive
// hyperparameters encode as -1 so they stay distinguishable.
func (s *ConfigurationSpace) Vector(cfg Configuration) []float64 {
	vec := make([]float64, len(s.params))
	for i, hp := range s.params {
		v, ok := cfg[hp.Name()]
		if !ok {
			vec[i] = -1
			continue
		}
		vec[i] = hp.Normalize(v)
	}
	return vec
}
