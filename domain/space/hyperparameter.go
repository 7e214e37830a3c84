package space

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// Hyperparameter is one named domain in a ConfigurationSpace.
//
// Values are float64 (Float), int (Int) or string (Categorical). Normalize and
// Denormalize map the domain onto [0, 1] for surrogate models.
type Hyperparameter interface {
	Name() string
	Default() interface{}
	Sample(rng *rand.Rand) interface{}
	Contains(v interface{}) bool
	Normalize(v interface{}) float64
	Denormalize(u float64) interface{}

	rename(name string) Hyperparameter
}

// Float is a continuous range [Lower, Upper], optionally sampled on a log scale.
type Float struct {
	name         string
	Lower, Upper float64
	DefaultValue float64
	Log          bool
}

// NewFloat creates a uniform float hyperparameter.
func NewFloat(name string, lower, upper, def float64) *Float {
	return &Float{name: name, Lower: lower, Upper: upper, DefaultValue: def}
}

// NewLogFloat creates a float hyperparameter sampled uniformly in log space.
func NewLogFloat(name string, lower, upper, def float64) *Float {
	return &Float{name: name, Lower: lower, Upper: upper, DefaultValue: def, Log: true}
}

func (f *Float) Name() string         { return f.name }
func (f *Float) Default() interface{} { return f.DefaultValue }

func (f *Float) Sample(rng *rand.Rand) interface{} {
	return f.Denormalize(rng.Float64())
}

func (f *Float) Contains(v interface{}) bool {
	x, ok := toFloat(v)
	return ok && !math.IsNaN(x) && x >= f.Lower && x <= f.Upper
}

func (f *Float) Normalize(v interface{}) float64 {
	x, _ := toFloat(v)
	if f.Upper == f.Lower {
		return 0
	}
	if f.Log {
		return clamp01((math.Log(x) - math.Log(f.Lower)) / (math.Log(f.Upper) - math.Log(f.Lower)))
	}
	return clamp01((x - f.Lower) / (f.Upper - f.Lower))
}

func (f *Float) Denormalize(u float64) interface{} {
	u = clamp01(u)
	if f.Log {
		lo, hi := math.Log(f.Lower), math.Log(f.Upper)
		return math.Min(f.Upper, math.Max(f.Lower, math.Exp(lo+u*(hi-lo))))
	}
	return f.Lower + u*(f.Upper-f.Lower)
}

func (f *Float) rename(name string) Hyperparameter {
	c := *f
	c.name = name
	return &c
}

// Int is an inclusive integer range [Lower, Upper].
type Int struct {
	name         string
	Lower, Upper int
	DefaultValue int
}

// NewInt creates a uniform integer hyperparameter.
func NewInt(name string, lower, upper, def int) *Int {
	return &Int{name: name, Lower: lower, Upper: upper, DefaultValue: def}
}

func (i *Int) Name() string         { return i.name }
func (i *Int) Default() interface{} { return i.DefaultValue }

func (i *Int) Sample(rng *rand.Rand) interface{} {
	return i.Lower + rng.Intn(i.Upper-i.Lower+1)
}

func (i *Int) Contains(v interface{}) bool {
	x, ok := v.(int)
	return ok && x >= i.Lower && x <= i.Upper
}

func (i *Int) Normalize(v interface{}) float64 {
	x, _ := v.(int)
	if i.Upper == i.Lower {
		return 0
	}
	return clamp01(float64(x-i.Lower) / float64(i.Upper-i.Lower))
}

func (i *Int) Denormalize(u float64) interface{} {
	return i.Lower + int(math.Round(clamp01(u)*float64(i.Upper-i.Lower)))
}

func (i *Int) rename(name string) Hyperparameter {
	c := *i
	c.name = name
	return &c
}

// Categorical is a finite set of string choices.
type Categorical struct {
	name         string
	Choices      []string
	DefaultValue string
}

// NewCategorical creates a categorical hyperparameter. An empty default selects the first choice.
func NewCategorical(name string, choices []string, def string) *Categorical {
	if def == "" && len(choices) > 0 {
		def = choices[0]
	}
	return &Categorical{name: name, Choices: append([]string(nil), choices...), DefaultValue: def}
}

func (c *Categorical) Name() string         { return c.name }
func (c *Categorical) Default() interface{} { return c.DefaultValue }

func (c *Categorical) Sample(rng *rand.Rand) interface{} {
	return c.Choices[rng.Intn(len(c.Choices))]
}

func (c *Categorical) Contains(v interface{}) bool {
	return c.index(v) >= 0
}

func (c *Categorical) Normalize(v interface{}) float64 {
	idx := c.index(v)
	if idx < 0 || len(c.Choices) < 2 {
		return 0
	}
	return float64(idx) / float64(len(c.Choices)-1)
}

func (c *Categorical) Denormalize(u float64) interface{} {
	idx := int(math.Round(clamp01(u) * float64(len(c.Choices)-1)))
	return c.Choices[idx]
}

func (c *Categorical) index(v interface{}) int {
	s, ok := v.(string)
	if !ok {
		return -1
	}
	for i, choice := range c.Choices {
		if choice == s {
			return i
		}
	}
	return -1
}

func (c *Categorical) rename(name string) Hyperparameter {
	cp := *c
	cp.name = name
	cp.Choices = append([]string(nil), c.Choices...)
	return &cp
}

// checkDomain validates the bounds a hyperparameter was declared with.
func checkDomain(hp Hyperparameter) error {
	switch h := hp.(type) {
	case *Float:
		if h.Lower > h.Upper {
			return fmt.Errorf("%s: lower %g > upper %g", h.name, h.Lower, h.Upper)
		}
		if h.Log && h.Lower <= 0 {
			return fmt.Errorf("%s: log scale requires lower > 0", h.name)
		}
		if !h.Contains(h.DefaultValue) {
			return fmt.Errorf("%s: default %g outside [%g, %g]", h.name, h.DefaultValue, h.Lower, h.Upper)
		}
	case *Int:
		if h.Lower > h.Upper {
			return fmt.Errorf("%s: lower %d > upper %d", h.name, h.Lower, h.Upper)
		}
		if !h.Contains(h.DefaultValue) {
			return fmt.Errorf("%s: default %d outside [%d, %d]", h.name, h.DefaultValue, h.Lower, h.Upper)
		}
	case *Categorical:
		if len(h.Choices) == 0 {
			return fmt.Errorf("%s: no choices", h.name)
		}
		if !h.Contains(h.DefaultValue) {
			return fmt.Errorf("%s: default %q not among choices", h.name, h.DefaultValue)
		}
	}
	if hp.Name() == "" {
		return fmt.Errorf("hyperparameter name cannot be empty")
	}
	return nil
}

// FormatValue renders a configuration value the same way everywhere it is
// compared or serialised.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func clamp01(u float64) float64 {
	if u < 0 || math.IsNaN(u) {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}
