package space

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gomodsel/domain/core"
)

// Configuration assigns values to the active hyperparameters of a space.
type Configuration map[string]interface{}

// Clone returns an independent copy.
func (c Configuration) Clone() Configuration {
	out := make(Configuration, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Key is a canonical, sorted name=value rendering used as the identity of a
// configuration across folds.
func (c Configuration) Key() string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + FormatValue(c[name])
	}
	return strings.Join(parts, ",")
}

// String is Key wrapped in braces.
func (c Configuration) String() string {
	return "{" + c.Key() + "}"
}

// Strip returns the values namespaced under prefix with the namespace removed.
func (c Configuration) Strip(prefix string) Configuration {
	ns := prefix + Separator
	out := make(Configuration)
	for k, v := range c {
		if strings.HasPrefix(k, ns) {
			out[strings.TrimPrefix(k, ns)] = v
		}
	}
	return out
}

// Float reads a numeric value, falling back to def when absent.
func (c Configuration) Float(name string, def float64) float64 {
	if x, ok := toFloat(c[name]); ok {
		return x
	}
	return def
}

// Int reads an integer value, falling back to def when absent.
func (c Configuration) Int(name string, def int) int {
	switch x := c[name].(type) {
	case int:
		return x
	case float64:
		return int(x)
	default:
		return def
	}
}

// StringValue reads a categorical value, falling back to def when absent.
func (c Configuration) StringValue(name string, def string) string {
	if s, ok := c[name].(string); ok {
		return s
	}
	return def
}

// Has reports whether name is set.
func (c Configuration) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// MarshalJSON writes the configuration with sorted keys.
func (c Configuration) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		key, _ := json.Marshal(name)
		val, err := json.Marshal(c[name])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteString(":")
		b.Write(val)
	}
	b.WriteString("}")
	return []byte(b.String()), nil
}

// ParseKey reverses Key. Numeric-looking values come back as int when they
// have no fractional part and no exponent, float64 otherwise; everything else
// stays a string. Parsed configurations are for reporting, not for refitting.
func ParseKey(key string) (Configuration, error) {
	cfg := make(Configuration)
	if strings.TrimSpace(key) == "" {
		return cfg, nil
	}
	for _, part := range strings.Split(key, ",") {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: malformed configuration entry %q", core.ErrInvalidConfiguration, part)
		}
		if i, err := strconv.Atoi(value); err == nil {
			cfg[name] = i
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg[name] = f
			continue
		}
		cfg[name] = value
	}
	return cfg, nil
}
