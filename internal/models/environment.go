package models

import (
	"sort"
	"strings"
)

// Environment maps variable names to values.
type Environment map[string]string

// EnvironmentFromSlice parses KEY=VALUE pairs as returned by os.Environ.
// Entries without '=' are ignored.
func EnvironmentFromSlice(pairs []string) Environment {
	env := make(Environment, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// Merge returns a new Environment with overlay applied on top of e.
// Neither e nor overlay is modified.
func (e Environment) Merge(overlay Environment) Environment {
	merged := make(Environment, len(e)+len(overlay))
	for k, v := range e {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Slice returns the environment as sorted KEY=VALUE pairs.
func (e Environment) Slice() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+e[k])
	}
	return pairs
}
