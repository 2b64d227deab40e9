package buildenv

import (
	"sort"
	"strings"
)

// Variables is a set of environment variables rendered in key order, so two
// compositions from the same inputs render byte-identically.
type Variables struct {
	m map[string]string
}

// NewVariables returns an empty set.
func NewVariables() *Variables {
	return &Variables{m: make(map[string]string)}
}

// Set assigns name, replacing any previous value.
func (v *Variables) Set(name, value string) {
	v.m[name] = value
}

// Get returns the value of name and whether it is set.
func (v *Variables) Get(name string) (string, bool) {
	val, ok := v.m[name]
	return val, ok
}

// Unset removes name.
func (v *Variables) Unset(name string) {
	delete(v.m, name)
}

// AppendList joins values onto name with sep, skipping empty values. A
// variable with no values is left unset.
func (v *Variables) AppendList(name, sep string, values ...string) {
	var parts []string
	if cur, ok := v.m[name]; ok && cur != "" {
		parts = append(parts, cur)
	}
	for _, val := range values {
		if val != "" {
			parts = append(parts, val)
		}
	}
	if len(parts) > 0 {
		v.m[name] = strings.Join(parts, sep)
	}
}

// AppendFlags adds space-separated flags to name.
func (v *Variables) AppendFlags(name string, flags ...string) {
	v.AppendList(name, " ", flags...)
}

// Keys returns the variable names in sorted order.
func (v *Variables) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ renders NAME=value entries in key order, suitable for exec.Cmd.Env.
func (v *Variables) Environ() []string {
	out := make([]string, 0, len(v.m))
	for _, k := range v.Keys() {
		out = append(out, k+"="+v.m[k])
	}
	return out
}

// Map returns a copy of the variables.
func (v *Variables) Map() map[string]string {
	out := make(map[string]string, len(v.m))
	for k, val := range v.m {
		out[k] = val
	}
	return out
}

// Clone returns an independent copy.
func (v *Variables) Clone() *Variables {
	return &Variables{m: v.Map()}
}

// Len returns the number of variables.
func (v *Variables) Len() int { return len(v.m) }
