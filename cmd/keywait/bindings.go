package main

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Bindings maps raw input lines to key names. Lines without a binding pass through as is.
//
//	keys:
//	  w: Up
//	  s: Down
type Bindings struct {
	Keys map[string]string `yaml:"keys"`
}

// LoadBindings reads a YAML bindings file. An empty path yields no bindings.
func LoadBindings(path string) (Bindings, error) {
	var b Bindings
	if path == "" {
		return b, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return b, eris.Wrapf(err, "failed to read bindings %s", path)
	}
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return b, eris.Wrapf(err, "failed to parse bindings %s", path)
	}
	for in, key := range b.Keys {
		if normalize(in) == "" || normalize(key) == "" {
			return b, eris.Errorf("empty binding %q: %q", in, key)
		}
	}
	return b, nil
}

// Resolve returns the key for an input line. Blank lines are not keys.
func (b Bindings) Resolve(line string) (string, bool) {
	line = normalize(line)
	if line == "" {
		return "", false
	}
	if key, ok := b.Keys[line]; ok {
		return normalize(key), true
	}
	return line, true
}
