package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// source resolves configuration keys, preferring the process environment over
// values read from an optional YAML file.
type source struct {
	file   map[string]string
	lookup func(string) (string, bool)
}

func newSource(path string) (*source, error) {
	src := &source{file: map[string]string{}, lookup: os.LookupEnv}
	if path == "" {
		return src, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	file, err := parseFile(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	src.file = file
	return src, nil
}

// parseFile accepts a flat YAML mapping of environment-style keys. Scalars of
// any YAML type are kept in their textual form.
func parseFile(raw []byte) (map[string]string, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(doc))
	for key, node := range doc {
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("key %s: expected a scalar value", key)
		}
		out[key] = node.Value
	}
	return out, nil
}

func (s *source) get(key string) string {
	if val, ok := s.lookup(key); ok && val != "" {
		return val
	}
	return s.file[key]
}

func (s *source) getDefault(key, def string) string {
	if val := s.get(key); val != "" {
		return val
	}
	return def
}
