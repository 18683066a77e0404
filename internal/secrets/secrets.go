// Package secrets resolves the secret values a workflow may inject into
// jobs and steps. Values are held in memory only and are never written to
// logs; anything that captures output is expected to pass it through a
// Redactor first.
package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// EnvPrefix marks process environment entries that carry secrets. The
// variable CONVEYOR_SECRET_DOCKER_TOKEN provides the secret DOCKER_TOKEN.
const EnvPrefix = "CONVEYOR_SECRET_"

// Source resolves a secret by name.
type Source interface {
	Lookup(name string) (string, bool)
}

// Static is a fixed name-to-value mapping.
type Static map[string]string

// Lookup implements Source.
func (s Static) Lookup(name string) (string, bool) {
	value, ok := s[name]
	return value, ok
}

// FromEnviron extracts secrets from process environment entries using
// EnvPrefix. The environ slice has the os.Environ "KEY=VALUE" shape.
func FromEnviron(environ []string) Static {
	out := Static{}
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		name := strings.TrimPrefix(key, EnvPrefix)
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// FromFile loads secrets from a YAML file containing a flat string map.
func FromFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	var out Static
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", path, err)
	}
	return out, nil
}

// Overlay returns a source that prefers values from over, falling back to
// base. Used to let the secrets file override environment-provided values.
func Overlay(base, over Source) Source {
	return overlay{base: base, over: over}
}

type overlay struct {
	base Source
	over Source
}

func (o overlay) Lookup(name string) (string, bool) {
	if o.over != nil {
		if v, ok := o.over.Lookup(name); ok {
			return v, true
		}
	}
	if o.base != nil {
		return o.base.Lookup(name)
	}
	return "", false
}

// Redactor replaces secret values in text with a placeholder.
type Redactor struct {
	values []string
}

// NewRedactor builds a redactor for the given values. Longer values are
// replaced first so that one secret containing another still redacts fully.
// Empty values are ignored.
func NewRedactor(values []string) *Redactor {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })
	return &Redactor{values: kept}
}

// Redact returns text with every known secret value masked.
func (r *Redactor) Redact(text string) string {
	for _, v := range r.values {
		text = strings.ReplaceAll(text, v, "***")
	}
	return text
}
