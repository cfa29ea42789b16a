package models

import (
	"slices"
	"strings"
	"sync"
)

// DefaultStandardClasses is used when the configuration lists none.
var DefaultStandardClasses = []string{
	"I BA", "II BA", "III BA",
	"I BCom", "II BCom", "III BCom",
	"I BSc", "II BSc", "III BSc",
}

// ClassRegistry is the set of known class names: the standard ones plus
// classes added by administrators.
type ClassRegistry struct {
	mu       sync.RWMutex
	standard []string
	custom   []string
}

func NewClassRegistry(standard, custom []string) *ClassRegistry {
	if len(standard) == 0 {
		standard = DefaultStandardClasses
	}
	return &ClassRegistry{
		standard: normalizeSet(standard),
		custom:   normalizeSet(custom),
	}
}

func (r *ClassRegistry) Known(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.standard, name) || slices.Contains(r.custom, name)
}

// AddCustom registers a class and reports whether it was new.
func (r *ClassRegistry) AddCustom(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.standard, name) || slices.Contains(r.custom, name) {
		return false
	}
	r.custom = append(r.custom, name)
	return true
}

func (r *ClassRegistry) Custom() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.custom)
}

func (r *ClassRegistry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(slices.Clone(r.standard), r.custom...)
}
