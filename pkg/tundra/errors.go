package tundra

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned or reported when a template, parent or required file cannot be loaded.
	ErrNotFound = errors.New("template not found")
	// ErrMissingBlock is reported when a parent tag names a block the parent template does not define.
	ErrMissingBlock = errors.New("no parent block found")
	// ErrMissingSpread is reported when a spread reference names an undefined spread region.
	ErrMissingSpread = errors.New("no spread block found")
	// ErrInheritanceCycle is reported when a template extends itself, directly or not.
	ErrInheritanceCycle = errors.New("inheritance cycle")
	// ErrNotCached is returned by Cache.Get when no program is bound to the key.
	ErrNotCached = errors.New("program not cached")
)

// ConfigurationError is returned when a tag reconfiguration is rejected.
// The previous configuration is left untouched.
type ConfigurationError struct {
	Kind    string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("tag configuration %q: %s", e.Kind, e.Message)
}

// RenderError wraps any failure that happens while instantiating or running
// a compiled program.
type RenderError struct {
	Key string
	Err error
}

func (e *RenderError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("render failed: %v", e.Err)
	}
	return fmt.Sprintf("render %s failed: %v", e.Key, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ResolveError describes a problem met during inheritance resolution. Resolution
// always completes; these are collected on Program.Problems.
type ResolveError struct {
	Kind     error  // one of the sentinel errors above
	Name     string // block, spread or file name involved
	Template string // template being resolved, empty for inline sources
}

func (e *ResolveError) Error() string {
	if e.Template == "" {
		return fmt.Sprintf("%v: %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("%v: %q (in %s)", e.Kind, e.Name, e.Template)
}

func (e *ResolveError) Unwrap() error { return e.Kind }
