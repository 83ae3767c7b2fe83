// Package registry maps task identifiers to the execution units that back them.
//
// The registry is built once at startup from configuration and is never
// mutated afterwards, so a single *Registry can be shared by every concurrent
// pipeline run without locking.
//
//	reg, err := registry.New(map[registry.TaskID]registry.ExecutionUnit{
//	    "clean_text": {Image: "ai_clean_text"},
//	})
//	unit, err := reg.Resolve("clean_text")
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
)

// Errors for registry operations.
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrInvalidName   = errors.New("invalid task id: must be alphanumeric with hyphens/underscores/dots")
	ErrPathTraversal = errors.New("path traversal detected")
	ErrEmptyUnit     = errors.New("execution unit has neither image nor command")
)

// namePattern validates task identifiers. Task ids end up in staged file
// names, so they follow the same rules as any other path component.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// TaskID identifies a unit of work, e.g. "clean_text".
type TaskID string

// String implements fmt.Stringer.
func (t TaskID) String() string {
	return string(t)
}

// ExecutionUnit is the runnable reference backing a TaskID.
type ExecutionUnit struct {
	// Task is the id this unit was registered under.
	Task TaskID `json:"task"`

	// Image is the container image run by the docker driver.
	Image string `json:"image,omitempty"`

	// Command is the argv run by the process driver.
	Command []string `json:"command,omitempty"`
}

// Registry is an immutable TaskID -> ExecutionUnit lookup table.
type Registry struct {
	units map[TaskID]ExecutionUnit
}

// Default returns the units for the built-in task images.
func Default() map[TaskID]ExecutionUnit {
	return map[TaskID]ExecutionUnit{
		"clean_text":         {Image: "ai_clean_text"},
		"sentiment_analysis": {Image: "ai_sentiment_analysis"},
		"summarization":      {Image: "ai_summarization"},
	}
}

// New validates units and returns a registry holding a private copy of them.
func New(units map[TaskID]ExecutionUnit) (*Registry, error) {
	r := &Registry{units: make(map[TaskID]ExecutionUnit, len(units))}

	for id, unit := range units {
		if err := ValidateName(string(id)); err != nil {
			return nil, fmt.Errorf("task %q: %w", id, err)
		}
		if unit.Image == "" && len(unit.Command) == 0 {
			return nil, fmt.Errorf("task %q: %w", id, ErrEmptyUnit)
		}

		unit.Task = id
		if unit.Command != nil {
			unit.Command = append([]string(nil), unit.Command...)
		}
		r.units[id] = unit
	}

	return r, nil
}

// ValidateName checks if a task id is safe to use as part of a file name.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name too long (max 255)", ErrInvalidName)
	}
	if name == "." || name == ".." {
		return ErrPathTraversal
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == '\x00' {
			return ErrPathTraversal
		}
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	if filepath.Clean(name) != name {
		return ErrPathTraversal
	}
	return nil
}

// Resolve returns the execution unit registered for id.
func (r *Registry) Resolve(id TaskID) (ExecutionUnit, error) {
	unit, ok := r.units[id]
	if !ok {
		return ExecutionUnit{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	// Hand out a copy so callers cannot mutate the registered argv.
	if unit.Command != nil {
		unit.Command = append([]string(nil), unit.Command...)
	}
	return unit, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id TaskID) bool {
	_, ok := r.units[id]
	return ok
}

// Tasks returns every registered id in sorted order.
func (r *Registry) Tasks() []TaskID {
	ids := make([]TaskID, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.units)
}
