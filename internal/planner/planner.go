// Package planner turns a free-text instruction into an ordered list of
// task identifiers.
//
// The pipeline treats planning as an opaque, fallible call. Every failure
// returned by a Planner in this package wraps ErrPlanning.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// ErrPlanning is wrapped by every planner failure.
var ErrPlanning = errors.New("planning failed")

// Planner produces the plan for one run.
type Planner interface {
	Plan(ctx context.Context, instruction string) ([]registry.TaskID, error)
}

// Func adapts a function to the Planner interface.
type Func func(ctx context.Context, instruction string) ([]registry.TaskID, error)

// Plan calls f.
func (f Func) Plan(ctx context.Context, instruction string) ([]registry.TaskID, error) {
	return f(ctx, instruction)
}

// Static returns a planner that always yields the given tasks.
func Static(tasks ...registry.TaskID) Planner {
	return Func(func(context.Context, string) ([]registry.TaskID, error) {
		out := make([]registry.TaskID, len(tasks))
		copy(out, tasks)
		return out, nil
	})
}

// ParsePlan decodes a model response into task ids.
//
// The response must contain a JSON array of strings. Markdown code fences
// and prose around the array are tolerated; anything else is an error.
func ParsePlan(content string) ([]registry.TaskID, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty planner response", ErrPlanning)
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in planner response: %q", ErrPlanning, truncate(content, 200))
	}

	var raw []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid plan %q: %v", ErrPlanning, truncate(content, 200), err)
	}

	plan := make([]registry.TaskID, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%w: plan contains an empty task id", ErrPlanning)
		}
		plan = append(plan, registry.TaskID(s))
	}
	return plan, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
