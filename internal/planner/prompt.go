package planner

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

const (
	requestPlaceholder = "{user_request}"
	tasksPlaceholder   = "{tasks}"

	maxPromptFileSize = 64 * 1024
)

//go:embed prompts/plan.txt
var defaultPromptTemplate string

// DefaultPromptTemplate returns the built-in planning prompt.
func DefaultPromptTemplate() string {
	return defaultPromptTemplate
}

// LoadPromptTemplate reads a prompt template from path.
// The template must contain the {user_request} placeholder.
func LoadPromptTemplate(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat prompt template: %w", err)
	}
	if info.Size() > maxPromptFileSize {
		return "", fmt.Errorf("prompt template too large: %d bytes (max %d)", info.Size(), maxPromptFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template: %w", err)
	}

	tmpl := string(data)
	if !strings.Contains(tmpl, requestPlaceholder) {
		return "", fmt.Errorf("prompt template %s is missing the %s placeholder", path, requestPlaceholder)
	}
	return tmpl, nil
}

// renderPrompt fills the template placeholders.
func renderPrompt(tmpl, instruction string, tasks []registry.TaskID) string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = string(t)
	}
	r := strings.NewReplacer(
		tasksPlaceholder, strings.Join(names, ", "),
		requestPlaceholder, instruction,
	)
	return r.Replace(tmpl)
}
