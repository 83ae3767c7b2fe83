package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// fakeModel is an in-memory llms.Model.
type fakeModel struct {
	response string
	err      error

	prompts []string
	options []llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.options = append(m.options, opts)

	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}

	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.response}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []registry.TaskID
		wantErr bool
	}{
		{"plain array", `["clean_text", "summarization"]`, []registry.TaskID{"clean_text", "summarization"}, false},
		{"empty array", `[]`, []registry.TaskID{}, false},
		{"code fence", "```json\n[\"clean_text\"]\n```", []registry.TaskID{"clean_text"}, false},
		{"surrounding prose", "Here is the plan: [\"sentiment_analysis\"] Done.", []registry.TaskID{"sentiment_analysis"}, false},
		{"trims ids", `[" clean_text "]`, []registry.TaskID{"clean_text"}, false},
		{"repeated ids kept", `["clean_text","clean_text"]`, []registry.TaskID{"clean_text", "clean_text"}, false},
		{"empty response", "", nil, true},
		{"no array", "clean_text then summarization", nil, true},
		{"not strings", `[1, 2]`, nil, true},
		{"object", `{"tasks": "clean_text"}`, nil, true},
		{"empty id", `["clean_text", ""]`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlan(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrPlanning)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatic(t *testing.T) {
	p := Static("clean_text", "summarization")

	plan, err := p.Plan(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []registry.TaskID{"clean_text", "summarization"}, plan)

	// Callers may not mutate the static plan.
	plan[0] = "mutated"
	again, _ := p.Plan(context.Background(), "anything")
	assert.Equal(t, registry.TaskID("clean_text"), again[0])
}

func TestLLMPlanner_Plan(t *testing.T) {
	model := &fakeModel{response: `["clean_text", "summarization"]`}
	p := newLLMPlanner(model, LLMConfig{
		Tasks: []registry.TaskID{"clean_text", "summarization"},
	}, nil)

	plan, err := p.Plan(context.Background(), "clean and summarize")
	require.NoError(t, err)
	assert.Equal(t, []registry.TaskID{"clean_text", "summarization"}, plan)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "User request: clean and summarize")
	assert.Contains(t, model.prompts[0], "Available tasks: clean_text, summarization")
	assert.NotContains(t, model.prompts[0], requestPlaceholder)

	require.Len(t, model.options, 1)
	assert.Equal(t, 0.0, model.options[0].Temperature)
	assert.Equal(t, DefaultMaxTokens, model.options[0].MaxTokens)
}

func TestLLMPlanner_Failures(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		p, err := NewLLMPlanner(LLMConfig{}, nil)
		require.NoError(t, err)

		_, err = p.Plan(context.Background(), "summarize")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPlanning)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("request failure", func(t *testing.T) {
		p := newLLMPlanner(&fakeModel{err: errors.New("401 unauthorized")}, LLMConfig{}, nil)

		_, err := p.Plan(context.Background(), "summarize")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPlanning)
		assert.Contains(t, err.Error(), "401 unauthorized")
	})

	t.Run("unparsable content", func(t *testing.T) {
		p := newLLMPlanner(&fakeModel{response: "I think you should summarize."}, LLMConfig{}, nil)

		_, err := p.Plan(context.Background(), "summarize")
		assert.ErrorIs(t, err, ErrPlanning)
	})

	t.Run("cancelled context", func(t *testing.T) {
		p := newLLMPlanner(&fakeModel{response: `[]`}, LLMConfig{RateLimit: 0.001, Burst: 1}, nil)

		// Drain the single token so the next Wait has to block.
		_, err := p.Plan(context.Background(), "first")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = p.Plan(ctx, "second")
		assert.ErrorIs(t, err, ErrPlanning)
	})
}

func TestLoadPromptTemplate(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid template", func(t *testing.T) {
		path := filepath.Join(dir, "prompt.txt")
		require.NoError(t, os.WriteFile(path, []byte("Plan this: {user_request}"), 0600))

		tmpl, err := LoadPromptTemplate(path)
		require.NoError(t, err)
		assert.Equal(t, "Plan this: {user_request}", tmpl)
		assert.Equal(t, "Plan this: translate", renderPrompt(tmpl, "translate", nil))
	})

	t.Run("missing placeholder", func(t *testing.T) {
		path := filepath.Join(dir, "bad.txt")
		require.NoError(t, os.WriteFile(path, []byte("no placeholder"), 0600))

		_, err := LoadPromptTemplate(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPromptTemplate(filepath.Join(dir, "absent.txt"))
		assert.Error(t, err)
	})
}

func TestDefaultPromptTemplate(t *testing.T) {
	tmpl := DefaultPromptTemplate()
	assert.Contains(t, tmpl, requestPlaceholder)
	assert.Contains(t, tmpl, tasksPlaceholder)
}
