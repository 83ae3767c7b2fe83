package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/orchestratord/internal/config"
)

func redactingLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	enc, err := newRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)
	var buf bytes.Buffer
	return &Logger{zap: zap.New(zapcore.NewCore(enc, zapcore.AddSync(&buf), TraceLevel))}, &buf
}

func TestRedaction_SensitiveKeys(t *testing.T) {
	l, buf := redactingLogger(t)

	l.Info(context.Background(), "planner configured",
		zap.String("api_key", "plain-value"),
		zap.String("planner.token", "plain-value"),
		zap.Any("Authorization", map[string]string{"scheme": "basic"}),
		zap.String("model", "llama3-70b-8192"),
	)

	out := buf.String()
	assert.NotContains(t, out, "plain-value")
	assert.NotContains(t, out, "basic")
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, `"planner.token":"[REDACTED]"`)
	assert.Contains(t, out, "llama3-70b-8192")
}

func TestRedaction_Patterns(t *testing.T) {
	l, buf := redactingLogger(t)

	l.Warn(context.Background(), "request with Bearer abc.def.ghi",
		zap.String("body", "key gsk_ABCDEFGHIJKLMNOPQRST used"),
		zap.Error(errors.New("api_key=hunter2 rejected")),
	)

	out := buf.String()
	assert.NotContains(t, out, "abc.def.ghi")
	assert.NotContains(t, out, "gsk_ABCDEFGHIJKLMNOPQRST")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "key [REDACTED] used")
}

func TestRedaction_WithFields(t *testing.T) {
	l, buf := redactingLogger(t)

	l.With(zap.String("secret", "s3cr3t"), zap.String("note", "Bearer xyz")).
		Info(context.Background(), "child")

	out := buf.String()
	assert.NotContains(t, out, "s3cr3t")
	assert.NotContains(t, out, "xyz")
	assert.Contains(t, out, `"secret":"[REDACTED]"`)
}

func TestRedaction_Disabled(t *testing.T) {
	base := newEncoder("json")
	enc, err := newRedactingEncoder(base, RedactionConfig{Enabled: false, Patterns: []string{"[bad"}})
	require.NoError(t, err)
	assert.Same(t, base, enc)
}

func TestRedaction_InvalidPattern(t *testing.T) {
	_, err := newRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"[bad"}})
	assert.Error(t, err)
}

func TestSecret(t *testing.T) {
	f := Secret("api_key", config.Secret("gsk_0123456789"))
	assert.Equal(t, "[REDACTED:14]", f.String)

	f = RedactedString("password", "")
	assert.Equal(t, "[REDACTED:0]", f.String)
}
