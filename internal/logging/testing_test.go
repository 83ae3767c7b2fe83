package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "stage completed", zap.String("task", "summarize"), zap.Duration("duration", 45*time.Millisecond))
	tl.Warn(ctx, "slow")

	tl.AssertLogged(t, zapcore.InfoLevel, "stage completed")
	tl.AssertLogged(t, zapcore.WarnLevel, "slo")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "stage completed")
	tl.AssertField(t, "stage completed", "task", "summarize")
	tl.AssertField(t, "stage completed", "duration", 45*time.Millisecond)
	assert.Equal(t, 1, tl.FilterMessage("slow").Len())

	tl.Reset()
	assert.Empty(t, tl.All())
}

// recordingTB records failures without failing the enclosing test.
type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Helper()                                   {}
func (r *recordingTB) Errorf(format string, args ...interface{}) { r.failed = true }

func TestTestLogger_Failures(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "hello", zap.String("k", "v"))

	rec := &recordingTB{}
	tl.AssertLogged(rec, zapcore.ErrorLevel, "hello")
	assert.True(t, rec.failed)

	rec = &recordingTB{}
	tl.AssertField(rec, "hello", "k", "other")
	assert.True(t, rec.failed)

	rec = &recordingTB{}
	tl.AssertNotLogged(rec, zapcore.InfoLevel, "hell")
	assert.True(t, rec.failed)
}
