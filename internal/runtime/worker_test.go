package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// dirStager stages into a plain directory.
type dirStager struct {
	dir string
	err error
}

func (s *dirStager) Stage(task registry.TaskID, text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	path := filepath.Join(s.dir, "input_"+string(task)+".txt")
	return path, os.WriteFile(path, []byte(text), 0600)
}

func upper(_ registry.TaskID, input string) (string, error) {
	return strings.ToUpper(input), nil
}

func TestStageWorker_Run(t *testing.T) {
	w := &StageWorker{
		Unit:   registry.ExecutionUnit{Task: "upper", Image: "x"},
		Stager: &dirStager{dir: t.TempDir()},
		Driver: Transform(upper),
	}

	out, err := w.Run(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
}

func TestStageWorker_StageError(t *testing.T) {
	stageErr := errors.New("disk full")
	w := &StageWorker{
		Unit:   registry.ExecutionUnit{Task: "upper"},
		Stager: &dirStager{err: stageErr},
		Driver: DriverFunc(func(context.Context, registry.ExecutionUnit, string) StageResult {
			t.Fatal("driver must not run when staging fails")
			return StageResult{}
		}),
	}

	_, err := w.Run(context.Background(), "x")
	require.ErrorIs(t, err, stageErr)

	var failure *Failure
	assert.False(t, errors.As(err, &failure))
}

func TestStageWorker_DriverFailure(t *testing.T) {
	w := &StageWorker{
		Unit:   registry.ExecutionUnit{Task: "broken"},
		Stager: &dirStager{dir: t.TempDir()},
		Driver: Transform(func(registry.TaskID, string) (string, error) {
			return "", errors.New("model crashed")
		}),
	}

	_, err := w.Run(context.Background(), "x")
	require.Error(t, err)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, ExecutionError, failure.Kind)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestTransform_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Transform(upper).Execute(ctx, registry.ExecutionUnit{Task: "upper"}, "/does/not/matter")
	require.False(t, res.OK())
	assert.Equal(t, PlatformError, res.Failure.Kind)
	assert.ErrorIs(t, res.Failure, context.Canceled)
}

func TestDecodeOutput(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		want    string
		wantErr bool
	}{
		{"trims whitespace", []byte("\n\t result \r\n"), "result", false},
		{"empty", []byte{}, "", false},
		{"unicode", []byte("résumé ✓\n"), "résumé ✓", false},
		{"invalid", []byte{0xc3, 0x28}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := decodeOutput(tt.raw)
			if tt.wantErr {
				require.False(t, res.OK())
				assert.Equal(t, DecodeError, res.Failure.Kind)
				return
			}
			require.True(t, res.OK())
			assert.Equal(t, tt.want, res.Text)
		})
	}
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Kind: ExecutionError, Err: errors.New("exit 1")}
	assert.Equal(t, "execution_error: exit 1", f.Error())
	assert.Equal(t, "decode_error", (&Failure{Kind: DecodeError}).Error())
}
