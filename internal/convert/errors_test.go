package convert

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "unsupported format", err: UnsupportedFormat("no encoder"), want: KindUnsupportedFormat},
		{name: "tool unavailable", err: ToolUnavailable("ffmpeg missing", nil), want: KindToolUnavailable},
		{name: "timeout", err: Timeout("deadline", nil), want: KindTimeout},
		{name: "wrapped typed error", err: fmt.Errorf("job 42: %w", Timeout("deadline", nil)), want: KindTimeout},
		{name: "untyped error", err: errors.New("boom"), want: KindProcessingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ProcessingError("could not write output", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "processing_error")
	assert.Contains(t, err.Error(), "disk full")
}
