package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileforge/fileforge/internal/observability"
)

func newTestDocConverter(t *testing.T, strategies []docStrategy) *DocumentConverter {
	t.Helper()
	c := NewDocumentConverter(observability.NopLogger(), ToolConfig{ScannedTextThreshold: 200})
	c.strategies = strategies
	return c
}

func stageInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	return path
}

func emitOutput(t *testing.T, in docInput) string {
	t.Helper()
	out := filepath.Join(filepath.Dir(in.path), "output."+in.target)
	require.NoError(t, os.WriteFile(out, []byte("converted"), 0o644))
	return out
}

func TestDocumentConvert_FirstSuccessfulStrategyWins(t *testing.T) {
	var ran []string
	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "first",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				ran = append(ran, "first")
				return emitOutput(t, in), nil
			},
		},
		{
			name:    "second",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				ran = append(ran, "second")
				return emitOutput(t, in), nil
			},
		},
	})

	artifact, warnings, err := c.Convert(context.Background(), stageInput(t), "docx", Options{})
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, []string{"first"}, ran, "later strategies must not run after a success")
	assert.Empty(t, warnings)
	assert.Equal(t, "docx", artifact.Format)
	assert.Positive(t, artifact.SizeBytes)
}

func TestDocumentConvert_FailedStrategyLeavesWarningAndFallsThrough(t *testing.T) {
	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "flaky",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return "", ProcessingError("embedded text layer is mostly unreadable glyphs", nil)
			},
		},
		{
			name:    "fallback",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return emitOutput(t, in), nil
			},
		},
	})

	artifact, warnings, err := c.Convert(context.Background(), stageInput(t), "txt", Options{})
	require.NoError(t, err)
	require.NotNil(t, artifact)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "flaky")
	assert.Contains(t, warnings[0], "unreadable glyphs")
}

func TestDocumentConvert_OCRWinEmitsFidelityWarning(t *testing.T) {
	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "structured-extraction",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return "", ProcessingError("embedded text layer is mostly unreadable glyphs", nil)
			},
		},
		{
			name:    "ocr",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return emitOutput(t, in), nil
			},
		},
	})

	_, warnings, err := c.Convert(context.Background(), stageInput(t), "txt", Options{})
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "structured-extraction")
	assert.Equal(t, ocrFidelityWarning, warnings[1], "OCR producing the output must flag reduced fidelity")
}

func TestDocumentConvert_NonOCRWinEmitsNoFidelityWarning(t *testing.T) {
	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "ocr",
			applies: func(docInput) bool { return false },
			run: func(ctx context.Context, in docInput) (string, error) {
				t.Fatal("inapplicable OCR strategy must not run")
				return "", nil
			},
		},
		{
			name:    "office-transcode",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return emitOutput(t, in), nil
			},
		},
	})

	_, warnings, err := c.Convert(context.Background(), stageInput(t), "pdf", Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings, "fidelity warning belongs to OCR output only")
}

func TestDocumentConvert_SkipsInapplicableStrategies(t *testing.T) {
	ran := false
	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "never",
			applies: func(docInput) bool { return false },
			run: func(ctx context.Context, in docInput) (string, error) {
				ran = true
				return emitOutput(t, in), nil
			},
		},
		{
			name:    "always",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return emitOutput(t, in), nil
			},
		},
	})

	_, warnings, err := c.Convert(context.Background(), stageInput(t), "txt", Options{})
	require.NoError(t, err)
	assert.False(t, ran, "inapplicable strategy must be skipped, not failed")
	assert.Empty(t, warnings, "skipped strategies leave no warning")
}

func TestDocumentConvert_AllStrategiesExhausted(t *testing.T) {
	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "first",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return "", ToolUnavailable("soffice is not installed", nil)
			},
		},
		{
			name:    "second",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return "", ProcessingError("corrupt input", nil)
			},
		},
	})

	artifact, warnings, err := c.Convert(context.Background(), stageInput(t), "txt", Options{})
	require.Error(t, err)
	assert.Nil(t, artifact)
	assert.Equal(t, KindProcessingError, KindOf(err), "last failure decides the error kind")
	assert.Len(t, warnings, 2)
}

func TestDocumentConvert_TimeoutStopsTheChain(t *testing.T) {
	secondRan := false
	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "slow",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return "", Timeout("tool exceeded the job deadline", context.DeadlineExceeded)
			},
		},
		{
			name:    "next",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				secondRan = true
				return emitOutput(t, in), nil
			},
		},
	})

	_, _, err := c.Convert(context.Background(), stageInput(t), "txt", Options{})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.False(t, secondRan, "a timeout must not fall through to the next strategy")
}

func TestDocumentConvert_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "any",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				t.Fatal("strategy must not run after cancellation")
				return "", nil
			},
		},
	})

	_, _, err := c.Convert(ctx, stageInput(t), "txt", Options{})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestDocumentConvert_MissingOutputIsAStrategyFailure(t *testing.T) {
	c := newTestDocConverter(t, []docStrategy{
		{
			name:    "liar",
			applies: func(docInput) bool { return true },
			run: func(ctx context.Context, in docInput) (string, error) {
				return filepath.Join(t.TempDir(), "never-written.txt"), nil
			},
		},
	})

	_, warnings, err := c.Convert(context.Background(), stageInput(t), "txt", Options{})
	require.Error(t, err)
	assert.Len(t, warnings, 1)

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindProcessingError, ce.Kind)
}

func TestTextLayerUsable(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"whitespace only", "  \n\t ", false},
		{"plain prose", strings.Repeat("The quarterly report covers revenue and costs. ", 10), true},
		{"prose with newlines and tabs", "col1\tcol2\nval1\tval2\n", true},
		{"replacement rune debris", strings.Repeat("���a", 100), false},
		{"control byte debris", strings.Repeat("\x01\x02\x03x", 100), false},
		{"mostly readable with stray glyphs", strings.Repeat("readable text �", 50), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, textLayerUsable(tc.text))
		})
	}
}

func TestStructuredExtraction_FallsThroughOnGlyphDebris(t *testing.T) {
	c := NewDocumentConverter(observability.NopLogger(), ToolConfig{ScannedTextThreshold: 200})

	in := docInput{
		path:   stageInput(t),
		target: "txt",
		class:  classMachineReadable,
		text:   strings.Repeat("��\x01", 200),
	}
	_, err := c.runStructuredExtraction(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, KindProcessingError, KindOf(err))

	in.text = strings.Repeat("Invoice 42: paid in full. ", 20)
	out, err := c.runStructuredExtraction(context.Background(), in)
	require.NoError(t, err)
	data, rerr := os.ReadFile(out)
	require.NoError(t, rerr)
	assert.Equal(t, in.text, string(data))
}

func TestStrategyOrder(t *testing.T) {
	c := NewDocumentConverter(observability.NopLogger(), ToolConfig{ScannedTextThreshold: 200})

	var names []string
	for _, s := range c.strategies {
		names = append(names, s.name)
	}
	assert.Equal(t, []string{"table-extraction", "structured-extraction", "ocr", "office-transcode"}, names)
}

func TestStrategyApplicability(t *testing.T) {
	c := NewDocumentConverter(observability.NopLogger(), ToolConfig{ScannedTextThreshold: 200})
	byName := map[string]docStrategy{}
	for _, s := range c.strategies {
		byName[s.name] = s
	}

	machineReadable := docInput{class: classMachineReadable, target: "docx"}
	scanned := docInput{class: classScanned, target: "txt"}
	spreadsheet := docInput{class: classMachineReadable, target: "csv", opts: Options{TableExtraction: true}}
	plainOffice := docInput{class: classOther, target: "pdf"}

	assert.True(t, byName["structured-extraction"].applies(machineReadable))
	assert.False(t, byName["structured-extraction"].applies(scanned))
	assert.False(t, byName["structured-extraction"].applies(spreadsheet), "tabular targets go through table extraction")

	assert.True(t, byName["ocr"].applies(scanned))
	assert.False(t, byName["ocr"].applies(machineReadable))
	assert.True(t, byName["ocr"].applies(docInput{class: classMachineReadable, target: "txt", opts: Options{OCREnabled: true}}),
		"explicit OCR opt-in forces the OCR strategy into the chain")

	assert.True(t, byName["table-extraction"].applies(spreadsheet))
	assert.False(t, byName["table-extraction"].applies(docInput{class: classMachineReadable, target: "csv"}),
		"table extraction requires the option")

	assert.True(t, byName["office-transcode"].applies(plainOffice))
	assert.True(t, byName["office-transcode"].applies(machineReadable))
}
