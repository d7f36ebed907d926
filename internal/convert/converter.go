package convert

import (
	"context"
	"fmt"
	"os"

	"github.com/fileforge/fileforge/internal/dispatch"
	"github.com/fileforge/fileforge/internal/observability"
)

// Artifact describes a finished conversion output sitting in scratch
// space. The runner is responsible for publishing it to the artifact
// directory.
type Artifact struct {
	Path      string
	Format    string
	SizeBytes int64
}

// Converter turns one uploaded file into the target format. Converters
// write their output next to the input in scratch space and never touch
// the artifact directory. Returned warnings are advisory and accompany
// both success and failure.
type Converter interface {
	Convert(ctx context.Context, inputPath, targetFormat string, opts Options) (*Artifact, []string, error)
}

// ToolConfig names the external binaries and tunables converters need.
type ToolConfig struct {
	FFmpegBin            string
	SofficeBin           string
	TesseractBin         string
	SevenZipBin          string
	ScannedTextThreshold int
}

// Registry maps a format family to the converter that serves it.
type Registry map[dispatch.Family]Converter

// NewRegistry builds the production converter set.
func NewRegistry(logger *observability.Logger, cfg ToolConfig) Registry {
	return Registry{
		dispatch.FamilyDocument: NewDocumentConverter(logger, cfg),
		dispatch.FamilyImage:    NewImageConverter(logger, cfg),
		dispatch.FamilyAudio:    NewAudioConverter(logger, cfg),
		dispatch.FamilyVideo:    NewVideoConverter(logger, cfg),
		dispatch.FamilyArchive:  NewArchiveConverter(logger, cfg),
	}
}

// For resolves the converter for a family.
func (r Registry) For(family dispatch.Family) (Converter, error) {
	c, ok := r[family]
	if !ok {
		return nil, UnsupportedFormat(fmt.Sprintf("no converter registered for %s family", family))
	}
	return c, nil
}

// newArtifact stats a finished output and wraps it.
func newArtifact(path, format string) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ProcessingError("converted output missing", err)
	}
	return &Artifact{Path: path, Format: format, SizeBytes: info.Size()}, nil
}
