package convert

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fileforge/fileforge/internal/fileutil"
	"github.com/fileforge/fileforge/internal/observability"
)

// ImageConverter decodes with the registered stdlib and x/image codecs
// and re-encodes into the target. Targets without a native Go encoder
// (webp, avif, heic) are delegated to ffmpeg.
type ImageConverter struct {
	logger *observability.Logger
	cfg    ToolConfig
}

func NewImageConverter(logger *observability.Logger, cfg ToolConfig) *ImageConverter {
	return &ImageConverter{logger: logger.WithComponent("convert.image"), cfg: cfg}
}

func (c *ImageConverter) Convert(ctx context.Context, inputPath, targetFormat string, opts Options) (*Artifact, []string, error) {
	outputPath := fileutil.ReplaceExt(inputPath, targetFormat)

	switch targetFormat {
	case "jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff":
		if err := c.transcode(inputPath, outputPath, targetFormat, opts); err != nil {
			return nil, nil, err
		}
	case "webp", "avif", "heic":
		if err := c.ffmpegEncode(ctx, inputPath, outputPath, opts); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, UnsupportedFormat(fmt.Sprintf("cannot encode images as %s", targetFormat))
	}

	artifact, err := newArtifact(outputPath, targetFormat)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info().
		Str("target", targetFormat).
		Int64("size_bytes", artifact.SizeBytes).
		Msg("image converted")
	return artifact, nil, nil
}

func (c *ImageConverter) transcode(inputPath, outputPath, target string, opts Options) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return ProcessingError("could not open image input", err)
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return ProcessingError("could not decode image", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return ProcessingError("could not create image output", err)
	}
	defer out.Close()

	switch target {
	case "jpg", "jpeg":
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: opts.ImageQuality()})
	case "png":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if opts.Compress {
			enc.CompressionLevel = png.BestCompression
		}
		err = enc.Encode(out, img)
	case "gif":
		err = gif.Encode(out, img, nil)
	case "bmp":
		err = bmp.Encode(out, img)
	case "tif", "tiff":
		err = tiff.Encode(out, img, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return ProcessingError(fmt.Sprintf("could not encode %s output", target), err)
	}
	return nil
}

// ffmpegEncode covers targets the Go codec set cannot write. The
// 1-100 quality knob maps onto ffmpeg's inverted 2-31 qscale range.
func (c *ImageConverter) ffmpegEncode(ctx context.Context, inputPath, outputPath string, opts Options) error {
	qscale := 31 - opts.ImageQuality()*29/100
	if qscale < 2 {
		qscale = 2
	}
	return runTool(ctx, c.cfg.FFmpegBin,
		"-y",
		"-i", inputPath,
		"-qscale:v", fmt.Sprintf("%d", qscale),
		outputPath,
	)
}
