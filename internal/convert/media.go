package convert

import (
	"context"
	"fmt"

	"github.com/fileforge/fileforge/internal/fileutil"
	"github.com/fileforge/fileforge/internal/observability"
)

// audioCodecs maps each audio container to the ffmpeg encoder it needs.
var audioCodecs = map[string]string{
	"mp3":  "libmp3lame",
	"aac":  "aac",
	"m4a":  "aac",
	"ogg":  "libvorbis",
	"wav":  "pcm_s16le",
	"flac": "flac",
}

// losslessAudio marks containers where a bitrate cap makes no sense.
var losslessAudio = map[string]bool{"wav": true, "flac": true}

// AudioConverter transcodes audio through ffmpeg with tier-resolved
// bitrates.
type AudioConverter struct {
	logger *observability.Logger
	cfg    ToolConfig
}

func NewAudioConverter(logger *observability.Logger, cfg ToolConfig) *AudioConverter {
	return &AudioConverter{logger: logger.WithComponent("convert.audio"), cfg: cfg}
}

func (c *AudioConverter) Convert(ctx context.Context, inputPath, targetFormat string, opts Options) (*Artifact, []string, error) {
	codec, ok := audioCodecs[targetFormat]
	if !ok {
		return nil, nil, UnsupportedFormat(fmt.Sprintf("cannot encode audio as %s", targetFormat))
	}

	outputPath := fileutil.ReplaceExt(inputPath, targetFormat)
	args := []string{"-y", "-i", inputPath, "-vn", "-c:a", codec}
	if !losslessAudio[targetFormat] {
		args = append(args, "-b:a", opts.AudioBitrate())
	}
	args = append(args, outputPath)

	if err := runTool(ctx, c.cfg.FFmpegBin, args...); err != nil {
		return nil, nil, err
	}

	artifact, err := newArtifact(outputPath, targetFormat)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info().
		Str("target", targetFormat).
		Str("bitrate", opts.AudioBitrate()).
		Msg("audio converted")
	return artifact, nil, nil
}

// videoCodecs maps each video container to its video and audio encoders.
var videoCodecs = map[string]struct{ video, audio string }{
	"mp4":  {"libx264", "aac"},
	"mkv":  {"libx264", "aac"},
	"mov":  {"libx264", "aac"},
	"webm": {"libvpx-vp9", "libopus"},
	"avi":  {"mpeg4", "libmp3lame"},
	"wmv":  {"libx264", "aac"},
	"flv":  {"libx264", "aac"},
}

// VideoConverter transcodes video through ffmpeg. Compression caps the
// bitrate and scales down to 720p.
type VideoConverter struct {
	logger *observability.Logger
	cfg    ToolConfig
}

func NewVideoConverter(logger *observability.Logger, cfg ToolConfig) *VideoConverter {
	return &VideoConverter{logger: logger.WithComponent("convert.video"), cfg: cfg}
}

func (c *VideoConverter) Convert(ctx context.Context, inputPath, targetFormat string, opts Options) (*Artifact, []string, error) {
	codecs, ok := videoCodecs[targetFormat]
	if !ok {
		return nil, nil, UnsupportedFormat(fmt.Sprintf("cannot encode video as %s", targetFormat))
	}

	outputPath := fileutil.ReplaceExt(inputPath, targetFormat)
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", codecs.video,
		"-c:a", codecs.audio,
		"-b:v", opts.VideoBitrate(),
	}
	if opts.Compress {
		args = append(args, "-vf", "scale=-2:720")
	}
	args = append(args, outputPath)

	if err := runTool(ctx, c.cfg.FFmpegBin, args...); err != nil {
		return nil, nil, err
	}

	artifact, err := newArtifact(outputPath, targetFormat)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info().
		Str("target", targetFormat).
		Str("bitrate", opts.VideoBitrate()).
		Bool("compress", opts.Compress).
		Msg("video converted")
	return artifact, nil, nil
}
