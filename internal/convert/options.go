package convert

import "fmt"

// Tier is the quality level requested for a conversion.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ParseTier validates a quality token, defaulting empty input to medium.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case "":
		return TierMedium, nil
	case TierLow, TierMedium, TierHigh:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown quality tier %q", s)
	}
}

// Options carries the per-job knobs converters honor.
type Options struct {
	Quality         Tier
	Compress        bool
	OCREnabled      bool
	TableExtraction bool
}

type tierSettings struct {
	imageQuality int    // JPEG quality 1-100
	audioBitrate string // ffmpeg -b:a
	videoBitrate string // ffmpeg -b:v
}

var tiers = map[Tier]tierSettings{
	TierLow:    {imageQuality: 60, audioBitrate: "64k", videoBitrate: "500k"},
	TierMedium: {imageQuality: 80, audioBitrate: "128k", videoBitrate: "1000k"},
	TierHigh:   {imageQuality: 95, audioBitrate: "192k", videoBitrate: "2000k"},
}

func (o Options) settings() tierSettings {
	s, ok := tiers[o.Quality]
	if !ok {
		s = tiers[TierMedium]
	}
	return s
}

// ImageQuality resolves the JPEG quality for this job. Compression
// lowers the tier value by 20 points, floored at 1.
func (o Options) ImageQuality() int {
	q := o.settings().imageQuality
	if o.Compress {
		q -= 20
		if q < 1 {
			q = 1
		}
	}
	return q
}

// AudioBitrate resolves the audio bitrate for this job.
func (o Options) AudioBitrate() string {
	if o.Compress {
		return "64k"
	}
	return o.settings().audioBitrate
}

// VideoBitrate resolves the video bitrate for this job. Compression
// caps the bitrate regardless of tier.
func (o Options) VideoBitrate() string {
	if o.Compress {
		return "300k"
	}
	return o.settings().videoBitrate
}
