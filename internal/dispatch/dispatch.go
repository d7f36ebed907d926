// Package dispatch maps a requested target format to the converter family
// that handles it. The mapping is a pure function over disjoint format
// sets so the routing policy stays auditable and testable independent of
// the conversion logic itself.
package dispatch

import (
	"fmt"
	"strings"
)

// Family identifies a group of formats sharing a conversion strategy.
type Family string

const (
	FamilyDocument Family = "document"
	FamilyImage    Family = "image"
	FamilyAudio    Family = "audio"
	FamilyVideo    Family = "video"
	FamilyArchive  Family = "archive"
)

// Disjoint format-family sets. A token may belong to at most one family.
var (
	documentFormats = map[string]struct{}{
		"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {},
		"ppt": {}, "pptx": {}, "txt": {}, "rtf": {}, "odt": {},
		"html": {}, "md": {}, "csv": {},
	}
	imageFormats = map[string]struct{}{
		"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "bmp": {},
		"tiff": {}, "tif": {}, "gif": {}, "avif": {}, "heic": {},
	}
	audioFormats = map[string]struct{}{
		"mp3": {}, "wav": {}, "aac": {}, "flac": {}, "ogg": {}, "m4a": {},
	}
	videoFormats = map[string]struct{}{
		"mp4": {}, "avi": {}, "mov": {}, "mkv": {}, "webm": {},
		"wmv": {}, "flv": {},
	}
	archiveFormats = map[string]struct{}{
		"zip": {}, "rar": {}, "7z": {}, "tar": {}, "gz": {}, "tgz": {}, "iso": {},
	}
)

// Normalize lower-cases a format token and strips a leading dot. It errors
// on empty or malformed tokens; routing of the normalized token never does.
func Normalize(token string) (string, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	token = strings.TrimPrefix(token, ".")
	if token == "" {
		return "", fmt.Errorf("empty target format")
	}
	for _, r := range token {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("malformed target format %q", token)
		}
	}
	return token, nil
}

// Resolve maps a target format token to its converter family. Tokens no
// family claims default to the document family: office-suite converters
// accept the widest variety of inputs and are the most forgiving fallback
// target. Resolve has no side effects.
func Resolve(token string) (Family, error) {
	normalized, err := Normalize(token)
	if err != nil {
		return "", err
	}

	switch {
	case contains(imageFormats, normalized):
		return FamilyImage, nil
	case contains(audioFormats, normalized):
		return FamilyAudio, nil
	case contains(videoFormats, normalized):
		return FamilyVideo, nil
	case contains(archiveFormats, normalized):
		return FamilyArchive, nil
	case contains(documentFormats, normalized):
		return FamilyDocument, nil
	default:
		return FamilyDocument, nil
	}
}

// Families lists every converter family, for registry completeness checks.
func Families() []Family {
	return []Family{FamilyDocument, FamilyImage, FamilyAudio, FamilyVideo, FamilyArchive}
}

func contains(set map[string]struct{}, token string) bool {
	_, ok := set[token]
	return ok
}
