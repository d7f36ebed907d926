package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"pdf", "pdf", false},
		{".pdf", "pdf", false},
		{"PDF", "pdf", false},
		{" .DocX ", "docx", false},
		{"7z", "7z", false},
		{"", "", true},
		{".", "", true},
		{"   ", "", true},
		{"do cx", "", true},
		{"../etc", "", true},
		{"mp4;rm", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Normalize(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_FamilyRouting(t *testing.T) {
	tests := []struct {
		token string
		want  Family
	}{
		// Images
		{"jpg", FamilyImage},
		{"jpeg", FamilyImage},
		{".PNG", FamilyImage},
		{"webp", FamilyImage},
		{"tiff", FamilyImage},
		{"gif", FamilyImage},

		// Audio
		{"mp3", FamilyAudio},
		{"wav", FamilyAudio},
		{"flac", FamilyAudio},
		{"m4a", FamilyAudio},

		// Video
		{"mp4", FamilyVideo},
		{"mkv", FamilyVideo},
		{"webm", FamilyVideo},
		{"mov", FamilyVideo},

		// Archives
		{"zip", FamilyArchive},
		{"tar", FamilyArchive},
		{"7z", FamilyArchive},
		{"gz", FamilyArchive},

		// Documents
		{"pdf", FamilyDocument},
		{"docx", FamilyDocument},
		{"xlsx", FamilyDocument},
		{"txt", FamilyDocument},
		{"md", FamilyDocument},
		{"csv", FamilyDocument},

		// Unknown tokens default to the document family.
		{"epub", FamilyDocument},
		{"xyz", FamilyDocument},
	}

	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			got, err := Resolve(tc.token)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_RejectsMalformedTokens(t *testing.T) {
	for _, token := range []string{"", ".", "a b", "p/df"} {
		_, err := Resolve(token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestFamilySetsAreDisjoint(t *testing.T) {
	sets := map[Family]map[string]struct{}{
		FamilyDocument: documentFormats,
		FamilyImage:    imageFormats,
		FamilyAudio:    audioFormats,
		FamilyVideo:    videoFormats,
		FamilyArchive:  archiveFormats,
	}

	seen := map[string]Family{}
	for family, set := range sets {
		for token := range set {
			prev, dup := seen[token]
			assert.False(t, dup, "token %q claimed by both %s and %s", token, prev, family)
			seen[token] = family
		}
	}
}
