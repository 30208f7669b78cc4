package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
)

func image() *models.MediaAsset {
	return &models.MediaAsset{FileType: "image/jpeg"}
}

func video() *models.MediaAsset {
	return &models.MediaAsset{FileType: "video/mp4"}
}

func TestValidateMedia(t *testing.T) {
	tests := []struct {
		name        string
		platform    string
		contentType string
		media       []*models.MediaAsset
		wantErr     string
	}{
		{
			name:        "text post without media",
			platform:    PlatformLinkedin,
			contentType: ContentTypeText,
		},
		{
			name:        "text post rejects media",
			platform:    PlatformLinkedin,
			contentType: ContentTypeText,
			media:       []*models.MediaAsset{image()},
			wantErr:     "does not accept media",
		},
		{
			name:        "image post requires media",
			platform:    PlatformInstagram,
			contentType: ContentTypeImage,
			wantErr:     "requires media",
		},
		{
			name:        "image post rejects video",
			platform:    PlatformInstagram,
			contentType: ContentTypeImage,
			media:       []*models.MediaAsset{video()},
			wantErr:     "does not accept video/mp4",
		},
		{
			name:        "carousel within limit",
			platform:    PlatformInstagram,
			contentType: ContentTypeCarousel,
			media:       []*models.MediaAsset{image(), image(), image()},
		},
		{
			name:        "x image override allows four",
			platform:    PlatformX,
			contentType: ContentTypeImage,
			media:       []*models.MediaAsset{image(), image(), image(), image()},
		},
		{
			name:        "x image override rejects five",
			platform:    PlatformX,
			contentType: ContentTypeImage,
			media:       []*models.MediaAsset{image(), image(), image(), image(), image()},
			wantErr:     "at most 4",
		},
		{
			name:        "story accepts video",
			platform:    PlatformInstagram,
			contentType: ContentTypeStory,
			media:       []*models.MediaAsset{video()},
		},
		{
			name:        "unknown content type",
			platform:    PlatformLinkedin,
			contentType: "poll",
			wantErr:     "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMedia(tt.platform, tt.contentType, tt.media)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSpecForFallsBackToDefaults(t *testing.T) {
	spec, ok := SpecFor(PlatformBluesky, ContentTypeImage)
	require.True(t, ok)
	assert.Equal(t, 1, spec.MaxMediaCount)

	spec, ok = SpecFor(PlatformTiktok, ContentTypeCarousel)
	require.True(t, ok)
	assert.Equal(t, 35, spec.MaxMediaCount)
}
