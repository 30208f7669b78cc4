package platform

import (
	"github.com/maheshrc27/postflow/internal/models"
)

const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeVideo    = "video"
	ContentTypeCarousel = "carousel"
	ContentTypeStory    = "story"
)

const (
	MediaKindImage = "image"
	MediaKindVideo = "video"
)

// ContentTypeSpec declares what a content type needs before a publish call is
// attempted: media presence, count bounds and supported media kinds.
type ContentTypeSpec struct {
	Label         string
	RequiresMedia bool
	MaxMediaCount int
	MediaKinds    []string
	AspectRatio   string
}

var contentTypeSpecs = map[string]ContentTypeSpec{
	ContentTypeText: {
		Label:         "Text post",
		RequiresMedia: false,
		MaxMediaCount: 0,
	},
	ContentTypeImage: {
		Label:         "Image post",
		RequiresMedia: true,
		MaxMediaCount: 1,
		MediaKinds:    []string{MediaKindImage},
		AspectRatio:   "1:1",
	},
	ContentTypeVideo: {
		Label:         "Video post",
		RequiresMedia: true,
		MaxMediaCount: 1,
		MediaKinds:    []string{MediaKindVideo},
		AspectRatio:   "16:9",
	},
	ContentTypeCarousel: {
		Label:         "Carousel",
		RequiresMedia: true,
		MaxMediaCount: 10,
		MediaKinds:    []string{MediaKindImage},
		AspectRatio:   "1:1",
	},
	ContentTypeStory: {
		Label:         "Story",
		RequiresMedia: true,
		MaxMediaCount: 1,
		MediaKinds:    []string{MediaKindImage, MediaKindVideo},
		AspectRatio:   "9:16",
	},
}

// platform-specific deviations from the default table
var platformSpecOverrides = map[string]map[string]ContentTypeSpec{
	PlatformLinkedin: {
		ContentTypeImage: {Label: "Image post", RequiresMedia: true, MaxMediaCount: 9, MediaKinds: []string{MediaKindImage}, AspectRatio: "1.91:1"},
	},
	PlatformX: {
		ContentTypeImage: {Label: "Image post", RequiresMedia: true, MaxMediaCount: 4, MediaKinds: []string{MediaKindImage}, AspectRatio: "16:9"},
	},
	PlatformTiktok: {
		ContentTypeCarousel: {Label: "Photo post", RequiresMedia: true, MaxMediaCount: 35, MediaKinds: []string{MediaKindImage}, AspectRatio: "1:1"},
	},
	PlatformPinterest: {
		ContentTypeImage: {Label: "Pin", RequiresMedia: true, MaxMediaCount: 1, MediaKinds: []string{MediaKindImage}, AspectRatio: "2:3"},
	},
	PlatformMastodon: {
		ContentTypeImage: {Label: "Image post", RequiresMedia: true, MaxMediaCount: 4, MediaKinds: []string{MediaKindImage}, AspectRatio: "16:9"},
	},
}

// SpecFor resolves the capability entry for a platform/content-type pairing.
func SpecFor(platform, contentType string) (ContentTypeSpec, bool) {
	if overrides, ok := platformSpecOverrides[platform]; ok {
		if spec, ok := overrides[contentType]; ok {
			return spec, true
		}
	}
	spec, ok := contentTypeSpecs[contentType]
	return spec, ok
}

// ValidateMedia checks the attached media against the resolved capability
// entry. Violations surface as ValidationError before any network call.
func ValidateMedia(platform, contentType string, media []*models.MediaAsset) error {
	spec, ok := SpecFor(platform, contentType)
	if !ok {
		return validationf("content type %q is not supported on %s", contentType, platform)
	}

	if spec.RequiresMedia && len(media) == 0 {
		return validationf("%s on %s requires media", spec.Label, platform)
	}

	if !spec.RequiresMedia && spec.MaxMediaCount == 0 && len(media) > 0 {
		return validationf("%s on %s does not accept media", spec.Label, platform)
	}

	if spec.MaxMediaCount > 0 && len(media) > spec.MaxMediaCount {
		return validationf("%s on %s accepts at most %d media items, got %d", spec.Label, platform, spec.MaxMediaCount, len(media))
	}

	for _, m := range media {
		if !kindAllowed(spec.MediaKinds, m) {
			return validationf("%s on %s does not accept %s media", spec.Label, platform, m.FileType)
		}
	}

	return nil
}

func kindAllowed(kinds []string, m *models.MediaAsset) bool {
	for _, k := range kinds {
		if k == MediaKindImage && m.IsImage() {
			return true
		}
		if k == MediaKindVideo && m.IsVideo() {
			return true
		}
	}
	return false
}
