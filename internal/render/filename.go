package render

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".webp": true, ".svg": true,
}

// AssetFilename derives the attachment filename for an image block. The stem
// is the block id with every non-alphanumeric rune removed, so it is stable
// across runs and unique per block. The extension comes from the URL path
// when it names a known image type and defaults to .png.
func AssetFilename(nodeID, sourceURL string) string {
	return "image_" + StripSeparators(nodeID) + imageExt(sourceURL)
}

// StripSeparators drops every rune that is not a letter or a digit.
func StripSeparators(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, id)
}

func imageExt(raw string) string {
	if raw == "" {
		return ".png"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ".png"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if imageExtensions[ext] {
		return ext
	}
	return ".png"
}
