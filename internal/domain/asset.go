package domain

import (
	"net/url"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultExtension is used when the display URL carries no usable extension.
const DefaultExtension = "png"

// Extension returns the file extension of a display URL, without the dot.
// Query strings and fragments are ignored. A missing extension, or a name
// ending in a dot, yields DefaultExtension.
func Extension(displayURL string) string {
	p := displayURL
	if u, err := url.Parse(displayURL); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	i := strings.LastIndex(name, ".")
	if i == -1 || i == len(name)-1 || !isFlatName(name[i+1:]) {
		return DefaultExtension
	}
	return name[i+1:]
}

// fallbackAssetBase names an asset whose md5 and id are both unusable.
const fallbackAssetBase = "sticker"

// AssetName is the file name a sticker is saved under: {md5}.{ext}.
// Single and batch downloads both use it. The md5 and id come from the
// server, so a value that could escape the target directory or archive root
// is skipped in favour of the next candidate.
func AssetName(s Sticker) string {
	base := fallbackAssetBase
	switch {
	case isFlatName(s.MD5):
		base = s.MD5
	case isFlatName(s.ID):
		base = s.ID
	}
	return base + "." + Extension(s.URL)
}

// isFlatName reports whether v is a non-empty single path element.
func isFlatName(v string) bool {
	if v == "" || strings.Contains(v, "..") {
		return false
	}
	return !strings.ContainsAny(v, "/\\:\x00")
}

// FormatFileSize renders a byte count for display.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
