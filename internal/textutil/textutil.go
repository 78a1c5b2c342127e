// Package textutil provides small text helpers shared by the bot and
// the delivery pipeline: URL extraction, filename sanitization and
// human readable byte formatting.
package textutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	hashtagPattern = regexp.MustCompile(`#\S+`)
	spacePattern   = regexp.MustCompile(`\s+`)
	forbiddenChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
)

// maxFilenameBase caps sanitized titles so the final path stays well
// under common filesystem limits even with the job prefix attached.
const maxFilenameBase = 120

// FirstURL returns the first http(s) URL found in the text, or "" if none.
func FirstURL(text string) string {
	return urlPattern.FindString(text)
}

// IsYouTubeURL reports whether the URL points at a supported YouTube host.
func IsYouTubeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	switch host {
	case "youtube.com", "youtu.be", "music.youtube.com":
		return true
	}
	return false
}

// SanitizeFilename turns a media title into a safe filename base.
// Hashtags and forbidden characters are stripped, whitespace collapsed,
// and the result capped. An empty result falls back to "video".
func SanitizeFilename(title string) string {
	s := hashtagPattern.ReplaceAllString(title, "")
	s = forbiddenChars.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".")

	if runes := []rune(s); len(runes) > maxFilenameBase {
		s = strings.TrimSpace(string(runes[:maxFilenameBase]))
	}

	if s == "" {
		return "video"
	}
	return s
}

// FormatBytes renders a byte count with one decimal place, B through GB.
func FormatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/(1024*1024*1024))
	}
}
