package hashtags

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxScanBytes bounds the text the extractor scans. Longer texts yield no tags.
	MaxScanBytes = 64 << 10
	// MaxTagLength is the longest tag name, in runes, that is stored. Longer tags are skipped.
	MaxTagLength = 100
)

var hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// ExtractHashtags returns the distinct lowercased tags in text, in order of first appearance.
func ExtractHashtags(text string) []string {
	if text == "" || len(text) > MaxScanBytes || !utf8.ValidString(text) {
		return []string{}
	}
	tags := []string{}
	seen := make(map[string]struct{})
	for _, match := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(match[1])
		if utf8.RuneCountInString(tag) > MaxTagLength {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
