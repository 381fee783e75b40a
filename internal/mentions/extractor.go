package mentions

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxMentions caps how many distinct usernames a single text may mention.
	MaxMentions = 5
	// MaxScanBytes bounds the text the extractor scans. Longer texts yield no mentions.
	MaxScanBytes = 64 << 10
)

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9._]{4,15})`)

// ExtractMentions returns the distinct usernames mentioned in text, in order of first appearance
// and capped at MaxMentions. Matching is case-sensitive. Oversized or invalid UTF-8 text yields
// an empty result.
func ExtractMentions(text string) []string {
	if text == "" || len(text) > MaxScanBytes || !utf8.ValidString(text) {
		return []string{}
	}
	usernames := make([]string, 0, MaxMentions)
	seen := make(map[string]struct{}, MaxMentions)
	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		username := match[1]
		if _, dup := seen[username]; dup {
			continue
		}
		seen[username] = struct{}{}
		usernames = append(usernames, username)
		if len(usernames) == MaxMentions {
			break
		}
	}
	return usernames
}
