package mentions

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractMentions(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: []string{}},
		{name: "no mentions", text: "hello world", want: []string{}},
		{name: "too short", text: "hi @abc", want: []string{}},
		{name: "single", text: "hi @alice!", want: []string{"alice"}},
		{name: "dots and underscores", text: "@john.doe_42 ping", want: []string{"john.doe_42"}},
		{name: "case sensitive dedupe", text: "@alice @Alice @alice", want: []string{"alice", "Alice"}},
		{name: "truncated to fifteen", text: "@abcdefghijklmnopqrst", want: []string{"abcdefghijklmno"}},
		{
			name: "cap keeps first five in order",
			text: "@user1x @user2x @user1x @user3x @user4x @user5x @user6x @user7x",
			want: []string{"user1x", "user2x", "user3x", "user4x", "user5x"},
		},
		{name: "invalid utf8", text: "@alice \xff\xfe", want: []string{}},
		{name: "unicode neighbours", text: "héllo @bobby… and @çarl", want: []string{"bobby"}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			got := ExtractMentions(testCase.text)
			if !reflect.DeepEqual(got, testCase.want) {
				t.Fatalf("ExtractMentions(%q) = %#v, want %#v", testCase.text, got, testCase.want)
			}
		})
	}
}

func TestExtractMentionsIgnoresOversizedText(t *testing.T) {
	text := "@alice " + strings.Repeat("x", MaxScanBytes)
	if got := ExtractMentions(text); len(got) != 0 {
		t.Fatalf("expected oversized text to yield nothing, got %v", got)
	}
}
