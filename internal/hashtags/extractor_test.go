package hashtags

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractHashtags(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: []string{}},
		{name: "lowercases and dedupes", text: "#Go is #go and #GO", want: []string{"go"}},
		{name: "unicode letters", text: "#Café #日本 #snake_case", want: []string{"café", "日本", "snake_case"}},
		{name: "stops at punctuation", text: "#release-notes #v2.0", want: []string{"release", "v2"}},
		{name: "no cap", text: "#a #b #c #d #e #f #g", want: []string{"a", "b", "c", "d", "e", "f", "g"}},
		{name: "bare hash", text: "# nothing", want: []string{}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			got := ExtractHashtags(testCase.text)
			if !reflect.DeepEqual(got, testCase.want) {
				t.Fatalf("ExtractHashtags(%q) = %#v, want %#v", testCase.text, got, testCase.want)
			}
		})
	}
}

func TestExtractHashtagsSkipsOverlongTags(t *testing.T) {
	text := "#" + strings.Repeat("a", MaxTagLength+1) + " #short"
	if got := ExtractHashtags(text); !reflect.DeepEqual(got, []string{"short"}) {
		t.Fatalf("unexpected tags %v", got)
	}
}
