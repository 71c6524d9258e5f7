package extract

import (
	"regexp"
	"strings"
)

var (
	mdFence      = regexp.MustCompile("(?m)^```.*$")
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdEmphasis   = regexp.MustCompile(`(\*\*\*|\*\*|\*|___|__|_|~~)`)
	mdLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdInlineCode = regexp.MustCompile("`([^`]*)`")
	mdBlockquote = regexp.MustCompile(`(?m)^>\s?`)
	mdListMarker = regexp.MustCompile(`(?m)^(\s*)([-*+]|\d+\.)\s+`)
	mdTableBar   = regexp.MustCompile(`\|`)
)

// ExtractMarkdown strips markdown syntax while preserving paragraph and
// line structure, mirroring the event-walk in original_source's
// markdown_to_text (text and soft/hard breaks become newline-separated
// text, everything else is dropped).
func ExtractMarkdown(md string) string {
	text := mdFence.ReplaceAllString(md, "")
	text = mdImage.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdInlineCode.ReplaceAllString(text, "$1")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdBlockquote.ReplaceAllString(text, "")
	text = mdListMarker.ReplaceAllString(text, "$1")
	text = mdEmphasis.ReplaceAllString(text, "")
	text = mdTableBar.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, strings.TrimRight(l, " \t"))
	}
	return strings.Join(out, "\n")
}
