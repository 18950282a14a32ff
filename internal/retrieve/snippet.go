package retrieve

import (
	"strings"
	"unicode"
)

// snippetSnap bounds how far the excerpt window moves to land on a word
// boundary instead of cutting mid-word.
const snippetSnap = 16

// Snippet returns an excerpt of content at most maxLen runes long, centered
// on the best query term match. The best match is the longest query term
// found in the content; without one the excerpt is the head of the content.
// Truncated edges are ellipsized.
func Snippet(content, query string, maxLen int) string {
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return content
	}

	center := matchCenter(content, query)
	start := center - maxLen/2
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(runes) {
		end = len(runes)
		start = end - maxLen
	}

	start = snapStart(runes, start)
	end = snapEnd(runes, end)

	excerpt := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(runes) {
		excerpt = excerpt + "..."
	}
	return excerpt
}

// matchCenter returns the rune position of the middle of the best query term
// occurrence, or 0 when no term occurs. Longer terms win; equal lengths
// prefer the earlier occurrence. Matching is case-insensitive.
func matchCenter(content, query string) int {
	lower := strings.ToLower(content)
	bestLen, bestPos := 0, -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		pos := strings.Index(lower, term)
		if pos < 0 {
			continue
		}
		if len(term) > bestLen || (len(term) == bestLen && pos < bestPos) {
			bestLen = len(term)
			bestPos = pos
		}
	}
	if bestPos < 0 {
		return 0
	}
	// Byte offsets convert to rune offsets; ToLower preserves rune counts.
	runePos := len([]rune(lower[:bestPos]))
	runeLen := len([]rune(lower[bestPos : bestPos+bestLen]))
	return runePos + runeLen/2
}

// snapStart moves start forward past a partial word, up to snippetSnap runes.
func snapStart(runes []rune, start int) int {
	if start <= 0 {
		return 0
	}
	if unicode.IsSpace(runes[start-1]) {
		return start
	}
	limit := start + snippetSnap
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := start; i < limit; i++ {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return start
}

// snapEnd moves end backward past a partial word, up to snippetSnap runes.
func snapEnd(runes []rune, end int) int {
	if end >= len(runes) {
		return len(runes)
	}
	if unicode.IsSpace(runes[end]) {
		return end
	}
	low := end - snippetSnap
	if low < 0 {
		low = 0
	}
	for i := end - 1; i >= low; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}
