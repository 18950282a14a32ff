package retrieve

import (
	"strings"
	"testing"
)

func TestSnippet_ShortContentReturnedWhole(t *testing.T) {
	content := "short and sweet"
	if got := Snippet(content, "sweet", 100); got != content {
		t.Errorf("got %q, want content unchanged", got)
	}
}

func TestSnippet_ZeroLengthDisablesTruncation(t *testing.T) {
	content := strings.Repeat("words ", 100)
	if got := Snippet(content, "words", 0); got != content {
		t.Errorf("maxLen 0 should return content unchanged")
	}
}

func TestSnippet_CentersOnMatch(t *testing.T) {
	pad := strings.Repeat("lorem ipsum dolor sit amet. ", 15)
	content := pad + "the keystone fact lives here" + " " + pad

	got := Snippet(content, "keystone", 80)
	if !strings.Contains(got, "keystone") {
		t.Fatalf("snippet %q lost the match", got)
	}
	if !strings.HasPrefix(got, "...") {
		t.Errorf("expected leading ellipsis: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected trailing ellipsis: %q", got)
	}
	if n := len([]rune(got)); n > 80+6 {
		t.Errorf("snippet length %d exceeds bound", n)
	}
}

func TestSnippet_MatchNearStart(t *testing.T) {
	content := "anchor word opens the text " + strings.Repeat("and then it rambles on ", 20)
	got := Snippet(content, "anchor", 60)
	if strings.HasPrefix(got, "...") {
		t.Errorf("match at the head should not lead with an ellipsis: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated tail should be ellipsized: %q", got)
	}
	if !strings.Contains(got, "anchor") {
		t.Errorf("snippet %q lost the match", got)
	}
}

func TestSnippet_MatchNearEnd(t *testing.T) {
	content := strings.Repeat("preamble text goes on and on ", 20) + "until the finale arrives"
	got := Snippet(content, "finale", 60)
	if !strings.HasPrefix(got, "...") {
		t.Errorf("truncated head should be ellipsized: %q", got)
	}
	if strings.HasSuffix(got, "...") {
		t.Errorf("match at the tail should not end with an ellipsis: %q", got)
	}
	if !strings.Contains(got, "finale") {
		t.Errorf("snippet %q lost the match", got)
	}
}

func TestSnippet_NoMatchUsesHead(t *testing.T) {
	content := "opening words of the document " + strings.Repeat("filler ", 50)
	got := Snippet(content, "absent", 40)
	if !strings.Contains(got, "opening") {
		t.Errorf("headless snippet should start at the front: %q", got)
	}
	if strings.HasPrefix(got, "...") {
		t.Errorf("head snippet should not lead with an ellipsis: %q", got)
	}
}

func TestSnippet_CaseInsensitiveMatching(t *testing.T) {
	pad := strings.Repeat("background noise everywhere ", 10)
	content := pad + "the SIGNAL hides in caps" + " " + pad
	got := Snippet(content, "signal", 60)
	if !strings.Contains(got, "SIGNAL") {
		t.Errorf("case-insensitive match failed: %q", got)
	}
}

func TestSnippet_LongestTermWins(t *testing.T) {
	pad := strings.Repeat("the the the the the the the ", 10)
	content := pad + "elasticsearch migration notes" + " " + pad
	got := Snippet(content, "the elasticsearch", 60)
	if !strings.Contains(got, "elasticsearch") {
		t.Errorf("snippet should center on the most specific term: %q", got)
	}
}

func TestSnippet_SnapsToWordBoundaries(t *testing.T) {
	words := make([]string, 80)
	for i := range words {
		words[i] = "alpha"
	}
	words[40] = "needle"
	content := strings.Join(words, " ")

	got := Snippet(content, "needle", 50)
	body := strings.TrimSuffix(strings.TrimPrefix(got, "..."), "...")
	for _, w := range strings.Fields(body) {
		if w != "alpha" && w != "needle" {
			t.Errorf("partial word %q at a snippet edge", w)
		}
	}
}
