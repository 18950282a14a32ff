package chunk

import "regexp"

// declRe matches lines that open a function, type, or class declaration in
// the languages commonly found in repositories. Indentation up to one level
// is allowed so methods inside classes still count as boundaries.
var declRe = regexp.MustCompile(`^\s{0,4}(func |def |fn |class |type |interface |impl |struct |module |function |pub fn |public |private |protected |static )`)

// lineStarts returns the offset of every line start in runes, with a flag
// for lines that open a declaration.
func lineStarts(runes []rune) []lineInfo {
	lines := []lineInfo{{start: 0}}
	for i, r := range runes {
		if r == '\n' && i+1 < len(runes) {
			lines = append(lines, lineInfo{start: i + 1})
		}
	}
	for i := range lines {
		end := len(runes)
		if i+1 < len(lines) {
			end = lines[i+1].start - 1
		}
		lines[i].boundary = declRe.MatchString(string(runes[lines[i].start:end]))
	}
	return lines
}

type lineInfo struct {
	start    int
	boundary bool
}

// codeCutter cuts before the latest declaration line in the window so each
// segment ends where a new unit begins. When a file has no recognizable
// declarations the cutter falls back to a fixed window of codeLineWindow
// lines, and to plain text cuts when even lines are absent or oversized.
func (c *Chunker) codeCutter(runes []rune) cutFunc {
	lines := lineStarts(runes)
	hasDecl := false
	for _, l := range lines {
		if l.boundary {
			hasDecl = true
			break
		}
	}
	return func(runes []rune, start, end int) int {
		minCut := start + (end-start)/2
		if hasDecl {
			best := -1
			for _, l := range lines {
				if l.start > end {
					break
				}
				if l.boundary && l.start > minCut {
					best = l.start
				}
			}
			if best > start {
				return best
			}
		}
		// Fixed line-count window from the first line at or after start.
		first := -1
		for i, l := range lines {
			if l.start >= start {
				first = i
				break
			}
		}
		if first >= 0 && first+c.codeLineWindow < len(lines) {
			at := lines[first+c.codeLineWindow].start
			if at > start && at <= end {
				return at
			}
		}
		return textCut(runes, start, end)
	}
}
