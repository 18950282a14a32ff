package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/sourceid"
)

// issueLine is one exported issue or pull request. Exports are JSONL files
// produced by an external fetcher, one object per line.
type issueLine struct {
	Number  int      `json:"number"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	State   string   `json:"state"`
	HTMLURL string   `json:"html_url"`
	RepoURL string   `json:"repo_url"`
	Labels  []string `json:"labels"`

	Comments []struct {
		Author string `json:"author"`
		Body   string `json:"body"`
	} `json:"comments"`
}

// maxIssueLineBytes bounds a single JSONL line.
const maxIssueLineBytes = 4 << 20

// IssuesAdapter parses issue or pull-request exports. One file line becomes
// one extraction; a malformed line fails the whole target.
type IssuesAdapter struct {
	kind models.SourceType
}

// NewIssuesAdapter returns an adapter for repo-issue or repo-pr exports.
func NewIssuesAdapter(kind models.SourceType) *IssuesAdapter {
	if kind != models.SourceRepoPR {
		kind = models.SourceRepoIssue
	}
	return &IssuesAdapter{kind: kind}
}

// Type returns the source type handled by this adapter.
func (a *IssuesAdapter) Type() models.SourceType { return a.kind }

// Extract reads the JSONL export at target.
func (a *IssuesAdapter) Extract(ctx context.Context, target string) ([]Extraction, error) {
	f, err := os.Open(target)
	if err != nil {
		return nil, &ExtractionError{Source: a.kind, Target: target, Err: err}
	}
	defer f.Close()

	ref := "issue"
	if a.kind == models.SourceRepoPR {
		ref = "pr"
	}

	var extractions []Extraction
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxIssueLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, &ExtractionError{Source: a.kind, Target: target, Err: err}
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item issueLine
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, &ExtractionError{
				Source: a.kind, Target: target,
				Err: fmt.Errorf("line %d: %w", lineNo, err),
			}
		}
		repoURL := item.repoURL()
		if repoURL == "" {
			return nil, &ExtractionError{
				Source: a.kind, Target: target,
				Err: fmt.Errorf("line %d: no repository url", lineNo),
			}
		}
		if item.Title == "" {
			item.Title = fmt.Sprintf("%s #%d", ref, item.Number)
		}

		meta := models.Metadata{
			Title:      item.Title,
			SourcePath: sourceid.ForRepo(repoURL, ref+"/"+strconv.Itoa(item.Number)),
			RepoURL:    repoURL,
			Tags:       item.Labels,
		}
		if item.State != "" {
			meta.Extra = map[string]string{"state": item.State}
		}
		extractions = append(extractions, Extraction{
			Content: item.text(),
			Meta:    meta,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &ExtractionError{Source: a.kind, Target: target, Err: err}
	}
	return extractions, nil
}

// repoURL prefers the explicit field and falls back to stripping the
// issue/pull suffix from the HTML URL.
func (l *issueLine) repoURL() string {
	if l.RepoURL != "" {
		return l.RepoURL
	}
	for _, marker := range []string{"/issues/", "/pull/"} {
		if i := strings.Index(l.HTMLURL, marker); i > 0 {
			return l.HTMLURL[:i]
		}
	}
	return ""
}

// text flattens title, body, and comments into one searchable block.
func (l *issueLine) text() string {
	var b strings.Builder
	b.WriteString(l.Title)
	if l.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(l.Body)
	}
	for _, c := range l.Comments {
		b.WriteString("\n\n")
		if c.Author != "" {
			b.WriteString(c.Author)
			b.WriteString(": ")
		}
		b.WriteString(c.Body)
	}
	return b.String()
}
