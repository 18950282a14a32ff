package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/sourceid"
)

// diffCommitLimit bounds how far back the diff adapter reaches.
const diffCommitLimit = 50

// DiffAdapter turns the recent commit history of a local clone into one
// extraction per commit, patch included.
type DiffAdapter struct {
	git    GitRunner
	logger *zap.Logger
}

// NewDiffAdapter returns a repo-diff adapter reading history through git.
func NewDiffAdapter(git GitRunner, logger *zap.Logger) *DiffAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiffAdapter{git: git, logger: logger}
}

// Type returns the source type handled by this adapter.
func (a *DiffAdapter) Type() models.SourceType { return models.SourceRepoDiff }

// Extract reads recent patches from the clone at target.
func (a *DiffAdapter) Extract(ctx context.Context, target string) ([]Extraction, error) {
	if _, err := os.Stat(filepath.Join(target, ".git")); err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: fmt.Errorf("not a git clone: %w", err)}
	}

	repoURL, err := a.git.OriginURL(ctx, target)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}
	if repoURL == "" {
		repoURL, err = sourceid.ForPath(target)
		if err != nil {
			return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
		}
	}

	log, err := a.git.LogPatches(ctx, target, diffCommitLimit)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}

	commits := splitCommits(log)
	extractions := make([]Extraction, 0, len(commits))
	for _, c := range commits {
		extractions = append(extractions, Extraction{
			Content: c.patch,
			Meta: models.Metadata{
				Title:      c.subject,
				SourcePath: sourceid.ForRepo(repoURL, "commit/"+c.hash),
				RepoURL:    repoURL,
				CommitHash: c.hash,
			},
		})
	}
	a.logger.Debug("commit history read",
		zap.String("repo", repoURL),
		zap.Int("commits", len(extractions)))
	return extractions, nil
}

type commitPatch struct {
	hash    string
	subject string
	patch   string
}

// splitCommits cuts git log --patch output into per-commit blocks. Each
// block starts at a "commit <hash>" line; the subject is the first indented
// line after the headers.
func splitCommits(log string) []commitPatch {
	lines := strings.Split(log, "\n")
	var commits []commitPatch
	var cur *commitPatch
	var buf []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.patch = strings.TrimRight(strings.Join(buf, "\n"), "\n")
		if cur.subject == "" {
			cur.subject = "commit " + shortHash(cur.hash)
		}
		commits = append(commits, *cur)
		cur = nil
		buf = nil
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "commit ") && !strings.HasPrefix(line, "commit  ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 && isHexHash(fields[1]) {
				flush()
				cur = &commitPatch{hash: fields[1]}
			}
		}
		if cur == nil {
			continue
		}
		buf = append(buf, line)
		if cur.subject == "" && strings.HasPrefix(line, "    ") {
			cur.subject = strings.TrimSpace(line)
		}
	}
	flush()
	return commits
}

func isHexHash(s string) bool {
	if len(s) < 7 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
