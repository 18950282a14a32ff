package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/sourceid"
)

// maxRepoFileBytes caps the size of a single tracked file.
const maxRepoFileBytes = 1 << 20

// skipDirs are directories never worth indexing inside a clone.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	".idea":        true,
	".vscode":      true,
}

// codeLanguages maps file extensions the repo adapter indexes to a language
// label stored in metadata.
var codeLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".rs":    "rust",
	".rb":    "ruby",
	".php":   "php",
	".cs":    "csharp",
	".kt":    "kotlin",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".proto": "protobuf",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".md":    "markdown",
}

// RepoCodeAdapter walks a local clone and yields one extraction per source
// file, stamped with the repository URL and head commit.
type RepoCodeAdapter struct {
	git    GitRunner
	logger *zap.Logger
}

// NewRepoCodeAdapter returns a repo-code adapter reading clone state through
// git.
func NewRepoCodeAdapter(git GitRunner, logger *zap.Logger) *RepoCodeAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepoCodeAdapter{git: git, logger: logger}
}

// Type returns the source type handled by this adapter.
func (a *RepoCodeAdapter) Type() models.SourceType { return models.SourceRepoCode }

// Extract walks the clone at target.
func (a *RepoCodeAdapter) Extract(ctx context.Context, target string) ([]Extraction, error) {
	repoURL, commit, err := a.repoIdentity(ctx, target)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}

	files, err := collectRepoFiles(ctx, target)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}

	extractions := make([]Extraction, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
		}
		content, err := os.ReadFile(filepath.Join(target, rel))
		if err != nil {
			return nil, &ExtractionError{Source: a.Type(), Target: rel, Err: err}
		}
		if isBinary(content) {
			continue
		}
		text, _ := extractPlain(content)
		extractions = append(extractions, Extraction{
			Content: text,
			Meta: models.Metadata{
				Title:      rel,
				SourcePath: sourceid.ForRepo(repoURL, rel),
				RepoURL:    repoURL,
				CommitHash: commit,
				FilePath:   rel,
				Language:   codeLanguages[strings.ToLower(filepath.Ext(rel))],
			},
		})
	}

	a.logger.Debug("repository walked",
		zap.String("repo", repoURL),
		zap.String("commit", commit),
		zap.Int("files", len(extractions)))
	return extractions, nil
}

// repoIdentity resolves the clone's repository URL and head commit. A clone
// without an origin remote is identified by its absolute path.
func (a *RepoCodeAdapter) repoIdentity(ctx context.Context, dir string) (repoURL, commit string, err error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return "", "", fmt.Errorf("not a git clone: %w", err)
	}
	commit, err = a.git.Head(ctx, dir)
	if err != nil {
		return "", "", err
	}
	repoURL, err = a.git.OriginURL(ctx, dir)
	if err != nil {
		return "", "", err
	}
	if repoURL == "" {
		repoURL, err = sourceid.ForPath(dir)
		if err != nil {
			return "", "", err
		}
	}
	return repoURL, commit, nil
}

// collectRepoFiles returns indexable files relative to root, in a stable
// order.
func collectRepoFiles(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if skipDirs[name] || (strings.HasPrefix(name, ".") && path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if !indexableRepoFile(name) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxRepoFileBytes {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func indexableRepoFile(name string) bool {
	if _, ok := codeLanguages[strings.ToLower(filepath.Ext(name))]; ok {
		return true
	}
	switch name {
	case "Makefile", "Dockerfile", "LICENSE", "README":
		return true
	}
	return false
}

// isBinary applies git's heuristic: a NUL byte in the first 8000 bytes.
func isBinary(content []byte) bool {
	head := content
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
