package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner reads repository state from a local clone. Implementations must
// be safe for concurrent use.
type GitRunner interface {
	// Head returns the commit hash the working tree is at.
	Head(ctx context.Context, dir string) (string, error)
	// OriginURL returns the URL of the origin remote, or "" when the clone
	// has none.
	OriginURL(ctx context.Context, dir string) (string, error)
	// LogPatches returns the most recent n commits with their patches, as
	// produced by git log --patch.
	LogPatches(ctx context.Context, dir string, n int) (string, error)
}

// ExecGit shells out to the git binary.
type ExecGit struct{}

// NewExecGit returns a GitRunner backed by the git binary on PATH.
func NewExecGit() *ExecGit { return &ExecGit{} }

func (g *ExecGit) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *ExecGit) OriginURL(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "remote", "get-url", "origin")
	if err != nil {
		// A clone without an origin remote is still usable; callers fall
		// back to the local path.
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

func (g *ExecGit) LogPatches(ctx context.Context, dir string, n int) (string, error) {
	return g.run(ctx, dir, "log", "--patch", fmt.Sprintf("-n%d", n), "--no-color")
}

func (g *ExecGit) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}
