package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/go-git/go-git/v5"
)

// Cloner fetches a git remote into dir. dir does not exist yet; its parent
// does.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

// ExecCloner shells out to the git binary.
type ExecCloner struct {
	// GitPath defaults to "git" looked up on PATH.
	GitPath string
	// Depth > 0 makes a shallow clone.
	Depth int
}

// Clone runs `git clone`. A non-zero exit becomes a clone AcquisitionError
// carrying git's stderr.
func (c ExecCloner) Clone(ctx context.Context, url, dir string) error {
	bin := c.GitPath
	if bin == "" {
		bin = "git"
	}

	args := []string{"clone", "--quiet"}
	if c.Depth > 0 {
		args = append(args, "--depth", fmt.Sprint(c.Depth))
	}
	args = append(args, "--", url, dir)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return rerrors.AcquisitionError(rerrors.AcquisitionClone, msg, err).
			WithDetail("url", url)
	}
	return nil
}

// GoGitCloner clones in-process with go-git. It needs no git binary.
type GoGitCloner struct {
	Depth int
}

// Clone performs a single-branch clone of the default branch.
func (c GoGitCloner) Clone(ctx context.Context, url, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Depth:        c.Depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		return rerrors.AcquisitionError(rerrors.AcquisitionClone, err.Error(), err).
			WithDetail("url", url)
	}
	return nil
}

// NewCloner returns the cloner for a configured backend name.
func NewCloner(backend string) (Cloner, error) {
	switch backend {
	case "", "exec":
		return ExecCloner{Depth: 1}, nil
	case "go-git":
		return GoGitCloner{Depth: 1}, nil
	default:
		return nil, rerrors.ConfigError(fmt.Sprintf("unknown git backend %q", backend), nil)
	}
}

// originURL returns the first URL of the origin remote of the repository
// at dir, or "" when dir is not a repository or has no origin.
func originURL(dir string) string {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return ""
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return ""
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}
