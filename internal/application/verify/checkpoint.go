package verify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Checkpointer takes and restores reversible snapshots of a working tree
type Checkpointer interface {
	Create(ctx context.Context, dir string) (string, error)
	Restore(ctx context.Context, dir, ref string) error
}

// GitCheckpointer snapshots with git. The ref is "<head>" or "<head>:<stash>"
// when the tree had local changes.
type GitCheckpointer struct {
	git func(ctx context.Context, dir string, args ...string) (string, error)
}

// NewGitCheckpointer returns a checkpointer that shells out to git
func NewGitCheckpointer() *GitCheckpointer {
	return &GitCheckpointer{git: runGit}
}

// Create records HEAD and a dangling stash commit of local changes
func (g *GitCheckpointer) Create(ctx context.Context, dir string) (string, error) {
	head, err := g.git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("checkpoint: resolve HEAD: %w", err)
	}
	stash, err := g.git(ctx, dir, "stash", "create")
	if err != nil {
		return "", fmt.Errorf("checkpoint: stash create: %w", err)
	}
	if stash == "" {
		return head, nil
	}
	return head + ":" + stash, nil
}

// Restore resets the tree to the checkpoint and reapplies its local changes
func (g *GitCheckpointer) Restore(ctx context.Context, dir, ref string) error {
	head, stash, _ := strings.Cut(ref, ":")
	if head == "" {
		return fmt.Errorf("checkpoint: empty ref")
	}
	if _, err := g.git(ctx, dir, "reset", "--hard", head); err != nil {
		return fmt.Errorf("checkpoint: reset: %w", err)
	}
	if stash != "" {
		if _, err := g.git(ctx, dir, "stash", "apply", stash); err != nil {
			return fmt.Errorf("checkpoint: stash apply: %w", err)
		}
	}
	return nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}
