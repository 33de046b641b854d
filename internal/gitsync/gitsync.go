package gitsync

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
)

// Synchronizer keeps a local working copy of the target project at the
// requested branch. Re-running it against an existing clone is safe.
type Synchronizer struct {
	log *logger.Logger

	// runGit is swappable in tests.
	runGit func(dir string, args ...string) (string, error)
}

// New creates a Synchronizer.
func New(log *logger.Logger) *Synchronizer {
	s := &Synchronizer{log: log.WithPrefix("git")}
	s.runGit = runGit
	return s
}

// EnsurePresent clones the repository into dir (restricted to branch) when
// dir does not exist, or fetches, checks out and pulls when it does. The
// authenticated URL is handed to git only and never logged.
func (s *Synchronizer) EnsurePresent(dir, authURL, branch string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return s.clone(dir, authURL, branch)
	}
	return s.update(dir, branch)
}

func (s *Synchronizer) clone(dir, authURL, branch string) error {
	s.log.Info("Cloning branch %q into %s", branch, dir)
	out, err := s.runGit("", "clone", "--branch", branch, "--single-branch", authURL, dir)
	if err != nil {
		return exitcode.Fatal(exitcode.CloneFailed, err,
			"clone failed; check the repository URL, token and branch name")
	}
	s.log.Debug("git clone: %s", out)
	s.log.Success("Repository cloned")
	return nil
}

func (s *Synchronizer) update(dir, branch string) error {
	s.log.Info("Working copy %s exists, updating to latest %q", dir, branch)

	if _, err := s.runGit(dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		return exitcode.Fatal(exitcode.NotARepository, err,
			"%s exists but is not a git working copy; remove it and re-run", dir)
	}

	if dirty, err := s.isDirty(dir); err == nil && dirty {
		return exitcode.Fatal(exitcode.DirtyWorkTree, nil,
			"working copy %s has local modifications; commit or discard them first", dir)
	}

	if out, err := s.runGit(dir, "fetch", "origin", branch); err != nil {
		return exitcode.Fatal(exitcode.FetchFailed, err, "fetch of %q failed", branch)
	} else {
		s.log.Debug("git fetch: %s", out)
	}

	if _, err := s.runGit(dir, "checkout", branch); err != nil {
		return exitcode.Fatal(exitcode.CheckoutFailed, err, "checkout of %q failed", branch)
	}

	if out, err := s.runGit(dir, "pull", "origin", branch); err != nil {
		return exitcode.Fatal(exitcode.PullFailed, err, "pull of %q failed", branch)
	} else {
		s.log.Debug("git pull: %s", out)
	}

	s.log.Success("Working copy at latest %q", branch)
	return nil
}

func (s *Synchronizer) isDirty(dir string) (bool, error) {
	out, err := s.runGit(dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s",
			redactTokens(strings.Join(args, " ")), err, redactTokens(errOut.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// redactTokens strips embedded credentials from URLs git echoes back in
// error output.
func redactTokens(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if at := strings.Index(f, "@"); at > 0 && strings.HasPrefix(f, "https://") {
			fields[i] = "https://***" + f[at:]
		}
	}
	return strings.Join(fields, " ")
}

// WorkDir is the local working copy path for a project, a sibling of the
// current directory named after the project.
func WorkDir(projectName string) string {
	return filepath.Join(".", projectName)
}
