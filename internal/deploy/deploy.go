// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package deploy publishes the site.

The site itself is generated by an external tool (Hexo by default).
This package runs that tool and then commits and pushes the freshly
built output. The output directory is a separate git checkout (a
submodule of the blog repository) whose remote is the hosting
repository, so publishing is just a commit on its primary branch.

The pipeline is strictly linear: build, resolve the output checkout,
stage, commit, push. Every step is fatal if it fails and nothing is
retried or rolled back; the working tree is left exactly as the
failing step left it.
*/
package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.astrophena.name/base/logger"
	"go.astrophena.name/base/request"

	"go.rakov.me/blog/internal/check"
	"go.rakov.me/blog/internal/hooks"
	"go.rakov.me/blog/internal/minify"
)

// Possible errors, used in tests.
var (
	errOutputMissing = errors.New("output directory does not exist")
	errOutputNotRepo = errors.New("output directory is not a git checkout")
	errCheckFailed   = errors.New("output failed pre-publish checks")
	errVerifyFailed  = errors.New("site verification failed")
	errConfigInvalid = errors.New("invalid deploy.json")
)

// Config represents a deploy configuration.
type Config struct {
	// Dir is the blog repository root. If empty, uses the current directory.
	Dir string
	// Output is the build output directory, relative to Dir. It must be a git
	// checkout whose remote points at the hosting repository. If empty, uses
	// the public directory.
	Output string
	// BuildCommand is the external site generator invocation. If empty,
	// "hexo generate" is used.
	BuildCommand []string
	// Remote is the git remote of the output checkout to push to. If empty,
	// uses origin.
	Remote string
	// Branch is the branch of Remote that serves the published site. If
	// empty, uses main.
	Branch string
	// ForceAdd determines whether staging overrides ignore rules, so that
	// generated paths matched by a global gitignore (the tag index directory,
	// usually) still get published.
	ForceAdd bool
	// Minify determines whether the output is minified before staging.
	Minify bool
	// Check determines whether the output is validated before staging.
	Check bool
	// VerifyURL, if set, is fetched after a successful push and must answer
	// with HTTP 200.
	VerifyURL string

	run        runFunc          // used in tests
	now        func() time.Time // used in tests
	httpClient *http.Client     // used in tests
}

// runFunc executes an external command in dir, streaming its output to the
// user. It must return a non-nil error if the command exits unsuccessfully.
type runFunc func(ctx context.Context, dir, name string, args ...string) error

func (c *Config) setDefaults() {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Output == "" {
		c.Output = "public"
	}
	if len(c.BuildCommand) == 0 {
		c.BuildCommand = []string{"hexo", "generate"}
	}
	if c.Remote == "" {
		c.Remote = "origin"
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.run == nil {
		c.run = runCommand
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.httpClient == nil {
		c.httpClient = request.DefaultClient
	}
}

func runCommand(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", strings.Join(append([]string{name}, args...), " "), err)
	}
	return nil
}

// Message resolves the commit message for a deploy. Words passed on the
// command line are joined verbatim with single spaces; with no words the
// message is "rebuilding site" followed by the current timestamp.
func Message(words []string, now time.Time) string {
	if len(words) == 0 {
		return "rebuilding site " + now.Format(time.UnixDate)
	}
	return strings.Join(words, " ")
}

// fileConfig is the subset of [Config] settable from deploy.json.
type fileConfig struct {
	Output       string   `json:"output"`
	BuildCommand []string `json:"build_command"`
	Remote       string   `json:"remote"`
	Branch       string   `json:"branch"`
	ForceAdd     *bool    `json:"force_add"`
	Minify       bool     `json:"minify"`
	Check        bool     `json:"check"`
	VerifyURL    string   `json:"verify_url"`
}

// LoadConfig returns the deploy configuration for the blog repository rooted
// at dir, reading deploy.json if it exists. Missing settings keep their
// defaults; force-adding ignored files is on unless the file turns it off.
func LoadConfig(dir string) (*Config, error) {
	c := &Config{Dir: dir, ForceAdd: true}

	b, err := os.ReadFile(filepath.Join(dir, "deploy.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	} else if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", errConfigInvalid, err)
	}

	c.Output = fc.Output
	c.BuildCommand = fc.BuildCommand
	c.Remote = fc.Remote
	c.Branch = fc.Branch
	if fc.ForceAdd != nil {
		c.ForceAdd = *fc.ForceAdd
	}
	c.Minify = fc.Minify
	c.Check = fc.Check
	c.VerifyURL = fc.VerifyURL

	return c, nil
}

// Run performs an all-or-nothing publish of freshly built site output,
// committing with the message resolved from words. See the package comment
// for the pipeline ordering and failure semantics.
func Run(ctx context.Context, c *Config, words ...string) error {
	c.setDefaults()

	h, err := hooks.Load(ctx, filepath.Join(c.Dir, hooks.File))
	if err != nil {
		return err
	}
	if err := h.PreDeploy(ctx); err != nil {
		return fmt.Errorf("pre_deploy hook: %w", err)
	}

	logger.Info(ctx, "building site", slog.String("command", strings.Join(c.BuildCommand, " ")))
	if err := c.run(ctx, c.Dir, c.BuildCommand[0], c.BuildCommand[1:]...); err != nil {
		return fmt.Errorf("build: %w", err)
	}

	out, err := c.outputDir()
	if err != nil {
		return err
	}

	if c.Minify {
		logger.Info(ctx, "minifying output", slog.String("dir", out))
		if err := minify.Dir(out); err != nil {
			return fmt.Errorf("minify: %w", err)
		}
	}
	if c.Check {
		logger.Info(ctx, "checking output", slog.String("dir", out))
		if problems := check.Output(out); len(problems) > 0 {
			return fmt.Errorf("%w:\n%w", errCheckFailed, errors.Join(problems...))
		}
	}

	stage := []string{"add", "--all"}
	if c.ForceAdd {
		stage = append(stage, "--force")
	}
	if err := c.run(ctx, out, "git", stage...); err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	msg := Message(words, c.now())
	if err := c.run(ctx, out, "git", "commit", "-m", msg); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logger.Info(ctx, "pushing",
		slog.String("remote", c.Remote),
		slog.String("branch", c.Branch),
	)
	if err := c.run(ctx, out, "git", "push", c.Remote, c.Branch); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	if err := h.PostDeploy(ctx); err != nil {
		return fmt.Errorf("post_deploy hook: %w", err)
	}

	if c.VerifyURL != "" {
		if err := c.verify(ctx); err != nil {
			return err
		}
	}

	return nil
}

// outputDir resolves the output checkout and verifies the deploy
// preconditions on it. All git commands of the later steps run with their
// working directory set there.
func (c *Config) outputDir() (string, error) {
	out := filepath.Join(c.Dir, c.Output)
	fi, err := os.Stat(out)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", out, errOutputMissing)
	} else if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s: %w", out, errOutputMissing)
	}
	// A submodule checkout has a .git file, a plain clone a .git directory.
	// Either will do.
	if _, err := os.Stat(filepath.Join(out, ".git")); err != nil {
		return "", fmt.Errorf("%s: %w", out, errOutputNotRepo)
	}
	return out, nil
}

func (c *Config) verify(ctx context.Context) error {
	logger.Info(ctx, "verifying site", slog.String("url", c.VerifyURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.VerifyURL, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errVerifyFailed, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: wanted 200, got %d", errVerifyFailed, c.VerifyURL, res.StatusCode)
	}
	return nil
}
