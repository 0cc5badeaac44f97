// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package hooks runs optional Starlark deploy hooks.

A deploy.star file at the repository root may define pre_deploy and
post_deploy functions; they run before the site is built and after it
is pushed. Hooks can shell out with the run builtin:

	def pre_deploy():
	    run("npm", "run", "css")

	def post_deploy():
	    run("curl", "-s", "https://example.com/purge-cache")

A hook failure aborts the deploy, same as any other step.
*/
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// File is the hook file name, relative to the repository root.
const File = "deploy.star"

// Hooks is a loaded hook file. The zero Hooks (and nil) runs nothing.
type Hooks struct {
	dir       string
	ctx       context.Context // of the current Load or hook call
	thread    *starlark.Thread
	pre, post starlark.Callable
}

// Load reads and executes the hook file at path, returning the hooks it
// defines. A missing file is not an error: Load returns nil, and calling
// [Hooks.PreDeploy] or [Hooks.PostDeploy] on a nil Hooks does nothing.
func Load(ctx context.Context, path string) (*Hooks, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	h := &Hooks{dir: filepath.Dir(path), ctx: ctx}
	h.thread = &starlark.Thread{
		Name:  "deploy",
		Print: func(_ *starlark.Thread, msg string) { fmt.Fprintln(os.Stderr, msg) },
	}

	predeclared := starlark.StringDict{
		"run": starlark.NewBuiltin("run", h.runBuiltin),
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, h.thread, path, src, predeclared)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if h.pre, err = hookFunc(globals, "pre_deploy"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if h.post, err = hookFunc(globals, "post_deploy"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return h, nil
}

func hookFunc(globals starlark.StringDict, name string) (starlark.Callable, error) {
	v, ok := globals[name]
	if !ok {
		return nil, nil
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", name)
	}
	return fn, nil
}

// PreDeploy runs the pre_deploy hook, if any.
func (h *Hooks) PreDeploy(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return h.call(ctx, h.pre)
}

// PostDeploy runs the post_deploy hook, if any.
func (h *Hooks) PostDeploy(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return h.call(ctx, h.post)
}

func (h *Hooks) call(ctx context.Context, fn starlark.Callable) error {
	if fn == nil {
		return nil
	}
	h.ctx = ctx
	_, err := starlark.Call(h.thread, fn, nil, nil)
	return err
}

// runBuiltin implements the run builtin: it executes a command in the
// repository root, streaming its output to the user. The command is bound
// to the deploy context and is killed when the deploy is canceled.
func (h *Hooks) runBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, errors.New("run: unexpected keyword arguments")
	}
	if len(args) == 0 {
		return nil, errors.New("run: command name required")
	}

	argv := make([]string, len(args))
	for i, arg := range args {
		s, ok := starlark.AsString(arg)
		if !ok {
			return nil, fmt.Errorf("run: argument %d is not a string", i+1)
		}
		argv[i] = s
	}

	cmd := exec.CommandContext(h.ctx, argv[0], argv[1:]...)
	cmd.Dir = h.dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run: %s failed: %w", strings.Join(argv, " "), err)
	}
	return starlark.None, nil
}
