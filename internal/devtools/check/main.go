// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"go.astrophena.name/base/cli"
	"go.astrophena.name/base/logger"

	"go.rakov.me/blog/internal/check"
	"go.rakov.me/blog/internal/content"
	"go.rakov.me/blog/internal/devtools/internal"
)

func main() { cli.Main(new(app)) }

type app struct {
	content string
	output  string
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.content, "content", "source", "Lint posts in `dir`.")
	fs.StringVar(&a.output, "output", "", "Also validate the built site in `dir`.")
}

func (a *app) Run(ctx context.Context) error {
	internal.EnsureRoot()

	problems := content.Lint(a.content)
	if a.output != "" {
		problems = append(problems, check.Output(a.output)...)
	}

	if len(problems) == 0 {
		return nil
	}
	for _, p := range problems {
		logger.Error(ctx, "problem found", slog.Any("err", p))
	}
	return fmt.Errorf("found %d problems", len(problems))
}
