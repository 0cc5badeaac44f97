// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"

	"go.astrophena.name/base/cli"

	"go.rakov.me/blog/internal/deploy"
	"go.rakov.me/blog/internal/devtools/internal"
	"go.rakov.me/blog/internal/preview"
)

func main() { cli.Main(new(app)) }

type app struct {
	listen string
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.listen, "listen", "localhost:4000", "Listen on `host:port`.")
}

func (a *app) Run(ctx context.Context) error {
	internal.EnsureRoot()

	// Preview reuses the deploy settings, so a custom generator or output
	// directory in deploy.json applies here too.
	dc, err := deploy.LoadConfig(".")
	if err != nil {
		return err
	}

	return preview.Serve(ctx, &preview.Config{
		Dir:          dc.Dir,
		Output:       dc.Output,
		BuildCommand: dc.BuildCommand,
	}, a.listen)
}
