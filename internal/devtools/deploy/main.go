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
)

func main() { cli.Main(new(app)) }

type app struct {
	fs     *flag.FlagSet
	force  bool
	minify bool
	check  bool
	verify string
}

func (a *app) Flags(fs *flag.FlagSet) {
	a.fs = fs
	fs.BoolVar(&a.force, "force", true, "Stage output with ignore rules overridden.")
	fs.BoolVar(&a.minify, "minify", false, "Minify the output before publishing.")
	fs.BoolVar(&a.check, "check", false, "Validate the output before publishing.")
	fs.StringVar(&a.verify, "verify", "", "After pushing, fetch `url` and require HTTP 200.")
}

// apply overlays the flags onto the configuration read from deploy.json.
// The -force flag has a non-zero default, so it wins only when actually
// passed; otherwise the file setting stands.
func (a *app) apply(c *deploy.Config) {
	a.fs.Visit(func(f *flag.Flag) {
		if f.Name == "force" {
			c.ForceAdd = a.force
		}
	})
	if a.minify {
		c.Minify = true
	}
	if a.check {
		c.Check = true
	}
	if a.verify != "" {
		c.VerifyURL = a.verify
	}
}

func (a *app) Run(ctx context.Context) error {
	internal.EnsureRoot()
	env := cli.GetEnv(ctx)

	c, err := deploy.LoadConfig(".")
	if err != nil {
		return err
	}
	a.apply(c)

	return deploy.Run(ctx, c, env.Args...)
}
