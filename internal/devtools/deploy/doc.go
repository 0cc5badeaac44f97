// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Deploy rebuilds the site and publishes it.

It runs the site generator, then stages, commits and pushes everything
in the output checkout to the hosting repository. The steps run in a
fixed order and the first failure aborts the deploy; whatever state the
failing step left behind is yours to inspect.

# Usage

	$ go tool deploy [flags] [message words...]

The message words, joined with spaces, become the commit message. With
no words the message is "rebuilding site" plus the current timestamp.

Settings come from deploy.json at the repository root, if present:

	{
	  "output": "public",
	  "build_command": ["hexo", "generate"],
	  "remote": "origin",
	  "branch": "main",
	  "force_add": true
	}

If a deploy.star file exists at the repository root, its pre_deploy and
post_deploy functions run around the pipeline; see the hooks package.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
