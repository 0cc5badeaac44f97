// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Check lints the blog content and, optionally, the built site.

# Usage

	$ go tool check [flags]

It parses the front matter of every post under the content directory
(default "source") and verifies that relative links point at existing
files. With -output it additionally runs the publish gate over a built
site: HTML parses, internal references resolve, feed.xml is
well-formed. All problems are reported in one run.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
