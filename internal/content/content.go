// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package content models the blog posts.

A post is a Markdown file with YAML front matter:

	---
	title: Hello, world!
	date: 2025-06-01
	tags: [go, blog]
	---

The site generator owns rendering; this package only parses posts far
enough to lint them before a deploy, so that broken front matter or a
dead relative link fails the publish instead of going live.
*/
package content

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"rsc.io/markdown"
)

// Possible errors, used in tests.
var (
	errFrontmatterParse = errors.New("failed to parse frontmatter")
	errTitleMissing     = errors.New("missing title")
	errDateInvalid      = errors.New("invalid date")
	errLinkBroken       = errors.New("broken link")
)

const dateLayout = "2006-01-02"

// Post represents a single content file. The exported fields are the front
// matter fields.
type Post struct {
	Title   string   `yaml:"title"`   // title: Post title, required.
	Date    string   `yaml:"date"`    // date: Publication date in the 'year-month-day' format, e.g. 2006-01-02, optional.
	Tags    []string `yaml:"tags"`    // tags: Post tags, optional.
	Draft   bool     `yaml:"draft"`   // draft: Excluded from production builds by the generator, false by default.
	Summary string   `yaml:"summary"` // summary: Post summary, optional.

	path string // path to the post source
	body []byte // post contents without front matter
}

// Parse reads a post from r. The path is used in error messages and for
// resolving relative links later.
func Parse(path string, r io.Reader) (*Post, error) {
	p := &Post{path: path}

	body, err := frontmatter.Parse(r, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, errFrontmatterParse, err)
	}
	p.body = body

	if p.Title == "" {
		return nil, fmt.Errorf("%s: %w", path, errTitleMissing)
	}
	if p.Date != "" {
		if _, err := time.Parse(dateLayout, p.Date); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", path, errDateInvalid, err)
		}
	}

	return p, nil
}

// ParseFile reads a post from the file at path.
func ParseFile(path string) (*Post, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(path, f)
}

// Links returns the link and image destinations of the post body, in
// document order.
func (p *Post) Links() []string {
	doc := parser().Parse(string(p.body))
	var links []string
	for _, b := range doc.Blocks {
		links = appendBlockLinks(links, b)
	}
	return links
}

func parser() *markdown.Parser {
	return &markdown.Parser{
		HeadingID:     true,
		Strikethrough: true,
		TaskList:      true,
		Table:         true,
		Footnote:      true,
	}
}

func appendBlockLinks(links []string, b markdown.Block) []string {
	switch b := b.(type) {
	case *markdown.Paragraph:
		links = appendInlineLinks(links, b.Text.Inline)
	case *markdown.Heading:
		links = appendInlineLinks(links, b.Text.Inline)
	case *markdown.Quote:
		for _, bb := range b.Blocks {
			links = appendBlockLinks(links, bb)
		}
	case *markdown.List:
		for _, bb := range b.Items {
			links = appendBlockLinks(links, bb)
		}
	case *markdown.Item:
		for _, bb := range b.Blocks {
			links = appendBlockLinks(links, bb)
		}
	}
	return links
}

func appendInlineLinks(links []string, inlines []markdown.Inline) []string {
	for _, in := range inlines {
		switch in := in.(type) {
		case *markdown.Link:
			links = append(links, in.URL)
			links = appendInlineLinks(links, in.Inner)
		case *markdown.Image:
			links = append(links, in.URL)
		case *markdown.Strong:
			links = appendInlineLinks(links, in.Inner)
		case *markdown.Emph:
			links = appendInlineLinks(links, in.Inner)
		case *markdown.Del:
			links = appendInlineLinks(links, in.Inner)
		}
	}
	return links
}

// Lint parses every Markdown file under dir and reports all problems found:
// unparseable or incomplete front matter and relative links that don't
// resolve to an existing file. An empty result means the content is fit to
// publish.
func Lint(dir string) []error {
	var problems []error

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isIgnorable(path) || filepath.Ext(path) != ".md" {
			return nil
		}

		p, err := ParseFile(path)
		if err != nil {
			problems = append(problems, err)
			return nil
		}

		for _, link := range p.Links() {
			if !isRelative(link) {
				continue
			}
			target := link
			if i := strings.IndexAny(target, "#?"); i != -1 {
				target = target[:i]
			}
			if target == "" {
				continue
			}
			if _, err := os.Stat(filepath.Join(filepath.Dir(path), filepath.FromSlash(target))); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w: %s", path, errLinkBroken, link))
			}
		}

		return nil
	})
	if err != nil {
		problems = append(problems, err)
	}

	return problems
}

// isRelative reports whether link points somewhere inside the content tree.
// Full URLs, fragments and root-relative paths (resolved by the generator
// against the site root, not the source tree) don't qualify.
func isRelative(link string) bool {
	if strings.HasPrefix(link, "#") || strings.HasPrefix(link, "/") {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

func isIgnorable(path string) bool {
	// Ignore files that look like Vim backups.
	return strings.HasSuffix(path, "~")
}
