// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package check validates built site output before it is published.
//
// Unlike the deploy pipeline itself, which stops at the first failing
// step, the gate reports every problem it finds, so one run is enough
// to fix up a broken build.
package check

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Possible errors, used in tests.
var (
	errHTMLParse  = errors.New("failed to parse HTML")
	errRefBroken  = errors.New("reference does not resolve within output")
	errFeedBroken = errors.New("feed is not well-formed XML")
)

// Output walks the built site at dir and reports all problems found: pages
// that don't parse as HTML, internal references that point outside the
// output tree or at files that don't exist, and a feed.xml that isn't
// well-formed. An empty result means the output is fit to publish.
func Output(dir string) []error {
	var problems []error

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".html" {
			return nil
		}
		problems = append(problems, checkPage(dir, p)...)
		return nil
	})
	if err != nil {
		problems = append(problems, err)
	}

	if _, err := os.Stat(filepath.Join(dir, "feed.xml")); err == nil {
		if err := checkFeed(filepath.Join(dir, "feed.xml")); err != nil {
			problems = append(problems, err)
		}
	}

	return problems
}

func checkPage(dir, page string) []error {
	f, err := os.Open(page)
	if err != nil {
		return []error{err}
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return []error{fmt.Errorf("%s: %w: %v", page, errHTMLParse, err)}
	}

	var problems []error
	seen := make(map[string]bool)
	checkRef := func(ref string) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		if err := resolveRef(dir, page, ref); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w: %s", page, errRefBroken, ref))
		}
	}

	doc.Find("a[href], link[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			checkRef(href)
		}
	})
	doc.Find("img[src], script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			checkRef(src)
		}
	})

	return problems
}

// resolveRef checks that ref, as found on page, points at a file present in
// the output tree at dir. External URLs and bare fragments always resolve.
func resolveRef(dir, page, ref string) error {
	u, err := url.Parse(ref)
	if err != nil {
		return err
	}
	if u.Scheme != "" || u.Host != "" || u.Path == "" {
		return nil
	}

	var target string
	if strings.HasPrefix(u.Path, "/") {
		target = filepath.Join(dir, filepath.FromSlash(u.Path))
	} else {
		target = filepath.Join(filepath.Dir(page), filepath.FromSlash(u.Path))
	}

	// Keep references from escaping the output tree.
	rel, err := filepath.Rel(dir, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s escapes %s", ref, dir)
	}

	fi, err := os.Stat(target)
	if err == nil {
		if fi.IsDir() {
			// Directory references are served as their index page.
			if _, err := os.Stat(filepath.Join(target, "index.html")); err != nil {
				return err
			}
		}
		return nil
	}

	// Extensionless references are served from the matching .html file.
	if path.Ext(u.Path) == "" {
		if _, err := os.Stat(target + ".html"); err == nil {
			return nil
		}
	}

	return err
}

func checkFeed(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	d := xml.NewDecoder(f)
	for {
		if _, err := d.Token(); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%s: %w: %v", path, errFeedBroken, err)
		}
	}
}
