// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package minify shrinks built site output in place before publishing.
package minify

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	mjson "github.com/tdewolff/minify/v2/json"
)

type min struct {
	m *minify.M
}

func newMin() *min {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepDefaultAttrVals: true,
		KeepEndTags:         true,
	})
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("application/json", mjson.Minify)

	return &min{m: m}
}

func (m *min) bytes(mediaType string, b []byte) ([]byte, error) {
	return m.m.Bytes(mediaType, b)
}

func mediaType(path string) string {
	switch filepath.Ext(path) {
	case ".css":
		return "text/css"
	case ".html":
		return "text/html"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	}
	return ""
}

// Dir rewrites every CSS, HTML, JavaScript and JSON file under dir with its
// minified form. Other files are left untouched.
func Dir(dir string) error {
	m := newMin()
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		mt := mediaType(path)
		if mt == "" {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		minified, err := m.bytes(mt, buf)
		if err != nil {
			return err
		}
		return os.WriteFile(path, minified, fi.Mode().Perm())
	})
}
