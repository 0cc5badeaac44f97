// © 2025 Artem Rakov. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package deploy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/base/testutil"
)

func TestMessage(t *testing.T) {
	now := time.Date(2023, time.December, 8, 10, 30, 0, 0, time.UTC)

	cases := map[string]struct {
		words []string
		want  string
	}{
		"no words": {
			words: nil,
			want:  "rebuilding site Fri Dec  8 10:30:00 UTC 2023",
		},
		"single word": {
			words: []string{"typo"},
			want:  "typo",
		},
		"words joined verbatim": {
			words: []string{"Fix", "typo"},
			want:  "Fix typo",
		},
		"words are not reformatted": {
			words: []string{"rebuilding", "site"},
			want:  "rebuilding site",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, Message(tc.words, now), tc.want)
		})
	}
}

// testConfig returns a Config rooted at a temporary blog repository whose
// output directory is a fake git checkout, with a recording command runner
// installed. failOn, if non-empty, makes the runner fail the matching step.
func testConfig(t *testing.T, failOn string) (*Config, *[]string) {
	t.Helper()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "public", ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := &Config{
		Dir:      dir,
		ForceAdd: true,
		now: func() time.Time {
			return time.Date(2023, time.December, 8, 10, 30, 0, 0, time.UTC)
		},
	}

	calls := new([]string)
	c.run = func(_ context.Context, cmdDir, name string, args ...string) error {
		cmd := strings.Join(append([]string{name}, args...), " ")

		// Commands of the publish steps must run inside the output checkout.
		if name == "git" && cmdDir != filepath.Join(dir, "public") {
			t.Errorf("%q ran in %q, want the output checkout", cmd, cmdDir)
		}
		if name != "git" && cmdDir != dir {
			t.Errorf("%q ran in %q, want the repo root", cmd, cmdDir)
		}

		*calls = append(*calls, cmd)
		if failOn != "" && strings.Contains(cmd, failOn) {
			return errors.New(failOn + " failed")
		}
		return nil
	}

	return c, calls
}

func TestRunOrder(t *testing.T) {
	c, calls := testConfig(t, "")

	if err := Run(context.Background(), c, "Fix", "typo"); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, *calls, []string{
		"hexo generate",
		"git add --all --force",
		"git commit -m Fix typo",
		"git push origin main",
	})
}

func TestRunDefaultMessage(t *testing.T) {
	c, calls := testConfig(t, "")

	if err := Run(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, (*calls)[2], "git commit -m rebuilding site Fri Dec  8 10:30:00 UTC 2023")
}

func TestRunNoForceAdd(t *testing.T) {
	c, calls := testConfig(t, "")
	c.ForceAdd = false

	if err := Run(context.Background(), c, "test"); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, (*calls)[1], "git add --all")
}

func TestRunStopsAtFailingStep(t *testing.T) {
	cases := map[string]struct {
		failOn    string
		wantCalls int
	}{
		"build failure prevents staging": {failOn: "hexo", wantCalls: 1},
		"stage failure prevents commit":  {failOn: "add", wantCalls: 2},
		"commit failure prevents push":   {failOn: "commit", wantCalls: 3},
		"push failure is fatal":          {failOn: "push", wantCalls: 4},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, calls := testConfig(t, tc.failOn)

			err := Run(context.Background(), c, "test")
			if err == nil {
				t.Fatal("must fail")
			}
			if !strings.Contains(err.Error(), tc.failOn) {
				t.Fatalf("error %q doesn't mention the failing step %q", err, tc.failOn)
			}
			if len(*calls) != tc.wantCalls {
				t.Fatalf("wanted %d commands to run, got %d: %v", tc.wantCalls, len(*calls), *calls)
			}
		})
	}
}

func TestRunOutputMissing(t *testing.T) {
	c, calls := testConfig(t, "")
	if err := os.RemoveAll(filepath.Join(c.Dir, "public")); err != nil {
		t.Fatal(err)
	}

	err := Run(context.Background(), c, "test")
	if !errors.Is(err, errOutputMissing) {
		t.Fatalf("got error: %v", err)
	}
	// Only the build ran; nothing was staged.
	testutil.AssertEqual(t, len(*calls), 1)
}

func TestRunOutputNotCheckout(t *testing.T) {
	c, _ := testConfig(t, "")
	if err := os.RemoveAll(filepath.Join(c.Dir, "public", ".git")); err != nil {
		t.Fatal(err)
	}

	err := Run(context.Background(), c, "test")
	if !errors.Is(err, errOutputNotRepo) {
		t.Fatalf("got error: %v", err)
	}
}

func TestRunFailingPreDeployHook(t *testing.T) {
	c, calls := testConfig(t, "")
	hook := "def pre_deploy():\n    fail(\"not today\")\n"
	if err := os.WriteFile(filepath.Join(c.Dir, "deploy.star"), []byte(hook), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Run(context.Background(), c, "test")
	if err == nil {
		t.Fatal("must fail")
	}
	// The hook runs before the build, so nothing else happened.
	testutil.AssertEqual(t, len(*calls), 0)
}

func TestRunVerify(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c, _ := testConfig(t, "")
	c.VerifyURL = srv.URL
	if err := Run(context.Background(), c, "test"); err != nil {
		t.Fatal(err)
	}

	status = http.StatusBadGateway
	c, _ = testConfig(t, "")
	c.VerifyURL = srv.URL
	err := Run(context.Background(), c, "test")
	if !errors.Is(err, errVerifyFailed) {
		t.Fatalf("got error: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("no config file", func(t *testing.T) {
		c, err := LoadConfig(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, c.ForceAdd, true)
	})

	t.Run("full config file", func(t *testing.T) {
		dir := t.TempDir()
		const conf = `{
  "output": "_site",
  "build_command": ["jekyll", "build"],
  "remote": "pages",
  "branch": "gh-pages",
  "force_add": false,
  "minify": true,
  "verify_url": "https://blog.example.com"
}`
		if err := os.WriteFile(filepath.Join(dir, "deploy.json"), []byte(conf), 0o644); err != nil {
			t.Fatal(err)
		}

		c, err := LoadConfig(dir)
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, c.Output, "_site")
		testutil.AssertEqual(t, c.BuildCommand, []string{"jekyll", "build"})
		testutil.AssertEqual(t, c.Remote, "pages")
		testutil.AssertEqual(t, c.Branch, "gh-pages")
		testutil.AssertEqual(t, c.ForceAdd, false)
		testutil.AssertEqual(t, c.Minify, true)
		testutil.AssertEqual(t, c.VerifyURL, "https://blog.example.com")
	})

	t.Run("invalid config file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "deploy.json"), []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}

		if _, err := LoadConfig(dir); !errors.Is(err, errConfigInvalid) {
			t.Fatalf("got error: %v", err)
		}
	})
}

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.setDefaults()

	testutil.AssertEqual(t, c.Output, "public")
	testutil.AssertEqual(t, c.BuildCommand, []string{"hexo", "generate"})
	testutil.AssertEqual(t, c.Remote, "origin")
	testutil.AssertEqual(t, c.Branch, "main")
}
