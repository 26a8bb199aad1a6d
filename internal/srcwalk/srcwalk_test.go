package srcwalk

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, paths map[string]string) {
	t.Helper()
	for rel, body := range paths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func relPaths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestCollectFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/zz.py":              "",
		"app/api.py":             "",
		"app/readme.md":          "",
		"tests/test_api.py":      "",
		"app/conftest.py":        "",
		"app/util_test.py":       "",
		".venv/lib/site.py":      "",
		"node_modules/x/y.py":    "",
		"__pycache__/api.pyc":    "",
		".bridge/contracts/a.py": "",
	})

	files, err := Collect(root, PythonSource())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	got := relPaths(files)
	want := []string{"app/api.py", "app/zz.py"}
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("files = %v, want %v", got, want)
		}
	}
}

func TestCollectIncludeTests(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/api.py":        "",
		"tests/test_api.py": "",
	})
	files, err := Collect(root, Options{Exts: map[string]struct{}{".py": {}}, IncludeTests: true})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected tests included: %v", relPaths(files))
	}
}

func TestCollectHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":        "generated/\n*.gen.py\n!keep.gen.py\n",
		"app/api.py":        "",
		"generated/x.py":    "",
		"app/model.gen.py":  "",
		"app/keep.gen.py":   "",
		"deep/generated.py": "",
	})
	files, err := Collect(root, PythonSource())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	got := relPaths(files)
	want := []string{"app/api.py", "app/keep.gen.py", "deep/generated.py"}
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("files = %v, want %v", got, want)
		}
	}
}

func TestLooksLikeTest(t *testing.T) {
	cases := []struct {
		rel  string
		want bool
	}{
		{"tests/helper.py", true},
		{"test/x.py", true},
		{"app/test_api.py", true},
		{"app/api_test.py", true},
		{"app/conftest.py", true},
		{"app/contest.py", false},
		{"app/latest.py", false},
	}
	for _, c := range cases {
		if got := looksLikeTest(c.rel); got != c.want {
			t.Fatalf("looksLikeTest(%q) = %v, want %v", c.rel, got, c.want)
		}
	}
}
