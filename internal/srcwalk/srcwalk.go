// Package srcwalk walks a consumer repository and yields candidate source
// files for call-site scanning in deterministic (sorted) order.
//
// Test files, virtualenvs, dependency-manager directories and VCS metadata
// are excluded: call sites inside tests or vendored code are not consumer
// usage. A minimal .gitignore at the repo root is honored as well.
package srcwalk

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// File is a candidate source file, with a repo-relative forward-slash path.
type File struct {
	RelPath string
	AbsPath string
}

// Directory names never descended into.
var skipDirs = map[string]struct{}{
	".git": {}, ".hg": {}, ".svn": {},
	".venv": {}, "venv": {}, "env": {}, "__pycache__": {},
	"node_modules": {}, "vendor": {}, "site-packages": {},
	".idea": {}, ".vscode": {}, "dist": {}, "build": {},
	".bridge": {},
}

// Options controls a walk. Exts filters by lowercase extension; empty means
// every regular file. IncludeTests keeps files that look like tests.
type Options struct {
	Exts         map[string]struct{}
	IncludeTests bool
}

// PythonSource is the default option set for consumer call-site scanning.
func PythonSource() Options {
	return Options{Exts: map[string]struct{}{".py": {}}}
}

// Collect walks root and returns matching files sorted by relative path.
func Collect(root string, opt Options) ([]File, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	ignore := loadIgnore(filepath.Join(rootAbs, ".gitignore"))

	var files []File
	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, rerr := filepath.Rel(rootAbs, path)
		if rerr != nil || strings.HasPrefix(rel, "..") {
			return nil
		}
		rel = filepath.ToSlash(rel)
		base := filepath.Base(path)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if _, skip := skipDirs[base]; skip {
				return filepath.SkipDir
			}
			if ignore.match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(opt.Exts) > 0 {
			if _, ok := opt.Exts[strings.ToLower(filepath.Ext(base))]; !ok {
				return nil
			}
		}
		if !opt.IncludeTests && looksLikeTest(rel) {
			return nil
		}
		if ignore.match(rel, false) {
			return nil
		}
		files = append(files, File{RelPath: rel, AbsPath: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// looksLikeTest matches the common Python test layouts: test_*.py, *_test.py,
// conftest.py and anything under a tests/ directory.
func looksLikeTest(rel string) bool {
	base := filepath.Base(rel)
	if base == "conftest.py" ||
		strings.HasPrefix(base, "test_") ||
		strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), "_test") {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "tests" || seg == "test" {
			return true
		}
	}
	return false
}

// ---------------- minimal .gitignore ----------------

type ignoreRule struct {
	neg      bool
	dirOnly  bool
	anchored bool
	rx       *regexp.Regexp
}

type ignoreSet struct {
	rules []ignoreRule
}

// loadIgnore parses a .gitignore with minimal semantics: comments and blanks
// skipped, '!' negation, leading '/' anchoring, trailing '/' directory-only,
// '*'/'?' shell globs that do not cross '/', '**' crossing directories.
// A missing or unreadable file yields an empty set.
func loadIgnore(path string) ignoreSet {
	f, err := os.Open(path)
	if err != nil {
		return ignoreSet{}
	}
	defer f.Close()

	var set ignoreSet
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		neg := strings.HasPrefix(line, "!")
		if neg {
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
		}
		dirOnly := strings.HasSuffix(line, "/")
		line = strings.TrimSuffix(line, "/")
		anchored := strings.HasPrefix(line, "/")
		line = strings.TrimPrefix(line, "/")

		set.rules = append(set.rules, ignoreRule{
			neg:      neg,
			dirOnly:  dirOnly,
			anchored: anchored,
			rx:       compileGlob(line, anchored),
		})
	}
	return set
}

func compileGlob(glob string, anchored bool) *regexp.Regexp {
	esc := regexp.QuoteMeta(glob)
	esc = strings.ReplaceAll(esc, `\*\*`, "\x00")
	esc = strings.ReplaceAll(esc, `\*`, "[^/]*")
	esc = strings.ReplaceAll(esc, `\?`, "[^/]")
	esc = strings.ReplaceAll(esc, "\x00", ".*")
	if anchored {
		return regexp.MustCompile("^" + esc + "$")
	}
	return regexp.MustCompile("(^|.*/)" + esc + "$")
}

// match applies the rules in order; the last matching rule wins, as in git.
func (s ignoreSet) match(rel string, isDir bool) bool {
	ignored := false
	for _, r := range s.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.rx.MatchString(rel) {
			ignored = !r.neg
		}
	}
	return ignored
}
