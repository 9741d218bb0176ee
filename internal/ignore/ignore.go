package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Files are read in order, patterns from later files take precedence
var Files = []string{".gitignore", ".ignore"}

// Matcher answers whether a path is excluded by the ignore files found in
// the root directory it was built for.
// A Matcher is immutable after New and safe for concurrent use.
type Matcher struct {
	root  string
	rules []rule
}

// rule is one pattern line. Negation is applied by the Matcher so every rule
// can be checked on its own.
type rule struct {
	negate bool
	// contents is set for patterns such as "build/*", which match what is
	// inside a directory but never the directory itself
	contents bool
	pattern  *gitignore.GitIgnore
}

func compile(line string) (rule, bool) {
	line = strings.Trim(strings.TrimRight(line, "\r"), " ")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	r := rule{}
	if line[0] == '!' {
		r.negate = true
		line = line[1:]
	}

	// "dir/**" excludes the same subtree as "dir/*"
	if base := strings.TrimSuffix(line, "/**"); base != line && base != "" {
		line = base + "/*"
	}
	r.contents = strings.HasSuffix(line, "/*") && len(line) > 2

	r.pattern = gitignore.CompileIgnoreLines(line)
	return r, true
}

// matches applies every rule in order, the last one to match wins
func (m *Matcher) matches(rel string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		subject := rel
		// A content rule is tested against the bare directory path, which it
		// only matches for directories nested inside the one it names
		if isDir && !r.contents {
			subject += "/"
		}
		if r.pattern.MatchesPath(subject) {
			ignored = !r.negate
		}
	}
	return ignored
}

// New loads the ignore files from root. Missing files are skipped, so a
// directory without any yields a matcher that ignores nothing.
func New(root string) (*Matcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve ignore root %s: %w", root, err)
	}

	lines := make([]string, 0)
	for _, name := range Files {
		fileLines, err := readLines(filepath.Join(abs, name))
		if err != nil {
			return nil, err
		}
		lines = append(lines, fileLines...)
	}

	rules := make([]rule, 0, len(lines))
	for _, line := range lines {
		if r, ok := compile(line); ok {
			rules = append(rules, r)
		}
	}

	return &Matcher{
		root:  abs,
		rules: rules,
	}, nil
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	defer file.Close()

	lines := make([]string, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return lines, nil
}

// Len is the number of patterns loaded
func (m *Matcher) Len() int {
	return len(m.rules)
}

// IsIgnored reports whether path is excluded. Every parent directory below
// the root is checked first; once a directory is excluded nothing below it
// can be re-included, as with git.
// Paths outside the root are never ignored.
func (m *Matcher) IsIgnored(path string, isDir bool) bool {
	if len(m.rules) == 0 {
		return false
	}

	rel, ok := m.relative(path)
	if !ok {
		return false
	}

	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if m.matches(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}

	return m.matches(rel, isDir)
}

// relative converts path into a slash separated path relative to the root
func (m *Matcher) relative(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", false
		}
		path = abs
	}

	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
