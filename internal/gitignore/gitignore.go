package gitignore

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled patterns. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	source   string
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	base     string // directory the pattern is scoped to, "" for the root
}

// New creates an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern adds a root-scoped pattern.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase adds a pattern that only applies below base.
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	r, ok := compile(pattern, filepath.ToSlash(strings.Trim(base, "/")))
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromReader adds one pattern per line of r.
func (m *Matcher) AddFromReader(r io.Reader, base string) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m.AddPatternWithBase(sc.Text(), base)
	}
	return sc.Err()
}

// AddFromFile reads patterns from a .gitignore file scoped to base.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open gitignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := m.AddFromReader(f, base); err != nil {
		return fmt.Errorf("failed to read gitignore file: %w", err)
	}
	return nil
}

// LoadTree adds every .gitignore found below root. Directories already
// ignored by earlier rules are not descended into.
func (m *Matcher) LoadTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && m.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}

		base := filepath.ToSlash(filepath.Dir(rel))
		if base == "." {
			base = ""
		}
		return m.AddFromFile(path, base)
	})
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether path (relative, slash or OS separated) is ignored.
// The last matching rule wins, so negations can re-include paths.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.Trim(filepath.ToSlash(path), "/")
	if path == "" || path == "." {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for i := range m.rules {
		if m.rules[i].matches(path, isDir) {
			ignored = !m.rules[i].negate
		}
	}
	return ignored
}

func (r *rule) matches(path string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(path, r.base+"/") {
			return false
		}
		path = path[len(r.base)+1:]
	}

	parts := strings.Split(path, "/")
	last := len(parts) - 1

	for i := range parts {
		componentIsDir := i < last || isDir
		if r.dirOnly && !componentIsDir {
			continue
		}

		candidate := parts[i]
		if r.anchored {
			candidate = strings.Join(parts[:i+1], "/")
		}
		if r.re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// compile turns one .gitignore line into a rule. ok is false for blanks and comments.
func compile(line, base string) (rule, bool) {
	escapedSpace := strings.HasSuffix(line, `\ `)
	p := strings.TrimSpace(line)
	if escapedSpace {
		p = strings.TrimSuffix(p, `\`) + " "
	}
	if p == "" || strings.HasPrefix(p, "#") {
		return rule{}, false
	}

	r := rule{source: line, base: base}
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}

	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		r.anchored = true
		p = strings.TrimLeft(p, "/")
	}
	if strings.Contains(p, "/") {
		r.anchored = true
	}
	if p == "" {
		return rule{}, false
	}

	re, err := regexp.Compile("^" + translate(p) + "$")
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

// translate converts glob syntax to a regular expression body.
func translate(glob string) string {
	var sb strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				atStart := i == 0 || glob[i-1] == '/'
				if atStart && i+2 < len(glob) && glob[i+2] == '/' {
					sb.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				if atStart && i+2 == len(glob) {
					sb.WriteString(".*")
					i++
					continue
				}
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
