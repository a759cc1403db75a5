package chunk

import (
	"strings"
)

// boundary marks the zero-based line where a logical unit starts.
type boundary struct {
	line    int
	heading string
}

// markerBoundaries scans lines for the language's regex markers.
// Runs of consecutive marker lines (decorators, attributes, annotations
// followed by the declaration) collapse to the first line of the run.
func markerBoundaries(spec *languageSpec, lines []string) []boundary {
	if spec.underlined {
		return underlineBoundaries(lines)
	}
	if len(spec.markers) == 0 {
		return nil
	}

	var out []boundary
	inFence := false
	prevMarker := false
	for i, raw := range lines {
		line := trimEOL(raw)
		if spec.fenced && fenceLine.MatchString(line) {
			inFence = !inFence
			prevMarker = false
			continue
		}
		if inFence {
			continue
		}

		matched, heading := matchMarkers(spec, line)
		if !matched {
			prevMarker = false
			continue
		}
		if prevMarker {
			continue
		}
		prevMarker = true
		out = append(out, boundary{
			line:    extendOverComments(spec, lines, i),
			heading: heading,
		})
	}
	return dedupe(out)
}

func matchMarkers(spec *languageSpec, line string) (bool, string) {
	for _, re := range spec.markers {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if spec.kind != KindDocument {
			return true, ""
		}
		if re == markdownHeader {
			return true, m[2]
		}
		return true, strings.TrimSpace(strings.TrimLeft(line, "="))
	}
	return false, ""
}

// extendOverComments moves a boundary up over the contiguous comment lines
// directly above it.
func extendOverComments(spec *languageSpec, lines []string, i int) int {
	if len(spec.comments) == 0 {
		return i
	}
	start := i
	for j := i - 1; j >= 0; j-- {
		if !isComment(spec, lines[j]) {
			break
		}
		start = j
	}
	return start
}

func isComment(spec *languageSpec, raw string) bool {
	line := strings.TrimSpace(raw)
	if line == "" {
		return false
	}
	for _, prefix := range spec.comments {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// underlineBoundaries finds reStructuredText headings: a text line followed
// by an adornment line at least as long as the text.
func underlineBoundaries(lines []string) []boundary {
	var out []boundary
	for i := 0; i+1 < len(lines); i++ {
		title := strings.TrimSpace(lines[i])
		if title == "" || isAdornment(lines[i]) {
			continue
		}
		under := strings.TrimSpace(lines[i+1])
		if !isAdornment(under) || len(under) < len([]rune(title)) {
			continue
		}
		start := i
		// Overline style: the same adornment above the title.
		if i > 0 && strings.TrimSpace(lines[i-1]) == under {
			start = i - 1
		}
		out = append(out, boundary{line: start, heading: title})
		i++
	}
	return dedupe(out)
}

// isAdornment reports whether s is a run of at least three identical
// reStructuredText punctuation characters.
func isAdornment(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 || !strings.ContainsRune("=-~^\"'#*+`", rune(s[0])) {
		return false
	}
	return strings.Count(s, s[:1]) == len(s)
}

// lineBoundaries wraps bare start lines.
func lineBoundaries(starts []int) []boundary {
	out := make([]boundary, len(starts))
	for i, s := range starts {
		out[i] = boundary{line: s}
	}
	return dedupe(out)
}

// dedupe keeps boundaries strictly increasing, preferring the first entry for
// a repeated line.
func dedupe(in []boundary) []boundary {
	out := in[:0]
	last := -1
	for _, b := range in {
		if b.line <= last {
			continue
		}
		out = append(out, b)
		last = b.line
	}
	return out
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
