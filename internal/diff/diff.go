// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
)

// Line is a single line of a diff with its line numbers. A zero number means
// the line does not exist on that side.
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Result holds the hunks between two versions of a text.
type Result struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Empty reports whether both versions were identical.
func (r *Result) Empty() bool {
	return len(r.Hunks) == 0
}

// Hunk is a continuous run of changes plus surrounding context.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

type Engine struct {
	contextLines int
}

// NewEngine creates a diff engine keeping contextLines unchanged lines
// around each change.
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{contextLines: contextLines}
}

// Diff compares two texts line by line.
func (e *Engine) Diff(oldContent, newContent []byte) *Result {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	lines := e.walk(oldLines, newLines)

	result := &Result{Hunks: e.group(lines)}
	for _, l := range lines {
		switch l.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions
	return result
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	return bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
}

// walk produces the full edit script from a longest common subsequence table.
// lcs[i][j] is the LCS length of oldLines[i:] and newLines[j:].
func (e *Engine) walk(oldLines, newLines [][]byte) []Line {
	n, m := len(oldLines), len(newLines)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if bytes.Equal(oldLines[i], newLines[j]) {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	lines := make([]Line, 0, n+m)
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && bytes.Equal(oldLines[i], newLines[j]):
			lines = append(lines, Line{Type: Context, Content: string(oldLines[i]), OldNum: i + 1, NewNum: j + 1})
			i++
			j++
		case j >= m || (i < n && lcs[i+1][j] >= lcs[i][j+1]):
			lines = append(lines, Line{Type: Deletion, Content: string(oldLines[i]), OldNum: i + 1})
			i++
		default:
			lines = append(lines, Line{Type: Addition, Content: string(newLines[j]), NewNum: j + 1})
			j++
		}
	}
	return lines
}

// group cuts the edit script into hunks. Changes separated by no more than
// twice the context size share a hunk.
func (e *Engine) group(lines []Line) []Hunk {
	var hunks []Hunk

	for k := 0; k < len(lines); {
		if lines[k].Type == Context {
			k++
			continue
		}

		start := max(0, k-e.contextLines)
		end := k
		for end < len(lines) {
			if lines[end].Type != Context {
				end++
				continue
			}
			run := end
			for run < len(lines) && lines[run].Type == Context {
				run++
			}
			if run == len(lines) || run-end > 2*e.contextLines {
				end = min(run, end+e.contextLines)
				break
			}
			end = run
		}

		hunks = append(hunks, newHunk(lines[start:end], lines[:start]))
		k = end
	}
	return hunks
}

func newHunk(lines, before []Line) Hunk {
	h := Hunk{Lines: append([]Line(nil), lines...)}

	oldPos, newPos := 0, 0
	for _, l := range before {
		if l.Type != Addition {
			oldPos++
		}
		if l.Type != Deletion {
			newPos++
		}
	}

	for _, l := range lines {
		if l.Type != Addition {
			h.OldLines++
		}
		if l.Type != Deletion {
			h.NewLines++
		}
	}

	h.OldStart = oldPos
	if h.OldLines > 0 {
		h.OldStart++
	}
	h.NewStart = newPos
	if h.NewLines > 0 {
		h.NewStart++
	}
	return h
}

// Format renders the result in unified diff form.
func (r *Result) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteByte('+')
			case Deletion:
				buf.WriteByte('-')
			case Context:
				buf.WriteByte(' ')
			}
			buf.WriteString(line.Content)
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}
