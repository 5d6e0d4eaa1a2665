// Package chunk splits clinical notes into embedding-sized pieces that keep
// section headers together with their content.
package chunk

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars bounds the length of a chunk, title included.
const DefaultMaxChars = 800

// Chunk is one piece of a note.
type Chunk struct {
	ID     string `json:"chunk_id"`
	NoteID string `json:"note_id"`
	Index  int    `json:"chunk_index"`
	Text   string `json:"content"`
}

// ID returns the deterministic id of the index-th chunk of a note.
func ID(noteID string, index int) string {
	return fmt.Sprintf("%s#%d", noteID, index)
}

// IsHeader reports whether line opens a section, e.g. "CHIEF COMPLAINT:".
func IsHeader(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < 2 || !strings.HasSuffix(line, ":") {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// Split chunks a note. The first non-empty line is the title and is
// prefixed to every chunk. Sections are packed greedily up to maxChars; a
// section that does not fit on its own is split on word boundaries.
func Split(noteID, text string, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	title, sections := parse(text)
	if title == "" {
		return nil
	}
	if limit := maxChars / 4; len(title) > limit {
		title = strings.TrimSpace(cut(title, limit))
	}
	prefix := title + "\n\n"
	budget := maxChars - len(prefix)

	var bodies []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			bodies = append(bodies, cur.String())
			cur.Reset()
		}
	}
	for _, s := range sections {
		if len(s) > budget {
			flush()
			bodies = append(bodies, splitWords(s, budget)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(s) > budget {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(s)
	}
	flush()

	if len(bodies) == 0 {
		return []Chunk{{ID: ID(noteID, 0), NoteID: noteID, Index: 0, Text: title}}
	}
	out := make([]Chunk, len(bodies))
	for i, b := range bodies {
		out[i] = Chunk{ID: ID(noteID, i), NoteID: noteID, Index: i, Text: prefix + b}
	}
	return out
}

// parse returns the title line and the sections that follow it. Each
// section starts with its header, blank lines are dropped.
func parse(text string) (string, []string) {
	var title string
	var sections []string
	var cur []string
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if title == "" {
			title = line
			continue
		}
		if IsHeader(line) && len(cur) > 0 {
			sections = append(sections, strings.Join(cur, "\n"))
			cur = nil
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		sections = append(sections, strings.Join(cur, "\n"))
	}
	return title, sections
}

// splitWords breaks s into pieces of at most limit bytes at whitespace.
// Words longer than limit are cut on rune boundaries.
func splitWords(s string, limit int) []string {
	var out []string
	var cur strings.Builder
	for _, w := range strings.Fields(s) {
		for len(w) > limit {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			head := cut(w, limit)
			out = append(out, head)
			w = w[len(head):]
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// cut returns the longest prefix of s that fits in n bytes without splitting
// a rune. At least one rune is returned when s is non-empty.
func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := n
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	if i == 0 {
		_, i = utf8.DecodeRuneInString(s)
	}
	return s[:i]
}
