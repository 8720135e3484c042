package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	fallbackWidth  = 100
	minDetailWidth = 24
	columnGap      = "  "
)

// Row is one line of a two-column listing.
type Row struct {
	Key    string
	Detail string
}

// Table renders a titled key/detail listing. Details wrap at word boundaries
// so the table fits Width, or the terminal width when out is a TTY.
type Table struct {
	Title     string
	Headers   [2]string
	Rows      []Row
	EmptyText string
	Width     int
}

func (t Table) Render(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	var b strings.Builder
	if title := strings.TrimSpace(t.Title); title != "" {
		b.WriteString(Headerf("%s (%d)", title, len(t.Rows)))
		b.WriteByte('\n')
	}
	if len(t.Rows) == 0 {
		empty := strings.TrimSpace(t.EmptyText)
		if empty == "" {
			empty = "Nothing to show."
		}
		b.WriteString(Warn(empty))
		b.WriteByte('\n')
		_, _ = io.WriteString(out, b.String())
		return
	}

	keyHeader, detailHeader := t.Headers[0], t.Headers[1]
	if keyHeader == "" {
		keyHeader = "NAME"
	}
	if detailHeader == "" {
		detailHeader = "DETAILS"
	}
	keyWidth := utf8.RuneCountInString(keyHeader)
	for _, row := range t.Rows {
		keyWidth = max(keyWidth, utf8.RuneCountInString(row.Key))
	}
	detailWidth := max(t.width(out)-keyWidth-len(columnGap), minDetailWidth)

	fmt.Fprintf(&b, "%s%s%s\n", Key(pad(keyHeader, keyWidth)), columnGap, Key(detailHeader))
	fmt.Fprintf(&b, "%s%s%s\n", Dim(strings.Repeat("-", keyWidth)), columnGap, Dim(strings.Repeat("-", detailWidth)))
	indent := strings.Repeat(" ", keyWidth)
	for _, row := range t.Rows {
		for i, line := range wrap(row.Detail, detailWidth) {
			key := indent
			if i == 0 {
				key = Success(pad(row.Key, keyWidth))
			}
			b.WriteString(key + columnGap + line + "\n")
		}
	}
	_, _ = io.WriteString(out, b.String())
}

func (t Table) width(out io.Writer) int {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if t.Width > 0 {
		return t.Width
	}
	return fallbackWidth
}

func pad(s string, width int) string {
	if n := width - utf8.RuneCountInString(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// wrap breaks text into lines of at most width runes. Words longer than width
// are split.
func wrap(text string, width int) []string {
	var lines []string
	var line []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(line) > 0 {
				lines = append(lines, string(line))
				line = line[:0]
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		if len(line) > 0 && len(line)+1+len(w) > width {
			lines = append(lines, string(line))
			line = line[:0]
		}
		if len(line) > 0 {
			line = append(line, ' ')
		}
		line = append(line, w...)
	}
	if len(line) > 0 || len(lines) == 0 {
		lines = append(lines, string(line))
	}
	return lines
}
