package diag

import (
	"fmt"
	"io"
	"strings"
)

const (
	ansiRed   = "\x1b[31m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

// Render writes a human-readable rendering of err against the given
// source lines (1-indexed access via lines[line-1]), following the
// original compiler's caret-underlined snippet style: a single snippet
// for most diagnostics, and for a TypeMismatch whose declared site differs
// from its own position the "here" snippet plus the provided and declared
// snippets that are present (spec §7, SPEC_FULL §12).
func Render(w io.Writer, err *Error, lines []string, color bool) {
	fmt.Fprintf(w, "%s: %s\n", err.Code, err.Message)
	if suggestion, ok := err.GetContext("suggestion"); ok {
		fmt.Fprintf(w, "  help: did you mean `%v`?\n", suggestion)
	}

	if err.Code == CodeTypeMismatch {
		dl, _ := err.GetContext("declared_at_line")
		dc, _ := err.GetContext("declared_at_column")
		if dl != err.Line || dc != err.Column {
			renderThreeSnippets(w, err, lines, color)
			return
		}
	}
	if err.Line > 0 {
		renderSnippet(w, "here", err.Line, err.Column, lines, color)
	}
}

func renderThreeSnippets(w io.Writer, err *Error, lines []string, color bool) {
	mismatchLine, mismatchCol := err.Line, err.Column
	if v, ok := err.GetContext("mismatch_at_line"); ok {
		if l, ok2 := v.(int); ok2 {
			mismatchLine = l
		}
	}
	renderSnippet(w, "here", mismatchLine, mismatchCol, lines, color)

	if pl, ok := err.GetContext("provided_at_line"); ok {
		if l, ok2 := pl.(int); ok2 {
			pc, _ := err.GetContext("provided_at_column")
			col, _ := pc.(int)
			renderSnippet(w, "value provided here", l, col, lines, color)
		}
	}
	if dl, ok := err.GetContext("declared_at_line"); ok {
		if l, ok2 := dl.(int); ok2 {
			dc, _ := err.GetContext("declared_at_column")
			col, _ := dc.(int)
			renderSnippet(w, "expected because of this", l, col, lines, color)
		}
	}
	_ = mismatchCol
}

func renderSnippet(w io.Writer, label string, line, column int, lines []string, color bool) {
	if line <= 0 || line > len(lines) {
		return
	}
	src := lines[line-1]
	fmt.Fprintf(w, "  %d | %s\n", line, src)
	pad := strings.Repeat(" ", len(fmt.Sprintf("%d", line))+3+max(column-1, 0))
	caret := "^"
	if color {
		fmt.Fprintf(w, "%s%s%s%s %s%s\n", pad, ansiRed, caret, ansiReset, ansiDim+label+ansiReset, "")
	} else {
		fmt.Fprintf(w, "%s%s %s\n", pad, caret, label)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
