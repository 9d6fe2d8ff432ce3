package diag_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aledsdavies/delta/internal/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkAccumulatesInOrder(t *testing.T) {
	sink := diag.NewSink()
	assert.True(t, sink.Empty())

	sink.Add(diag.New(diag.CodeSyntaxError, "first"))
	sink.Add(diag.New(diag.CodeParseErr, "second"))

	assert.False(t, sink.Empty())
	assert.Equal(t, 2, sink.Len())
	assert.Equal(t, "first", sink.Errors()[0].Message)
	assert.Equal(t, "second", sink.Errors()[1].Message)
}

func TestErrorAtAndWithContextRoundTrip(t *testing.T) {
	err := diag.New(diag.CodeNameNotFound, "Name not found in scope: x").At(3, 7).WithContext("foo", "bar")
	assert.Equal(t, 3, err.Line)
	assert.Equal(t, 7, err.Column)
	v, ok := err.GetContext("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v)
}

func TestWrapPreservesCauseAndIs(t *testing.T) {
	cause := errors.New("underlying")
	err := diag.Wrap(diag.CodeFileErr, "failed to read source", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, diag.Is(err, diag.CodeFileErr))
	assert.False(t, diag.Is(err, diag.CodeSyntaxError))
	assert.Contains(t, err.Error(), "underlying")
}

func TestSuggestAddsClosestCandidate(t *testing.T) {
	err := diag.New(diag.CodeNameNotFound, "Name not found in scope: helth")
	err = diag.Suggest(err, "helth", []string{"health", "wealth", "double"})
	v, ok := err.GetContext("suggestion")
	require.True(t, ok)
	assert.Equal(t, "health", v)
}

func TestSuggestIsNoOpWithNoCandidates(t *testing.T) {
	err := diag.New(diag.CodeNameNotFound, "Name not found in scope: x")
	err = diag.Suggest(err, "x", nil)
	_, ok := err.GetContext("suggestion")
	assert.False(t, ok)
}

func TestRenderIncludesMessageAndCaretLine(t *testing.T) {
	err := diag.New(diag.CodeNameNotFound, "Name not found in scope: x").At(1, 1)
	var buf bytes.Buffer
	diag.Render(&buf, err, []string{"x"}, false)
	out := buf.String()
	assert.Contains(t, out, "NAME_NOT_FOUND: Name not found in scope: x")
	assert.Contains(t, out, "1 | x")
	assert.Contains(t, out, "^")
}

func TestRenderTypeMismatchShowsMultipleSnippets(t *testing.T) {
	err := diag.New(diag.CodeTypeMismatch, "expected int, got string").At(2, 1).
		WithContext("provided_at_line", 2).WithContext("provided_at_column", 1).
		WithContext("declared_at_line", 1).WithContext("declared_at_column", 1)
	lines := []string{"x: int", "x = \"oops\""}
	var buf bytes.Buffer
	diag.Render(&buf, err, lines, false)
	out := buf.String()
	assert.Contains(t, out, "value provided here")
	assert.Contains(t, out, "expected because of this")
}
