package disasm

import (
	"strings"
	"testing"

	"github.com/aledsdavies/delta/internal/codegen"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/lexer"
	"github.com/aledsdavies/delta/internal/parser"
	"github.com/aledsdavies/delta/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, source string) []byte {
	t.Helper()
	sink := diag.NewSink()
	exprs := parser.ParseProgram(lexer.Lex([]byte(source)), sink)
	require.True(t, sink.Empty(), "parse diagnostics: %v", sink.Errors())
	checker := types.NewChecker(sink, nil, nil)
	checker.CheckProgram(exprs)
	require.True(t, sink.Empty(), "check diagnostics: %v", sink.Errors())
	code, err := codegen.Generate(exprs, checker, sink)
	require.NoError(t, err)
	return code
}

func TestProgramListsComponentHeaderAndMainSection(t *testing.T) {
	code := generate(t, "component Position { x i32, y f32 }\n1 + 2")
	var b strings.Builder
	require.NoError(t, Program(&b, code))
	out := b.String()
	assert.Contains(t, out, `; component 0 "Position"`)
	assert.Contains(t, out, "; main")
	assert.Contains(t, out, "PushInteger 1")
	assert.Contains(t, out, "PushInteger 2")
}

func TestProgramListsFunctionSectionByName(t *testing.T) {
	code := generate(t, "add = \\a b\n\ta + b\n0")
	var b strings.Builder
	require.NoError(t, Program(&b, code))
	out := b.String()
	assert.Contains(t, out, `; function "add" (arity=2 locals=2)`)
}

func TestDisassembleLineFormatIsPCTabMnemonic(t *testing.T) {
	code := generate(t, "1 + 2")
	var b strings.Builder
	require.NoError(t, Disassemble(&b, code))
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.Regexp(t, `^\d{4}\t[A-Za-z]+`, lines[0])
}

func TestOperandStringDecodesGetFieldValueOperands(t *testing.T) {
	code := generate(t, "component Position { x i32, y i32 }\n"+
		"component Tagged { z i32 }\n\n"+
		"create [Position{x 1, y 2}]\n\n"+
		"query Position p\n\t\tp.x")
	var b strings.Builder
	require.NoError(t, Program(&b, code))
	assert.Contains(t, b.String(), "GetFieldValue slot=")
}
