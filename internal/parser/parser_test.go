package parser

import (
	"testing"

	"github.com/aledsdavies/delta/internal/ast"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/lexer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOK(t *testing.T, source string) []ast.Expr {
	t.Helper()
	sink := diag.NewSink()
	exprs := ParseProgram(lexer.Lex([]byte(source)), sink)
	require.True(t, sink.Empty(), "unexpected diagnostics: %v", sink.Errors())
	return exprs
}

func TestParseSimpleArithmeticBindsLeftToRight(t *testing.T) {
	exprs := parseOK(t, "1 + 2 + 3")
	require.Len(t, exprs, 1)
	bin, ok := exprs[0].(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.BinAdd, bin.Op)
	_, ok = bin.Left.(*ast.Binary)
	assert.True(t, ok, "left-associative: outer left should itself be a Binary")
}

func TestParseAssignmentDefinesName(t *testing.T) {
	exprs := parseOK(t, "x = 5")
	require.Len(t, exprs, 1)
	assign, ok := exprs[0].(*ast.Assignment)
	require.True(t, ok)
	ident, ok := assign.Target.(*ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "x", ident.Name)
}

func TestParseContextIdentifierCapturesFieldName(t *testing.T) {
	exprs := parseOK(t, "ctx.score")
	require.Len(t, exprs, 1)
	ci, ok := exprs[0].(*ast.ContextIdentifier)
	require.True(t, ok)
	assert.Equal(t, "score", ci.Field)
}

func TestParseBareContextIdentifierHasEmptyField(t *testing.T) {
	exprs := parseOK(t, "ctx")
	require.Len(t, exprs, 1)
	ci, ok := exprs[0].(*ast.ContextIdentifier)
	require.True(t, ok)
	assert.Equal(t, "", ci.Field)
}

func TestParseFunctionLiteralAndCall(t *testing.T) {
	exprs := parseOK(t, "add = \\v1 v2\n\tv1 + v2\nadd 1 2")
	require.Len(t, exprs, 2)
	assign, ok := exprs[0].(*ast.Assignment)
	require.True(t, ok)
	lit, ok := assign.Value.(*ast.FunctionLiteral)
	require.True(t, ok)
	assert.Equal(t, []string{"v1", "v2"}, lit.Params)

	call, ok := exprs[1].(*ast.Call)
	require.True(t, ok)
	assert.Equal(t, "add", call.Callee)
	assert.Len(t, call.Args, 2)
}

func TestParseComponentDeclaration(t *testing.T) {
	exprs := parseOK(t, "component Position { x i32, y i32 }")
	require.Len(t, exprs, 1)
	def, ok := exprs[0].(*ast.ComponentDef)
	require.True(t, ok)
	assert.Equal(t, "Position", def.Name)
	require.Len(t, def.Fields, 2)
	assert.Equal(t, "x", def.Fields[0].Name)
	assert.Equal(t, "i32", def.Fields[0].Type)
}

func TestParseComponentRedefinitionIsADiagnostic(t *testing.T) {
	sink := diag.NewSink()
	source := "component Position { x i32 }\ncomponent Position { y i32 }"
	ParseProgram(lexer.Lex([]byte(source)), sink)
	require.False(t, sink.Empty())
	assert.Contains(t, sink.Errors()[0].Message, "already defined")
}

func TestParseCreateWrapsComponentInitsInAList(t *testing.T) {
	exprs := parseOK(t, "component Position { x i32, y i32 }\ncreate [Position{x 1, y 2}]")
	require.Len(t, exprs, 2)
	create, ok := exprs[1].(*ast.Create)
	require.True(t, ok)
	list, ok := create.Components.(*ast.ListLiteral)
	require.True(t, ok)
	require.Len(t, list.Elements, 1)
	init, ok := list.Elements[0].(*ast.ComponentInit)
	require.True(t, ok)
	assert.Equal(t, "Position", init.Name)
	require.Len(t, init.Fields, 2)
	assert.Equal(t, "x", init.Fields[0].Name)
}

func TestParseQueryIncludeAliasAndExclude(t *testing.T) {
	exprs := parseOK(t, "query Position p, not Tagged\n\t\tp.x")
	require.Len(t, exprs, 1)
	q, ok := exprs[0].(*ast.Query)
	require.True(t, ok)
	require.Len(t, q.Include, 1)
	assert.Equal(t, "Position", q.Include[0].Component)
	assert.Equal(t, "p", q.Include[0].Alias)
	require.Len(t, q.Exclude, 1)
	assert.Equal(t, "Tagged", q.Exclude[0].Component)
}

func TestParseIsMatchWithDefaultArm(t *testing.T) {
	exprs := parseOK(t, "3 is\n\t2\n\t\t\"nope\"\n\t_\n\t\t\"yes\"")
	require.Len(t, exprs, 1)
	m, ok := exprs[0].(*ast.IsMatch)
	require.True(t, ok)
	require.Len(t, m.Arms, 2)
	assert.Equal(t, ast.PatternExpr, m.Arms[0].Kind)
	assert.Equal(t, ast.PatternDefault, m.Arms[1].Kind)
}

func TestParseIsMatchWithNoArmsIsADiagnostic(t *testing.T) {
	sink := diag.NewSink()
	tokens := lexer.Lex([]byte("3 is\n0"))
	ParseProgram(tokens, sink)
	require.False(t, sink.Empty())
	assert.Contains(t, sink.Errors()[0].Message, "must have at least one arm")
}

func TestParseUnexpectedTokenIsADiagnostic(t *testing.T) {
	sink := diag.NewSink()
	ParseProgram(lexer.Lex([]byte(")")), sink)
	assert.False(t, sink.Empty())
}
