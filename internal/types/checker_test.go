package types

import (
	"testing"

	"github.com/aledsdavies/delta/internal/ast"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/lexer"
	"github.com/aledsdavies/delta/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// check lexes, parses, and type-checks source, returning the resulting
// Checker and sink for assertions.
func check(t *testing.T, source string) (*Checker, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink()
	exprs := parser.ParseProgram(lexer.Lex([]byte(source)), sink)
	require.True(t, sink.Empty(), "unexpected parse diagnostics: %v", sink.Errors())
	c := NewChecker(sink, nil, nil)
	c.CheckProgram(exprs)
	return c, sink
}

func TestCheckIntegerArithmeticInfersInt(t *testing.T) {
	c, sink := check(t, "1 + 2")
	assert.True(t, sink.Empty())
	assert.Equal(t, "int", Display(c.ResolvedType(lastExpr(t, c))))
}

// lastExpr returns a Binary node recorded in c.exprTypes during
// CheckProgram, failing the test if none was checked. It is meant for
// programs holding a single binary expression.
func lastExpr(t *testing.T, c *Checker) ast.Expr {
	t.Helper()
	for e := range c.exprTypes {
		if _, ok := e.(*ast.Binary); ok {
			return e
		}
	}
	t.Fatal("no Binary expr was checked")
	return nil
}

func TestCheckTypeMismatchIsReportedForIntPlusBool(t *testing.T) {
	_, sink := check(t, "1 + true")
	require.False(t, sink.Empty())
	err := sink.Errors()[0]
	assert.Equal(t, diag.CodeTypeMismatch, err.Code)
}

func TestCheckUnknownNameReportsNameNotFound(t *testing.T) {
	_, sink := check(t, "x")
	require.False(t, sink.Empty())
	assert.Equal(t, diag.CodeNameNotFound, sink.Errors()[0].Code)
	assert.Contains(t, sink.Errors()[0].Message, "x")
}

func TestCheckUnknownNameSuggestsClosestBinding(t *testing.T) {
	_, sink := check(t, "health = 1\nhelth")
	require.False(t, sink.Empty())
	suggestion, ok := sink.Errors()[0].GetContext("suggestion")
	require.True(t, ok)
	assert.Equal(t, "health", suggestion)
}

func TestCheckComponentDefinitionRegistersFieldOrderAndTypes(t *testing.T) {
	c, sink := check(t, "component Position { x i32, y f32 }")
	require.True(t, sink.Empty())
	info, ok := c.Components["Position"]
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, info.FieldOrder)
	assert.Equal(t, "int", Display(info.FieldTypes["x"]))
	assert.Equal(t, "float", Display(info.FieldTypes["y"]))
}

func TestCheckComponentInitMissingPropertyIsADiagnostic(t *testing.T) {
	_, sink := check(t, "component Position { x i32, y i32 }\nPosition{x 1}")
	require.False(t, sink.Empty())
	assert.Equal(t, diag.CodePropertyMissing, sink.Errors()[0].Code)
}

func TestCheckComponentInitUnknownPropertyIsADiagnostic(t *testing.T) {
	_, sink := check(t, "component Position { x i32 }\nPosition{x 1, z 2}")
	require.False(t, sink.Empty())
	var codes []diag.Code
	for _, e := range sink.Errors() {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, diag.CodePropertyMissing)
}

func TestCheckComponentInitDuplicatePropertyIsADiagnostic(t *testing.T) {
	_, sink := check(t, "component Position { x i32 }\nPosition{x 1, x 2}")
	require.False(t, sink.Empty())
	assert.Equal(t, diag.CodePropertyDuplicated, sink.Errors()[0].Code)
}

func TestCheckQueryBindsAliasToComponentType(t *testing.T) {
	_, sink := check(t, "component Position { x i32 }\nquery Position p\n\t\tp.x")
	assert.True(t, sink.Empty(), "unexpected diagnostics: %v", sink.Errors())
}

func TestCheckQueryUnknownComponentIsADiagnostic(t *testing.T) {
	_, sink := check(t, "query Missing p\n\t\tp")
	require.False(t, sink.Empty())
	assert.Equal(t, diag.CodeTypeNotFound, sink.Errors()[0].Code)
}

func TestCheckIsMatchMultipleDefaultArmsReportsBothDiagnostics(t *testing.T) {
	_, sink := check(t, "3 is\n\t_\n\t\t\"a\"\n\t_\n\t\t\"b\"")
	require.False(t, sink.Empty())
	var messages []string
	for _, e := range sink.Errors() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "An `is` block cannot have multiple default arms.")
	assert.Contains(t, messages, "A default arm must be the last arm of an `is` block.")
}
