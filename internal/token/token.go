// Package token defines the lexical token kinds produced by internal/lexer.
package token

import "fmt"

// Kind identifies the lexical category of a Token.
type Kind int

const (
	EOF Kind = iota
	Illegal
	SyntaxErr // carries a description instead of a lexeme

	// Layout
	NewLine
	Tab   // one indentation level (hard tab or exactly 4 spaces)
	Space // a single leading space, discarded by the parser
	Comment

	// Literals
	Identifier
	ContextIdentifier // ctx or ctx.field
	Integer
	Float
	Boolean
	Text // a string-literal segment (between interpolation points)
	StringConcat
	TagLiteral // :name

	// Keywords
	Is
	If
	And
	Or
	Not
	Component
	Query
	Create

	// Type keywords
	TypeF32
	TypeI32
	TypeStr

	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Comma
	Colon
	Equals
	Pipe
	Backslash
	Dot
	Underscore

	// Arithmetic operators (integer)
	Plus
	Minus
	Star
	Slash
	Percent

	// Arithmetic operators (float, dotted)
	PlusDot
	MinusDot
	StarDot
	SlashDot
	PercentDot

	// Comparison (integer / default)
	Less
	LessEquals
	Greater
	GreaterEquals
	EqualsEquals
	BangEquals
	Bang

	// Comparison (float, dotted)
	LessDot
	LessEqualsDot
	GreaterDot
	GreaterEqualsDot
	EqualsEqualsDot
	BangEqualsDot
)

var kindNames = [...]string{
	EOF:               "EOF",
	Illegal:           "ILLEGAL",
	SyntaxErr:         "SYNTAX_ERROR",
	NewLine:           "NEWLINE",
	Tab:               "TAB",
	Space:             "SPACE",
	Comment:           "COMMENT",
	Identifier:        "IDENTIFIER",
	ContextIdentifier: "CONTEXT_IDENTIFIER",
	Integer:           "INTEGER",
	Float:             "FLOAT",
	Boolean:           "BOOLEAN",
	Text:              "TEXT",
	StringConcat:      "STRING_CONCAT",
	TagLiteral:        "TAG",
	Is:                "IS",
	If:                "IF",
	And:               "AND",
	Or:                "OR",
	Not:               "NOT",
	Component:         "COMPONENT",
	Query:             "QUERY",
	Create:            "CREATE",
	TypeF32:           "F32",
	TypeI32:           "I32",
	TypeStr:           "STR",
	LParen:            "LPAREN",
	RParen:            "RPAREN",
	LBrace:            "LBRACE",
	RBrace:            "RBRACE",
	LBracket:          "LBRACKET",
	RBracket:          "RBRACKET",
	Comma:             "COMMA",
	Colon:             "COLON",
	Equals:            "EQUALS",
	Pipe:              "PIPE",
	Backslash:         "BACKSLASH",
	Dot:               "DOT",
	Underscore:        "UNDERSCORE",
	Plus:              "PLUS",
	Minus:             "MINUS",
	Star:              "STAR",
	Slash:             "SLASH",
	Percent:           "PERCENT",
	PlusDot:           "PLUS_DOT",
	MinusDot:          "MINUS_DOT",
	StarDot:           "STAR_DOT",
	SlashDot:          "SLASH_DOT",
	PercentDot:        "PERCENT_DOT",
	Less:              "LESS",
	LessEquals:        "LESS_EQUALS",
	Greater:           "GREATER",
	GreaterEquals:     "GREATER_EQUALS",
	EqualsEquals:      "EQUALS_EQUALS",
	BangEquals:        "BANG_EQUALS",
	Bang:              "BANG",
	LessDot:           "LESS_DOT",
	LessEqualsDot:     "LESS_EQUALS_DOT",
	GreaterDot:        "GREATER_DOT",
	GreaterEqualsDot:  "GREATER_EQUALS_DOT",
	EqualsEqualsDot:   "EQUALS_EQUALS_DOT",
	BangEqualsDot:     "BANG_EQUALS_DOT",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords maps reserved identifiers to their keyword Kind.
var Keywords = map[string]Kind{
	"is":        Is,
	"if":        If,
	"and":       And,
	"or":        Or,
	"not":       Not,
	"component": Component,
	"query":     Query,
	"create":    Create,
	"true":      Boolean,
	"false":     Boolean,
	"f32":       TypeF32,
	"i32":       TypeI32,
	"str":       TypeStr,
	"ctx":       ContextIdentifier,
}

// Token is a single lexical unit with its source position.
type Token struct {
	Kind   Kind
	Lexeme string
	Line   int
	Column int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Lexeme, t.Line, t.Column)
}

// IsFloatOperator reports whether the token is a dotted (float) arithmetic
// or comparison operator.
func (k Kind) IsFloatOperator() bool {
	switch k {
	case PlusDot, MinusDot, StarDot, SlashDot, PercentDot,
		LessDot, LessEqualsDot, GreaterDot, GreaterEqualsDot,
		EqualsEqualsDot, BangEqualsDot:
		return true
	}
	return false
}
