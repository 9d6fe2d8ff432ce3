// Package types implements the Hindley-Milner-style unifier and checker
// (spec §4.3), grounded on original_source/delta/src/unification.rs and
// typer.rs.
package types

import (
	"fmt"
	"strings"
)

// Kind distinguishes a unification Type's shape: either a rigid
// Constructor (base type or parametrized type) or an unresolved Variable.
type Kind int

const (
	KindConstructor Kind = iota
	KindVariable
)

// Type is a unification type: either Constructor{Name, Args} or a numbered
// Variable, mirroring UnificationType in the original implementation.
type Type struct {
	Kind Kind

	// Constructor fields.
	Name string
	Args []Type

	// Variable field.
	Var int
}

func Variable(id int) Type { return Type{Kind: KindVariable, Var: id} }

func Constructor(name string, args ...Type) Type {
	return Type{Kind: KindConstructor, Name: name, Args: args}
}

// Base type constructors (spec §3 "Types").
func Bool() Type   { return Constructor("bool") }
func Int() Type    { return Constructor("int") }
func Float() Type  { return Constructor("float") }
func String() Type { return Constructor("string") }
func Ctx() Type    { return Constructor("context") }

func List(elem Type) Type { return Constructor("list", elem) }

func Tag(name string, payload ...Type) Type {
	return Constructor("tag:"+name, payload...)
}

func Function(params []Type, ret Type) Type {
	return Constructor("function", append(append([]Type{}, params...), ret)...)
}

func Component(name string, fields ...Type) Type {
	return Constructor("component:"+name, fields...)
}

// Display renders a Type the way the original Display impl does:
// "list[%s]", "function(%s) -> %s", "component %s(%s)" (SPEC_FULL §12).
func Display(t Type) string {
	switch t.Kind {
	case KindVariable:
		return fmt.Sprintf("t%d", t.Var)
	case KindConstructor:
		switch {
		case t.Name == "list":
			return fmt.Sprintf("list[%s]", Display(t.Args[0]))
		case t.Name == "function":
			if len(t.Args) == 0 {
				return "function() -> ?"
			}
			params := t.Args[:len(t.Args)-1]
			ret := t.Args[len(t.Args)-1]
			parts := make([]string, len(params))
			for i, p := range params {
				parts[i] = Display(p)
			}
			return fmt.Sprintf("function(%s) -> %s", strings.Join(parts, ", "), Display(ret))
		case strings.HasPrefix(t.Name, "component:"):
			name := strings.TrimPrefix(t.Name, "component:")
			parts := make([]string, len(t.Args))
			for i, f := range t.Args {
				parts[i] = Display(f)
			}
			return fmt.Sprintf("component %s(%s)", name, strings.Join(parts, ", "))
		case strings.HasPrefix(t.Name, "tag:"):
			name := strings.TrimPrefix(t.Name, "tag:")
			if len(t.Args) == 0 {
				return ":" + name
			}
			return fmt.Sprintf(":%s(%s)", name, Display(t.Args[0]))
		default:
			return t.Name
		}
	}
	return "?"
}
