package types

import (
	"fmt"

	"github.com/aledsdavies/delta/internal/ast"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/token"
)

// ComponentInfo is a checked component's layout: declaration order of
// fields plus their declared types. The checker validates initializers
// against it; codegen builds component layouts from it.
type ComponentInfo struct {
	ID         byte
	Name       string
	FieldOrder []string
	FieldTypes map[string]Type
	DeclaredAt token.Token
}

// Environment is a stack of lexical scopes, name -> Type.
type Environment struct {
	scopes []map[string]Type
}

func NewEnvironment() *Environment {
	return &Environment{scopes: []map[string]Type{{}}}
}

func (e *Environment) Push() { e.scopes = append(e.scopes, map[string]Type{}) }

func (e *Environment) Pop() { e.scopes = e.scopes[:len(e.scopes)-1] }

func (e *Environment) Define(name string, t Type) { e.scopes[len(e.scopes)-1][name] = t }

func (e *Environment) Lookup(name string) (Type, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if t, ok := e.scopes[i][name]; ok {
			return t, true
		}
	}
	return Type{}, false
}

// Names returns every identifier visible in the current environment, used
// to drive "did you mean" suggestions on NameNotFound diagnostics.
func (e *Environment) Names() []string {
	var out []string
	seen := map[string]bool{}
	for _, scope := range e.scopes {
		for name := range scope {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

type constraint struct {
	a, b       Type
	mismatch   token.Token
	declaredAt token.Token
	providedAt token.Token
	hasSites   bool
}

// Checker performs constraint-based Hindley-Milner inference over the
// expression tree (spec §4.3).
type Checker struct {
	sink        *diag.Sink
	env         *Environment
	subst       Substitution
	constraints []constraint
	nextVar     int

	Components map[string]*ComponentInfo
	nextCompID byte

	foreignValues   map[string]Type
	foreignFuncs    map[string]Type
	exprTypes       map[ast.Expr]Type
	builtinVars     map[string]int // SPEC_FULL §13 item 3: fresh vars, not reserved numbers
}

// NewChecker creates a Checker with the built-in foreign functions
// (spec §6, SPEC_FULL §13 item 3) preseeded with freshly allocated type
// variables rather than magic numbers.
func NewChecker(sink *diag.Sink, foreignValues, foreignFuncs map[string]Type) *Checker {
	c := &Checker{
		sink:          sink,
		env:           NewEnvironment(),
		subst:         Substitution{},
		Components:    map[string]*ComponentInfo{},
		foreignValues: foreignValues,
		foreignFuncs:  foreignFuncs,
		exprTypes:     map[ast.Expr]Type{},
		builtinVars:   map[string]int{},
	}
	c.seedBuiltins()
	return c
}

func (c *Checker) fresh() Type {
	v := c.nextVar
	c.nextVar++
	return Variable(v)
}

// seedBuiltins gives append/get_list_element_at_index/get_array_length/log
// each their own freshly allocated element-type variable.
func (c *Checker) seedBuiltins() {
	for _, name := range []string{"append", "get_list_element_at_index", "get_array_length", "log"} {
		elem := c.fresh()
		c.builtinVars[name] = elem.Var
		switch name {
		case "append":
			c.env.Define(name, Function([]Type{List(elem), elem}, List(elem)))
		case "get_list_element_at_index":
			c.env.Define(name, Function([]Type{List(elem), Int()}, elem))
		case "get_array_length":
			c.env.Define(name, Function([]Type{List(elem)}, Int()))
		case "log":
			c.env.Define(name, Function([]Type{elem}, Bool()))
		}
	}
	for name, t := range c.foreignValues {
		c.env.Define(name, t)
	}
	for name, t := range c.foreignFuncs {
		c.env.Define(name, t)
	}
}

func (c *Checker) addConstraint(a, b Type, mismatch token.Token) {
	c.constraints = append(c.constraints, constraint{a: a, b: b, mismatch: mismatch})
}

func (c *Checker) addConstraintSites(a, b Type, mismatch, declaredAt, providedAt token.Token) {
	c.constraints = append(c.constraints, constraint{a: a, b: b, mismatch: mismatch, declaredAt: declaredAt, providedAt: providedAt, hasSites: true})
}

// CheckProgram type-checks a full program: first registering every
// component definition (so forward references resolve), then inferring
// every remaining top-level expression. Diagnostics accumulate in the
// Sink; callers must check sink.Empty() before proceeding to codegen.
func (c *Checker) CheckProgram(exprs []ast.Expr) {
	for _, e := range exprs {
		if def, ok := e.(*ast.ComponentDef); ok {
			c.registerComponent(def)
		}
	}
	for _, e := range exprs {
		if _, ok := e.(*ast.ComponentDef); ok {
			continue
		}
		c.Infer(e)
	}
	c.solve()
}

// registerComponent installs def's layout. Redefinition is caught earlier
// by the parser (spec §4.2), which is the sole source of the
// TypeRedefinition diagnostic; a second definition reaching here is
// ignored, so the first definition keeps its id and fields.
func (c *Checker) registerComponent(def *ast.ComponentDef) {
	if _, exists := c.Components[def.Name]; exists {
		return
	}
	info := &ComponentInfo{
		ID:         c.nextCompID,
		Name:       def.Name,
		FieldTypes: map[string]Type{},
		DeclaredAt: def.Tok,
	}
	c.nextCompID++
	for _, f := range def.Fields {
		info.FieldOrder = append(info.FieldOrder, f.Name)
		info.FieldTypes[f.Name] = c.fieldType(f.Type)
	}
	c.Components[def.Name] = info
}

func (c *Checker) fieldType(name string) Type {
	switch name {
	case "i32":
		return Int()
	case "f32":
		return Float()
	case "str":
		return String()
	case "bool":
		return Bool()
	default:
		return Component(name)
	}
}

// Infer walks expr, generating constraints, and returns its (possibly
// still-unresolved) type.
func (c *Checker) Infer(expr ast.Expr) Type {
	var t Type
	switch e := expr.(type) {
	case *ast.Identifier:
		if bound, ok := c.env.Lookup(e.Name); ok {
			t = bound
		} else {
			err := diag.New(diag.CodeNameNotFound, fmt.Sprintf("Name not found in scope: %s", e.Name)).
				At(e.Tok.Line, e.Tok.Column)
			err = diag.Suggest(err, e.Name, c.env.Names())
			c.sink.Add(err)
			t = c.fresh()
		}

	case *ast.ContextIdentifier:
		t = c.fresh()

	case *ast.Grouping:
		t = c.Infer(e.Inner)

	case *ast.BoolLiteral:
		t = Bool()

	case *ast.IntLiteral:
		t = Int()

	case *ast.FloatLiteral:
		t = Float()

	case *ast.StringLiteral:
		for _, p := range e.Parts {
			if p.Expr != nil {
				c.Infer(p.Expr)
			}
		}
		t = String()

	case *ast.ListLiteral:
		elem := c.fresh()
		for _, el := range e.Elements {
			et := c.Infer(el)
			c.addConstraint(elem, et, el.Pos())
		}
		t = List(elem)

	case *ast.TagLiteral:
		if e.Payload != nil {
			pt := c.Infer(e.Payload)
			t = Tag(e.Name, pt)
		} else {
			t = Tag(e.Name)
		}

	case *ast.FunctionLiteral:
		c.env.Push()
		params := make([]Type, len(e.Params))
		for i, p := range e.Params {
			params[i] = c.fresh()
			c.env.Define(p, params[i])
		}
		body := c.Infer(e.Body)
		c.env.Pop()
		t = Function(params, body)

	case *ast.ComponentInit:
		t = c.inferComponentInit(e)

	case *ast.Call:
		t = c.inferCall(e)

	case *ast.FieldAccess:
		t = c.inferFieldAccess(e)

	case *ast.Assignment:
		vt := c.Infer(e.Value)
		switch target := e.Target.(type) {
		case *ast.Identifier:
			if existing, ok := c.env.Lookup(target.Name); ok {
				c.addConstraint(existing, vt, e.Tok)
			} else {
				c.env.Define(target.Name, vt)
			}
		case *ast.ContextIdentifier, *ast.FieldAccess:
			c.Infer(target)
		}
		t = vt

	case *ast.Unary:
		ot := c.Infer(e.Operand)
		switch e.Op {
		case ast.UnaryNegate:
			c.addConstraint(ot, Int(), e.Tok)
			t = ot
		case ast.UnaryNot:
			c.addConstraint(ot, Bool(), e.Tok)
			t = Bool()
		}

	case *ast.Binary:
		t = c.inferBinary(e)

	case *ast.Block:
		c.env.Push()
		t = c.fresh()
		for i, sub := range e.Exprs {
			st := c.Infer(sub)
			if i == len(e.Exprs)-1 {
				t = st
			}
		}
		c.env.Pop()

	case *ast.IsMatch:
		t = c.inferIsMatch(e)

	case *ast.ComponentDef:
		// handled in a dedicated pre-pass; nothing to infer inline.
		t = c.fresh()

	case *ast.Query:
		t = c.inferQuery(e)

	case *ast.Create:
		if list, ok := e.Components.(*ast.ListLiteral); ok {
			// One entity may carry several component types, so the
			// initializers are inferred one by one rather than unified.
			for _, el := range list.Elements {
				c.Infer(el)
			}
		} else {
			ct := c.Infer(e.Components)
			c.addConstraint(ct, List(c.fresh()), e.Tok)
		}
		t = Int()

	default:
		t = c.fresh()
	}
	c.exprTypes[expr] = t
	return t
}

func (c *Checker) inferComponentInit(e *ast.ComponentInit) Type {
	info, ok := c.Components[e.Name]
	if !ok {
		c.sink.Add(diag.New(diag.CodeTypeNotFound, fmt.Sprintf("Type not found: %s", e.Name)).
			At(e.Tok.Line, e.Tok.Column))
		for _, f := range e.Fields {
			c.Infer(f.Value)
		}
		return c.fresh()
	}

	seen := map[string]bool{}
	for _, f := range e.Fields {
		if seen[f.Name] {
			c.sink.Add(diag.New(diag.CodePropertyDuplicated,
				fmt.Sprintf("Property '%s' supplied more than once for component '%s'", f.Name, e.Name)).
				At(e.Tok.Line, e.Tok.Column))
			c.Infer(f.Value)
			continue
		}
		seen[f.Name] = true
		ft, ok := info.FieldTypes[f.Name]
		if !ok {
			c.sink.Add(diag.New(diag.CodePropertyMissing,
				fmt.Sprintf("Component '%s' has no property '%s'", e.Name, f.Name)).
				At(e.Tok.Line, e.Tok.Column))
			c.Infer(f.Value)
			continue
		}
		vt := c.Infer(f.Value)
		c.addConstraint(ft, vt, f.Value.Pos())
	}
	for _, name := range info.FieldOrder {
		if !seen[name] {
			c.sink.Add(diag.New(diag.CodePropertyMissing,
				fmt.Sprintf("Component '%s' is missing property '%s'", e.Name, name)).
				At(e.Tok.Line, e.Tok.Column))
		}
	}

	fieldTypes := make([]Type, len(info.FieldOrder))
	for i, name := range info.FieldOrder {
		fieldTypes[i] = info.FieldTypes[name]
	}
	return Component(e.Name, fieldTypes...)
}

func (c *Checker) inferCall(e *ast.Call) Type {
	callee, ok := c.env.Lookup(e.Callee)
	if !ok {
		err := diag.New(diag.CodeFunctionNotFound, fmt.Sprintf("Function not found: %s", e.Callee)).
			At(e.Tok.Line, e.Tok.Column)
		err = diag.Suggest(err, e.Callee, c.env.Names())
		c.sink.Add(err)
		for _, a := range e.Args {
			c.Infer(a)
		}
		return c.fresh()
	}

	argTypes := make([]Type, len(e.Args))
	for i, a := range e.Args {
		argTypes[i] = c.Infer(a)
	}
	ret := c.fresh()
	c.addConstraintSites(callee, Function(argTypes, ret), e.Tok, e.Tok, e.Tok)
	return ret
}

func (c *Checker) inferFieldAccess(e *ast.FieldAccess) Type {
	if _, ok := c.env.Lookup(e.Target); !ok {
		err := diag.New(diag.CodeNameNotFound, fmt.Sprintf("Name not found in scope: %s", e.Target)).
			At(e.Tok.Line, e.Tok.Column)
		err = diag.Suggest(err, e.Target, c.env.Names())
		c.sink.Add(err)
	}
	return c.fresh()
}

func (c *Checker) inferBinary(e *ast.Binary) Type {
	lt := c.Infer(e.Left)
	rt := c.Infer(e.Right)

	switch e.Op {
	case ast.BinAdd, ast.BinSub, ast.BinMul, ast.BinDiv, ast.BinMod:
		c.addConstraint(lt, Int(), e.Left.Pos())
		c.addConstraint(rt, Int(), e.Right.Pos())
		return Int()
	case ast.BinAddFloat, ast.BinSubFloat, ast.BinMulFloat, ast.BinDivFloat, ast.BinModFloat:
		c.addConstraint(lt, Float(), e.Left.Pos())
		c.addConstraint(rt, Float(), e.Right.Pos())
		return Float()
	case ast.BinLess, ast.BinLessEquals, ast.BinGreater, ast.BinGreaterEquals:
		c.addConstraint(lt, Int(), e.Left.Pos())
		c.addConstraint(rt, Int(), e.Right.Pos())
		return Bool()
	case ast.BinLessFloat, ast.BinLessEqualsFloat, ast.BinGreaterFloat, ast.BinGreaterEqualsFloat:
		c.addConstraint(lt, Float(), e.Left.Pos())
		c.addConstraint(rt, Float(), e.Right.Pos())
		return Bool()
	case ast.BinEquals, ast.BinNotEquals, ast.BinEqualsFloat, ast.BinNotEqualsFloat:
		c.addConstraint(lt, rt, e.Tok)
		return Bool()
	case ast.BinAnd, ast.BinOr:
		c.addConstraint(lt, Bool(), e.Left.Pos())
		c.addConstraint(rt, Bool(), e.Right.Pos())
		return Bool()
	case ast.BinStringConcat:
		c.addConstraint(lt, String(), e.Left.Pos())
		c.addConstraint(rt, String(), e.Right.Pos())
		return String()
	}
	return c.fresh()
}

func (c *Checker) inferIsMatch(e *ast.IsMatch) Type {
	scrutinee := c.Infer(e.Scrutinee)
	result := c.fresh()
	seenDefault := false

	for i, arm := range e.Arms {
		c.env.Push()
		switch arm.Kind {
		case ast.PatternExpr:
			pt := c.Infer(arm.PatternExpr)
			c.addConstraint(pt, scrutinee, arm.PatternExpr.Pos())
		case ast.PatternCapture:
			c.env.Define(arm.Capture, scrutinee)
		case ast.PatternCaptureTag:
			payload := c.fresh()
			c.addConstraint(scrutinee, Tag(arm.TagName, payload), arm.Body.Pos())
			c.env.Define(arm.Capture, payload)
		case ast.PatternDefault:
			if seenDefault {
				c.sink.Add(diag.New(diag.CodeParseErr, "An `is` block cannot have multiple default arms.").
					At(arm.Body.Pos().Line, arm.Body.Pos().Column))
			}
			seenDefault = true
			if i != len(e.Arms)-1 {
				c.sink.Add(diag.New(diag.CodeParseErr, "A default arm must be the last arm of an `is` block.").
					At(arm.Body.Pos().Line, arm.Body.Pos().Column))
			}
		}
		if arm.Guard != nil {
			gt := c.Infer(arm.Guard)
			c.addConstraint(gt, Bool(), arm.Guard.Pos())
		}
		bt := c.Infer(arm.Body)
		c.addConstraint(result, bt, arm.Body.Pos())
		c.env.Pop()
	}

	if len(e.Arms) == 0 {
		c.sink.Add(diag.New(diag.CodeParseErr, "`is` block must have at least one arm").
			At(e.Tok.Line, e.Tok.Column))
	}
	return result
}

func (c *Checker) inferQuery(e *ast.Query) Type {
	c.env.Push()
	for _, term := range e.Include {
		info, ok := c.Components[term.Component]
		if !ok {
			c.sink.Add(diag.New(diag.CodeTypeNotFound, fmt.Sprintf("Type not found: %s", term.Component)).
				At(e.Tok.Line, e.Tok.Column))
			continue
		}
		fieldTypes := make([]Type, len(info.FieldOrder))
		for i, n := range info.FieldOrder {
			fieldTypes[i] = info.FieldTypes[n]
		}
		c.env.Define(term.Alias, Component(term.Component, fieldTypes...))
	}
	for _, term := range e.Exclude {
		if _, ok := c.Components[term.Component]; !ok {
			c.sink.Add(diag.New(diag.CodeTypeNotFound, fmt.Sprintf("Type not found: %s", term.Component)).
				At(e.Tok.Line, e.Tok.Column))
		}
	}
	bodyType := c.Infer(e.Body)
	c.env.Pop()
	return bodyType
}

// solve unifies every accumulated constraint in order, recording a
// TypeMismatch diagnostic for each failure rather than aborting (spec
// §4.3 "Failure policy").
func (c *Checker) solve() {
	for _, con := range c.constraints {
		if err := c.subst.Unify(con.a, con.b); err != nil {
			d := diag.New(diag.CodeTypeMismatch, err.Error()).
				At(con.mismatch.Line, con.mismatch.Column).
				WithContext("expected", Display(c.subst.Finalize(con.a))).
				WithContext("got", Display(c.subst.Finalize(con.b)))
			if con.hasSites {
				d = d.WithContext("declared_at_line", con.declaredAt.Line).
					WithContext("declared_at_column", con.declaredAt.Column).
					WithContext("provided_at_line", con.providedAt.Line).
					WithContext("provided_at_column", con.providedAt.Column)
			}
			c.sink.Add(d)
		}
	}
}

// ResolvedType returns expr's fully substituted type after CheckProgram
// has run; an expression the checker never saw gets a fresh variable.
func (c *Checker) ResolvedType(expr ast.Expr) Type {
	t, ok := c.exprTypes[expr]
	if !ok {
		return c.fresh()
	}
	return c.subst.Finalize(t)
}
