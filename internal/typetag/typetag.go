// Package typetag defines the type vocabulary shared by component inputs,
// component outputs, and pipeline parameters, together with the compatibility
// rules the checker applies across step boundaries.
//
// Why not use cty.Type directly?
//
// cty collapses integers and floats into a single Number type, but the
// producer/consumer rules here are asymmetric: an integer output may feed a
// float input, never the reverse. Tags keep that distinction while cty remains
// the value layer underneath (literals, defaults, loop items).
package typetag

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Tag is a declared data type for a pipeline value.
type Tag struct {
	kind Kind
	elem Kind // element kind for List, KindInvalid otherwise
}

// Kind enumerates the primitive type vocabulary.
type Kind string

const (
	KindInvalid Kind = ""
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindBoolean Kind = "boolean"
	KindList    Kind = "list"
)

// Primitive tags.
var (
	String  = Tag{kind: KindString}
	Integer = Tag{kind: KindInteger}
	Float   = Tag{kind: KindFloat}
	Boolean = Tag{kind: KindBoolean}
)

// List returns a list tag with the given element kind.
func List(elem Kind) Tag {
	return Tag{kind: KindList, elem: elem}
}

// Kind returns the tag's primitive kind.
func (t Tag) Kind() Kind { return t.kind }

// Elem returns the element kind of a list tag.
func (t Tag) Elem() Kind { return t.elem }

// IsList reports whether the tag is a list type.
func (t Tag) IsList() bool { return t.kind == KindList }

// IsValid reports whether the tag carries a known kind.
func (t Tag) IsValid() bool { return t.kind != KindInvalid }

// String renders the tag the way it is written in a manifest.
func (t Tag) String() string {
	if t.kind == KindList {
		return fmt.Sprintf("list(%s)", t.elem)
	}
	return string(t.kind)
}

// ParseExpr converts an HCL type expression (e.g. `float`, `list(string)`)
// into a Tag. The expression forms mirror the manifest grammar: a bare
// keyword for primitives, a single-argument list(...) constructor for lists.
func ParseExpr(expr hcl.Expression) (Tag, error) {
	switch v := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return Tag{}, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		return parseKeyword(v.Traversal.RootName())

	case *hclsyntax.FunctionCallExpr:
		if v.Name != "list" {
			return Tag{}, fmt.Errorf("unknown type constructor %q", v.Name)
		}
		if len(v.Args) != 1 {
			return Tag{}, fmt.Errorf("list type constructor requires exactly one argument, got %d", len(v.Args))
		}
		inner, ok := v.Args[0].(*hclsyntax.ScopeTraversalExpr)
		if !ok || len(inner.Traversal) != 1 {
			return Tag{}, fmt.Errorf("list element type must be a primitive keyword")
		}
		elem, err := parseKeyword(inner.Traversal.RootName())
		if err != nil {
			return Tag{}, err
		}
		if elem.IsList() {
			return Tag{}, fmt.Errorf("nested list types are not supported")
		}
		return List(elem.kind), nil

	default:
		return Tag{}, fmt.Errorf("unsupported expression for type definition: %T", v)
	}
}

func parseKeyword(name string) (Tag, error) {
	switch name {
	case "string":
		return String, nil
	case "integer", "int":
		return Integer, nil
	case "float":
		return Float, nil
	case "bool", "boolean":
		return Boolean, nil
	default:
		return Tag{}, fmt.Errorf("unknown type tag %q", name)
	}
}

// CtyType returns the cty type used to hold values of this tag, for literal
// coercion and default validation.
func (t Tag) CtyType() cty.Type {
	switch t.kind {
	case KindString:
		return cty.String
	case KindInteger, KindFloat:
		return cty.Number
	case KindBoolean:
		return cty.Bool
	case KindList:
		return cty.List(Tag{kind: t.elem}.CtyType())
	default:
		return cty.DynamicPseudoType
	}
}

// Infer derives the most specific tag for a literal value. Whole numbers
// infer as integer so that `5` satisfies both integer and float inputs under
// the default matrix.
func Infer(v cty.Value) Tag {
	if v.IsNull() || !v.IsKnown() {
		return Tag{}
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return String
	case ty == cty.Bool:
		return Boolean
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			return Integer
		}
		return Float
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		elem := KindString
		if ty.IsListType() || ty.IsSetType() {
			elem = kindOfType(ty.ElementType())
		} else if v.LengthInt() > 0 {
			it := v.ElementIterator()
			it.Next()
			_, first := it.Element()
			elem = Infer(first).kind
		}
		if elem == KindInvalid {
			elem = KindString
		}
		return List(elem)
	default:
		return Tag{}
	}
}

// kindOfType maps a cty type to the loosest kind that can hold it. Numbers
// map to float because the concrete values are not inspectable here.
func kindOfType(ty cty.Type) Kind {
	switch {
	case ty == cty.String:
		return KindString
	case ty == cty.Bool:
		return KindBoolean
	case ty == cty.Number:
		return KindFloat
	default:
		return KindInvalid
	}
}
