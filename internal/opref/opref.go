package opref

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// Kind discriminates the reference variants.
type Kind int

const (
	// KindOutput references an upstream operation's declared output.
	KindOutput Kind = iota
	// KindParam references a pipeline-level parameter.
	KindParam
	// KindLoopItem references the enclosing loop's item binding.
	KindLoopItem
)

// Ref is a parsed reference.
type Ref struct {
	Kind Kind

	// Op and Output are set for KindOutput.
	Op     string
	Output string

	// Name is set for KindParam (parameter name) and KindLoopItem (binding name).
	Name string
}

// String renders the reference in its source form.
func (r Ref) String() string {
	switch r.Kind {
	case KindOutput:
		return fmt.Sprintf("op.%s.output.%s", r.Op, r.Output)
	case KindParam:
		return "param." + r.Name
	case KindLoopItem:
		return "loop." + r.Name
	default:
		return "<invalid ref>"
	}
}

// FromTraversal parses a single variable traversal into a Ref. The second
// return value is false when the traversal does not start with one of the
// reference roots (op, param, loop); callers treat those as plain values.
// A traversal that starts with a reference root but has the wrong shape is
// an error, since silently ignoring it would hide a dependency.
func FromTraversal(tr hcl.Traversal) (Ref, bool, error) {
	root := tr.RootName()
	switch root {
	case "op":
		if len(tr) != 4 {
			return Ref{}, true, fmt.Errorf("operation references must have the form op.<name>.output.<output>")
		}
		nameAttr, ok1 := tr[1].(hcl.TraverseAttr)
		outKeyword, ok2 := tr[2].(hcl.TraverseAttr)
		outAttr, ok3 := tr[3].(hcl.TraverseAttr)
		if !ok1 || !ok2 || !ok3 {
			return Ref{}, true, fmt.Errorf("operation references must use attribute access, not indexing")
		}
		if outKeyword.Name != "output" {
			return Ref{}, true, fmt.Errorf("operation references must have the form op.<name>.output.<output>, got op.%s.%s", nameAttr.Name, outKeyword.Name)
		}
		return Ref{Kind: KindOutput, Op: nameAttr.Name, Output: outAttr.Name}, true, nil

	case "param":
		name, err := singleAttr(tr, "param.<name>")
		if err != nil {
			return Ref{}, true, err
		}
		return Ref{Kind: KindParam, Name: name}, true, nil

	case "loop":
		name, err := singleAttr(tr, "loop.<binding>")
		if err != nil {
			return Ref{}, true, err
		}
		return Ref{Kind: KindLoopItem, Name: name}, true, nil

	default:
		return Ref{}, false, nil
	}
}

func singleAttr(tr hcl.Traversal, form string) (string, error) {
	if len(tr) != 2 {
		return "", fmt.Errorf("references must have the form %s", form)
	}
	attr, ok := tr[1].(hcl.TraverseAttr)
	if !ok {
		return "", fmt.Errorf("references must have the form %s", form)
	}
	return attr.Name, nil
}

// FromExpr classifies an expression that consists of exactly one reference
// traversal. The second return value is false when the expression is not a
// reference at all (a plain literal). An expression that embeds a reference
// inside interpolation or arithmetic is an error: references are resolved by
// the downstream engine, so they cannot be combined with other values at
// compile time.
func FromExpr(expr hcl.Expression) (Ref, bool, error) {
	if st, ok := expr.(*hclsyntax.ScopeTraversalExpr); ok {
		return FromTraversal(st.Traversal)
	}
	for _, tr := range expr.Variables() {
		switch tr.RootName() {
		case "op", "param", "loop":
			return Ref{}, true, fmt.Errorf("references cannot be embedded in composite expressions")
		}
	}
	return Ref{}, false, nil
}
