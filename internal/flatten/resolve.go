package flatten

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/pipegridgo/internal/cerr"
	"github.com/vk/pipegridgo/internal/graph"
)

// resolveBinding renders a node's input binding into the engine's templating
// syntax, relative to the scope the node's task lives in. The returned node,
// when non-nil, is a same-scope producer the task must depend on.
func (f *flattener) resolveBinding(state *scopeState, node *graph.Node, binding *graph.Binding) (string, *graph.Node, error) {
	switch binding.Kind {
	case graph.BindLiteral:
		value, err := renderValue(binding.Literal)
		if err != nil {
			return "", nil, cerr.New(cerr.UnresolvedPlaceholder, node.ID, "input %q: %v", binding.Input, err)
		}
		return value, nil, nil

	case graph.BindOutput:
		value, dep, err := f.resolveNeed(state, needOutput(binding.Source, binding.Output))
		return value, dep, err

	case graph.BindParam:
		value, dep, err := f.resolveNeed(state, needParam(binding.Param.Name))
		return value, dep, err

	case graph.BindLoopItem:
		value, dep, err := f.resolveNeed(state, needLoopItem(binding.LoopScope))
		return value, dep, err

	default:
		return "", nil, cerr.New(cerr.UnresolvedPlaceholder, node.ID, "input %q has an unsupported binding", binding.Input)
	}
}

// resolveNeed renders a need relative to the given scope. Needs satisfiable
// inside the scope resolve directly; anything else becomes a threaded input
// bound by the invoking task one level up.
func (f *flattener) resolveNeed(state *scopeState, n need) (string, *graph.Node, error) {
	switch {
	case n.source != nil:
		if n.source.Scope == state.scope {
			return fmt.Sprintf("{{tasks.%s.outputs.parameters.%s}}", n.source.Name, n.output), n.source, nil
		}

	case n.param != "":
		if state.scope.Kind == graph.ScopeRoot {
			return fmt.Sprintf("{{inputs.parameters.%s}}", n.param), nil, nil
		}

	default:
		if state.scope == n.loop {
			return fmt.Sprintf("{{inputs.parameters.%s}}", n.loop.Loop.Binding), nil, nil
		}
	}

	name := state.ensureInput(n)
	return fmt.Sprintf("{{inputs.parameters.%s}}", name), nil, nil
}

// resolveOperand renders one side of a condition predicate in the scope
// enclosing the condition.
func (f *flattener) resolveOperand(state *scopeState, o graph.Operand) (string, *graph.Node, error) {
	if o.Source != nil {
		return f.resolveNeed(state, needOutput(o.Source, o.Output))
	}
	value, err := renderValue(*o.Literal)
	if err != nil {
		return "", nil, cerr.New(cerr.UnresolvedPlaceholder, state.scope.ID, "condition operand: %v", err)
	}
	return value, nil, nil
}

// renderValue serializes a literal for an argument value or predicate
// operand. Primitives render bare; lists and other structured values render
// as JSON.
func renderValue(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("value is null")
	}
	if !v.IsKnown() {
		return "", fmt.Errorf("value is not known at compile time")
	}

	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		if v.True() {
			return "true", nil
		}
		return "false", nil
	case cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	}

	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return "", fmt.Errorf("cannot serialize value: %w", err)
	}
	return string(data), nil
}

// renderItems converts a literal loop list into the document's item values,
// preserving element types so iteration metadata stays faithful.
func renderItems(list cty.Value) ([]any, error) {
	if !list.IsKnown() || list.IsNull() {
		return nil, fmt.Errorf("items are not known at compile time")
	}

	var items []any
	for it := list.ElementIterator(); it.Next(); {
		_, el := it.Element()
		if el.IsNull() {
			return nil, fmt.Errorf("items must not contain null")
		}
		switch el.Type() {
		case cty.String:
			items = append(items, el.AsString())
		case cty.Bool:
			items = append(items, el.True())
		case cty.Number:
			bf := el.AsBigFloat()
			if bf.IsInt() {
				i, _ := bf.Int64()
				items = append(items, i)
			} else {
				fl, _ := bf.Float64()
				items = append(items, fl)
			}
		default:
			rendered, err := renderValue(el)
			if err != nil {
				return nil, err
			}
			items = append(items, rendered)
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("items list is empty")
	}
	return items, nil
}
