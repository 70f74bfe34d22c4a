// Package check validates a pipeline graph before flattening: acyclicity,
// bound required inputs, producer/consumer type compatibility, and
// well-formed scope nesting. Validation fails fast on the first violation.
//
// A successful run returns a Validated value, which is the only way into the
// flattener. The field is unexported, so an unvalidated graph cannot be
// smuggled past the checker at compile time.
package check

import (
	"context"
	"sort"

	"github.com/vk/pipegridgo/internal/cerr"
	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/graph"
	"github.com/vk/pipegridgo/internal/typetag"
)

// Validated is the phantom-state wrapper produced by a successful Validate.
type Validated struct {
	graph  *graph.Graph
	matrix typetag.Matrix
}

// Graph returns the validated graph.
func (v *Validated) Graph() *graph.Graph { return v.graph }

// Matrix returns the compatibility matrix the graph was validated under.
func (v *Validated) Matrix() typetag.Matrix { return v.matrix }

// Validate walks the full graph and returns it marked as validated, or the
// first violation found. A nil matrix selects the default compatibility rule.
func Validate(ctx context.Context, g *graph.Graph, matrix typetag.Matrix) (*Validated, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Validate: starting graph validation.", "node_count", len(g.Nodes))

	if matrix == nil {
		matrix = typetag.DefaultMatrix()
	}

	if err := detectCycles(g); err != nil {
		return nil, err
	}
	logger.Debug("Validate: cycle detection passed.")

	if err := checkScopeTree(g.Root, nil); err != nil {
		return nil, err
	}
	logger.Debug("Validate: scope nesting check passed.")

	for _, node := range g.Nodes {
		if err := checkNode(node, matrix); err != nil {
			return nil, err
		}
	}
	if g.ExitHandler != nil {
		if err := checkNode(g.ExitHandler, matrix); err != nil {
			return nil, err
		}
	}
	logger.Debug("Validate: node checks passed.")

	if err := checkScopeSpecs(g.Root, matrix); err != nil {
		return nil, err
	}
	logger.Debug("Validate: scope predicate checks passed.")

	return &Validated{graph: g, matrix: matrix}, nil
}

// detectCycles runs a three-color depth-first search over the dependency
// edges. The builder's forward-reference rejection makes cycles impossible
// for graphs it produces, but validation must not rely on who built the graph.
func detectCycles(g *graph.Graph) error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *graph.Node) error
	visit = func(n *graph.Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return cerr.New(cerr.CyclicDependency, n.ID, "dependency cycle detected involving this operation")
		}

		temporary[n.ID] = true
		for _, id := range sortedKeys(n.Dependents) {
			if err := visit(n.Dependents[id]); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, n := range g.Nodes {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkScopeTree verifies exclusive tree-shaped ownership and per-scope name
// uniqueness after suffixing.
func checkScopeTree(s *graph.Scope, parent *graph.Scope) error {
	if s.Parent != parent {
		return cerr.New(cerr.InvalidNesting, s.ID, "scope has an inconsistent parent link")
	}
	seen := make(map[string]bool)
	for _, child := range s.Children {
		if child.Node != nil {
			if seen[child.Node.Name] {
				return cerr.New(cerr.DuplicateOperationAfterSuffixing, child.Node.ID, "operation name %q is not unique within its scope", child.Node.Name)
			}
			seen[child.Node.Name] = true
			continue
		}
		if err := checkScopeTree(child.Scope, s); err != nil {
			return err
		}
	}
	return nil
}

// checkNode verifies required input coverage and binding type compatibility
// for one operation node.
func checkNode(node *graph.Node, matrix typetag.Matrix) error {
	for _, input := range node.Component.Inputs {
		binding, bound := node.Bindings[input.Name]
		if !bound {
			if input.Required {
				return cerr.New(cerr.UnboundRequiredInput, node.ID, "required input %q of component %q has no binding and no default", input.Name, node.Component.Name)
			}
			continue
		}

		produced, known := bindingTag(binding)
		if !known {
			continue
		}
		if !matrix.Compatible(produced, input.Type) {
			return cerr.New(cerr.TypeMismatch, node.ID, "input %q expects %s but is bound to a %s value", input.Name, input.Type, produced)
		}
	}
	return nil
}

// bindingTag derives the produced type tag for a binding. The second return
// value is false when no static tag is available and the check is skipped.
func bindingTag(binding *graph.Binding) (typetag.Tag, bool) {
	switch binding.Kind {
	case graph.BindLiteral:
		tag := typetag.Infer(binding.Literal)
		return tag, tag.IsValid()
	case graph.BindOutput:
		return binding.Source.Component.OutputIndex[binding.Output].Type, true
	case graph.BindParam:
		return binding.Param.Type, true
	case graph.BindLoopItem:
		tag := binding.LoopScope.Loop.ElemTag()
		return tag, tag.IsValid()
	default:
		return typetag.Tag{}, false
	}
}

// checkScopeSpecs validates condition operand comparability and loop source
// list-ness across the scope tree.
func checkScopeSpecs(s *graph.Scope, matrix typetag.Matrix) error {
	switch s.Kind {
	case graph.ScopeCondition:
		left, right := s.Condition.Left.Tag(), s.Condition.Right.Tag()
		if left.IsValid() && right.IsValid() && !matrix.Comparable(left, right) {
			return cerr.New(cerr.TypeMismatch, s.ID, "condition compares incomparable types %s and %s", left, right)
		}
	case graph.ScopeLoop:
		if src := s.Loop.Source; src != nil {
			tag := src.Component.OutputIndex[s.Loop.Output].Type
			if !tag.IsList() {
				return cerr.New(cerr.TypeMismatch, s.ID, "loop items source %s.%s is not list-typed (%s)", src.Name, s.Loop.Output, tag)
			}
		} else if s.Loop.Items != nil {
			if tag := typetag.Infer(*s.Loop.Items); tag.IsValid() && !tag.IsList() {
				return cerr.New(cerr.TypeMismatch, s.ID, "loop items literal is not a list (%s)", tag)
			}
		}
	}

	for _, child := range s.Children {
		if child.Scope != nil {
			if err := checkScopeSpecs(child.Scope, matrix); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]*graph.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
