package graph

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/typetag"
)

// Graph is the in-memory pipeline graph: the scope tree plus a flat node
// index in trace order. It is built once per compilation and discarded after
// emission.
type Graph struct {
	PipelineName string
	Params       []*model.Param

	// Root owns every node and nested scope.
	Root *Scope

	// Nodes lists every operation node in trace order. Trace order is the
	// deterministic iteration order for everything downstream.
	Nodes []*Node

	// ExitHandler is the cleanup node recorded as root-scope metadata. It is
	// not part of any scope's children and has no dependency edges; the
	// engine runs it unconditionally after the pipeline completes.
	ExitHandler *Node
}

// ScopeKind discriminates the scope group variants.
type ScopeKind int

const (
	ScopeRoot ScopeKind = iota
	ScopeCondition
	ScopeLoop
	ScopeExitHandler
)

// String returns the kind's source-level name.
func (k ScopeKind) String() string {
	switch k {
	case ScopeRoot:
		return "root"
	case ScopeCondition:
		return "condition"
	case ScopeLoop:
		return "loop"
	case ScopeExitHandler:
		return "exit_handler"
	default:
		return "unknown"
	}
}

// Scope is one control-flow bracket around an ordered list of children.
// Ownership is exclusive and tree-shaped: a child belongs to exactly one
// parent scope.
type Scope struct {
	Kind ScopeKind

	// ID is the deterministic scope identifier: the pipeline name for the
	// root, "<kind>-<n>" (numbered in trace order) otherwise.
	ID string

	Parent   *Scope
	Children []Element

	// Condition is set for ScopeCondition.
	Condition *ConditionSpec
	// Loop is set for ScopeLoop.
	Loop *LoopSpec

	// names tracks node names claimed in this scope, for duplicate suffixing.
	names map[string]bool
	// visible maps a source name to the most recently traced node registered
	// under it in this scope.
	visible map[string]*Node
}

// Element is one ordered child of a scope: either an operation node or a
// nested scope. Exactly one field is non-nil.
type Element struct {
	Node  *Node
	Scope *Scope
}

// ConditionSpec carries a condition scope's resolved predicate.
type ConditionSpec struct {
	Left     Operand
	Operator string // "==" or "!="
	Right    Operand
}

// Operand is one side of a condition predicate: a literal value or an
// upstream output reference.
type Operand struct {
	Literal *cty.Value
	Source  *Node
	Output  string
}

// Tag returns the operand's type tag.
func (o Operand) Tag() typetag.Tag {
	if o.Source != nil {
		return o.Source.Component.OutputIndex[o.Output].Type
	}
	if o.Literal != nil {
		return typetag.Infer(*o.Literal)
	}
	return typetag.Tag{}
}

// LoopSpec carries a loop scope's iterable source and item binding.
type LoopSpec struct {
	// Items is the materialized literal list when the source is a literal.
	Items *cty.Value
	// Source and Output identify an upstream list-typed output otherwise.
	Source *Node
	Output string
	// Binding is the loop-item name visible to children as loop.<Binding>.
	Binding string
}

// ElemTag returns the type tag of one loop item, or an invalid tag when the
// element type cannot be determined statically.
func (l *LoopSpec) ElemTag() typetag.Tag {
	if l.Source != nil {
		src := l.Source.Component.OutputIndex[l.Output].Type
		if src.IsList() {
			return primitive(src.Elem())
		}
		return typetag.Tag{}
	}
	if l.Items != nil {
		items := typetag.Infer(*l.Items)
		if items.IsList() {
			return primitive(items.Elem())
		}
	}
	return typetag.Tag{}
}

func primitive(k typetag.Kind) typetag.Tag {
	switch k {
	case typetag.KindString:
		return typetag.String
	case typetag.KindInteger:
		return typetag.Integer
	case typetag.KindFloat:
		return typetag.Float
	case typetag.KindBoolean:
		return typetag.Boolean
	default:
		return typetag.Tag{}
	}
}

// Node is one invocation of a component within the pipeline.
type Node struct {
	// ID is the globally unique node identifier: the scope path joined with
	// the deduplicated name, e.g. "loop-1/process".
	ID string
	// Name is the deduplicated name, unique within the owning scope.
	Name string
	// SourceName is the human-chosen name before suffixing.
	SourceName string

	Scope     *Scope
	Component *model.Component

	// Bindings maps input names to their classified bound values.
	Bindings map[string]*Binding

	// Deps are predecessor nodes (data references and ordering directives),
	// keyed by node ID. Dependents is the reverse index.
	Deps       map[string]*Node
	Dependents map[string]*Node

	Retry     int
	Env       map[string]string
	Resources *model.Resources

	// Labels and Annotations are pod metadata passed through untouched.
	Labels      map[string]string
	Annotations map[string]string
}

// BindingKind discriminates how an input is bound.
type BindingKind int

const (
	// BindLiteral binds a compile-time constant.
	BindLiteral BindingKind = iota
	// BindOutput binds an upstream operation's output, resolved by the
	// engine at execution time.
	BindOutput
	// BindParam binds a pipeline-level parameter.
	BindParam
	// BindLoopItem binds the enclosing loop's current item.
	BindLoopItem
)

// Binding is one classified input binding on a node.
type Binding struct {
	Input string
	Kind  BindingKind

	// Literal is set for BindLiteral.
	Literal cty.Value
	// Source and Output are set for BindOutput.
	Source *Node
	Output string
	// Param is the parameter name for BindParam.
	Param *model.Param
	// LoopScope is the enclosing loop whose item is bound, for BindLoopItem.
	LoopScope *Scope
}
