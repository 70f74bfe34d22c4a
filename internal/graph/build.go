package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/pipegridgo/internal/cerr"
	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/opref"
)

// maxNameSuffix bounds the duplicate-name suffix search. Exhausting it
// signals a pathological naming conflict rather than ordinary reuse.
const maxNameSuffix = 1000

// builder carries the trace state for one Build call.
type builder struct {
	graph      *Graph
	components map[string]*model.Component
	params     map[string]*model.Param

	// scopeCounters numbers condition/loop/exit_handler scopes in trace
	// order so scope IDs are deterministic.
	scopeCounters map[ScopeKind]int
}

// Build constructs the pipeline graph from a pipeline definition in a
// single left-to-right trace.
func Build(ctx context.Context, pipeline *model.Pipeline, components map[string]*model.Component) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.", "pipeline", pipeline.Name)

	b := &builder{
		components:    components,
		params:        make(map[string]*model.Param, len(pipeline.Params)),
		scopeCounters: make(map[ScopeKind]int),
	}
	for _, p := range pipeline.Params {
		if _, exists := b.params[p.Name]; exists {
			return nil, fmt.Errorf("pipeline %q declares parameter %q more than once", pipeline.Name, p.Name)
		}
		b.params[p.Name] = p
	}

	root := &Scope{
		Kind:    ScopeRoot,
		ID:      pipeline.Name,
		names:   make(map[string]bool),
		visible: make(map[string]*Node),
	}
	b.graph = &Graph{
		PipelineName: pipeline.Name,
		Params:       pipeline.Params,
		Root:         root,
	}

	if err := b.traceBody(ctx, root, pipeline.Body); err != nil {
		return nil, err
	}

	logger.Debug("Build: graph construction complete.", "node_count", len(b.graph.Nodes))
	return b.graph, nil
}

// traceBody traces an ordered scope body, appending children to the scope.
func (b *builder) traceBody(ctx context.Context, scope *Scope, body []model.Item) error {
	for _, item := range body {
		switch {
		case item.Op != nil:
			node, err := b.traceOp(ctx, scope, item.Op)
			if err != nil {
				return err
			}
			scope.Children = append(scope.Children, Element{Node: node})

		case item.Condition != nil:
			child, err := b.traceCondition(ctx, scope, item.Condition)
			if err != nil {
				return err
			}
			scope.Children = append(scope.Children, Element{Scope: child})

		case item.Loop != nil:
			child, err := b.traceLoop(ctx, scope, item.Loop)
			if err != nil {
				return err
			}
			scope.Children = append(scope.Children, Element{Scope: child})

		case item.ExitHandler != nil:
			child, err := b.traceExitHandler(ctx, scope, item.ExitHandler)
			if err != nil {
				return err
			}
			scope.Children = append(scope.Children, Element{Scope: child})
		}
	}
	return nil
}

// newScope allocates a nested scope with a deterministic ID.
func (b *builder) newScope(parent *Scope, kind ScopeKind) *Scope {
	b.scopeCounters[kind]++
	var prefix string
	switch kind {
	case ScopeCondition:
		prefix = "condition"
	case ScopeLoop:
		prefix = "loop"
	case ScopeExitHandler:
		prefix = "exit-handler"
	}
	return &Scope{
		Kind:    kind,
		ID:      fmt.Sprintf("%s-%d", prefix, b.scopeCounters[kind]),
		Parent:  parent,
		names:   make(map[string]bool),
		visible: make(map[string]*Node),
	}
}

// traceOp creates an operation node and links its edges.
func (b *builder) traceOp(ctx context.Context, scope *Scope, op *model.Op) (*Node, error) {
	logger := ctxlog.FromContext(ctx)

	comp, ok := b.components[op.Component]
	if !ok {
		return nil, cerr.New(cerr.UnknownReference, op.Name, "unknown component %q", op.Component)
	}

	name, err := dedupeName(scope, op.Name)
	if err != nil {
		return nil, err
	}
	if name != op.Name {
		logger.Debug("Duplicate operation name deduplicated.", "source_name", op.Name, "name", name)
	}

	node := &Node{
		ID:          scopePathID(scope, name),
		Name:        name,
		SourceName:  op.Name,
		Scope:       scope,
		Component:   comp,
		Bindings:    make(map[string]*Binding),
		Deps:        make(map[string]*Node),
		Dependents:  make(map[string]*Node),
		Retry:       op.Retry,
		Env:         op.Env,
		Resources:   op.Resources,
		Labels:      op.Labels,
		Annotations: op.Annotations,
	}

	// Bind arguments in sorted order so failures are reported deterministically.
	argNames := make([]string, 0, len(op.Arguments))
	for argName := range op.Arguments {
		argNames = append(argNames, argName)
	}
	sort.Strings(argNames)

	for _, argName := range argNames {
		input, declared := comp.InputIndex[argName]
		if !declared {
			return nil, cerr.New(cerr.UnknownReference, node.ID, "argument %q does not match any declared input of component %q", argName, comp.Name)
		}
		binding, err := b.classifyBinding(scope, node, input.Name, op.Arguments[argName])
		if err != nil {
			return nil, err
		}
		node.Bindings[argName] = binding
	}

	// Explicit ordering-only edges.
	for _, depName := range op.After {
		dep := lookup(scope, depName)
		if dep == nil {
			return nil, cerr.New(cerr.UnknownReference, node.ID, "after references unknown operation %q", depName)
		}
		linkEdge(dep, node)
	}

	scope.names[name] = true
	scope.visible[op.Name] = node
	// A suffixed node is also addressable by its final name.
	scope.visible[name] = node
	b.graph.Nodes = append(b.graph.Nodes, node)

	return node, nil
}

// classifyBinding resolves one argument expression into a Binding and records
// any data-dependency edge it implies.
func (b *builder) classifyBinding(scope *Scope, node *Node, inputName string, expr hcl.Expression) (*Binding, error) {
	ref, isRef, err := opref.FromExpr(expr)
	if err != nil {
		return nil, cerr.New(cerr.UnresolvedPlaceholder, node.ID, "input %q: %v", inputName, err)
	}

	if !isRef {
		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return nil, cerr.New(cerr.UnresolvedPlaceholder, node.ID, "input %q: value is not a constant: %s", inputName, diags.Error())
		}
		return &Binding{Input: inputName, Kind: BindLiteral, Literal: val}, nil
	}

	switch ref.Kind {
	case opref.KindOutput:
		source, output, err := b.resolveOutputRef(scope, node.ID, ref)
		if err != nil {
			return nil, err
		}
		linkEdge(source, node)
		return &Binding{Input: inputName, Kind: BindOutput, Source: source, Output: output}, nil

	case opref.KindParam:
		param, ok := b.params[ref.Name]
		if !ok {
			return nil, cerr.New(cerr.UnknownReference, node.ID, "input %q references unknown pipeline parameter %q", inputName, ref.Name)
		}
		return &Binding{Input: inputName, Kind: BindParam, Param: param}, nil

	case opref.KindLoopItem:
		loopScope := enclosingLoop(scope, ref.Name)
		if loopScope == nil {
			return nil, cerr.New(cerr.UnresolvedPlaceholder, node.ID, "input %q references loop item %q outside a loop with that binding", inputName, ref.Name)
		}
		return &Binding{Input: inputName, Kind: BindLoopItem, LoopScope: loopScope}, nil

	default:
		return nil, cerr.New(cerr.UnknownReference, node.ID, "input %q: unsupported reference", inputName)
	}
}

// resolveOutputRef finds the producer node for an op.<name>.output.<out>
// reference. Only operations already traced in the current or an enclosing
// scope are visible; anything else is a forward reference and is rejected.
func (b *builder) resolveOutputRef(scope *Scope, subject string, ref opref.Ref) (*Node, string, error) {
	source := lookup(scope, ref.Op)
	if source == nil {
		return nil, "", cerr.New(cerr.UnknownReference, subject, "reference to operation %q which is not visible here (forward references are rejected)", ref.Op)
	}
	if _, ok := source.Component.OutputIndex[ref.Output]; !ok {
		return nil, "", cerr.New(cerr.UnknownReference, subject, "operation %q has no declared output %q", ref.Op, ref.Output)
	}
	return source, ref.Output, nil
}

// traceCondition builds a Condition scope around its body.
func (b *builder) traceCondition(ctx context.Context, parent *Scope, cond *model.Condition) (*Scope, error) {
	scope := b.newScope(parent, ScopeCondition)

	left, err := b.resolveOperand(parent, scope.ID, cond.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.resolveOperand(parent, scope.ID, cond.Right)
	if err != nil {
		return nil, err
	}
	scope.Condition = &ConditionSpec{Left: left, Operator: cond.Operator, Right: right}

	if err := b.traceBody(ctx, scope, cond.Body); err != nil {
		return nil, err
	}
	return scope, nil
}

// resolveOperand classifies one side of a condition predicate. Operands are
// resolved in the scope enclosing the condition, like the predicate of an if
// statement evaluated before entering its block.
func (b *builder) resolveOperand(scope *Scope, subject string, expr hcl.Expression) (Operand, error) {
	ref, isRef, err := opref.FromExpr(expr)
	if err != nil {
		return Operand{}, cerr.New(cerr.UnresolvedPlaceholder, subject, "condition operand: %v", err)
	}

	if !isRef {
		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return Operand{}, cerr.New(cerr.UnresolvedPlaceholder, subject, "condition operand is not a constant: %s", diags.Error())
		}
		return Operand{Literal: &val}, nil
	}

	if ref.Kind != opref.KindOutput {
		return Operand{}, cerr.New(cerr.UnknownReference, subject, "condition operands must be literals or upstream outputs, got %s", ref)
	}
	source, output, err := b.resolveOutputRef(scope, subject, ref)
	if err != nil {
		return Operand{}, err
	}
	return Operand{Source: source, Output: output}, nil
}

// traceLoop builds a Loop scope around its body.
func (b *builder) traceLoop(ctx context.Context, parent *Scope, loop *model.Loop) (*Scope, error) {
	scope := b.newScope(parent, ScopeLoop)

	spec := &LoopSpec{Binding: loop.As}
	ref, isRef, err := opref.FromExpr(loop.Items)
	if err != nil {
		return nil, cerr.New(cerr.UnresolvedPlaceholder, scope.ID, "loop items: %v", err)
	}
	if isRef {
		if ref.Kind != opref.KindOutput {
			return nil, cerr.New(cerr.UnknownReference, scope.ID, "loop items must be a literal list or an upstream output, got %s", ref)
		}
		source, output, err := b.resolveOutputRef(parent, scope.ID, ref)
		if err != nil {
			return nil, err
		}
		spec.Source = source
		spec.Output = output
	} else {
		val, diags := loop.Items.Value(nil)
		if diags.HasErrors() {
			return nil, cerr.New(cerr.UnresolvedPlaceholder, scope.ID, "loop items are not a constant list: %s", diags.Error())
		}
		if !val.CanIterateElements() {
			return nil, cerr.New(cerr.UnresolvedPlaceholder, scope.ID, "loop items must be a list")
		}
		spec.Items = &val
	}
	scope.Loop = spec

	if err := b.traceBody(ctx, scope, loop.Body); err != nil {
		return nil, err
	}
	return scope, nil
}

// traceExitHandler builds the wrapped scope and records the cleanup node as
// root-scope metadata. The handler runs unconditionally, so it may not carry
// data dependencies and only one may exist per pipeline.
func (b *builder) traceExitHandler(ctx context.Context, parent *Scope, eh *model.ExitHandler) (*Scope, error) {
	for s := parent; s != nil; s = s.Parent {
		if s.Kind == ScopeExitHandler {
			return nil, cerr.New(cerr.InvalidNesting, s.ID, "an exit handler may not contain another exit handler")
		}
	}
	if b.graph.ExitHandler != nil {
		return nil, cerr.New(cerr.InvalidNesting, b.graph.ExitHandler.Name, "only one exit handler is allowed per pipeline")
	}

	scope := b.newScope(parent, ScopeExitHandler)

	handler, err := b.buildHandlerNode(eh.Handler)
	if err != nil {
		return nil, err
	}
	b.graph.ExitHandler = handler

	if err := b.traceBody(ctx, scope, eh.Body); err != nil {
		return nil, err
	}
	return scope, nil
}

// buildHandlerNode constructs the cleanup node. Its arguments must be
// literals: upstream outputs may not exist by the time it runs.
func (b *builder) buildHandlerNode(op *model.Op) (*Node, error) {
	comp, ok := b.components[op.Component]
	if !ok {
		return nil, cerr.New(cerr.UnknownReference, op.Name, "unknown component %q", op.Component)
	}

	node := &Node{
		ID:          op.Name,
		Name:        op.Name,
		SourceName:  op.Name,
		Component:   comp,
		Bindings:    make(map[string]*Binding),
		Deps:        make(map[string]*Node),
		Dependents:  make(map[string]*Node),
		Retry:       op.Retry,
		Env:         op.Env,
		Resources:   op.Resources,
		Labels:      op.Labels,
		Annotations: op.Annotations,
	}

	argNames := make([]string, 0, len(op.Arguments))
	for argName := range op.Arguments {
		argNames = append(argNames, argName)
	}
	sort.Strings(argNames)

	for _, argName := range argNames {
		if _, declared := comp.InputIndex[argName]; !declared {
			return nil, cerr.New(cerr.UnknownReference, node.ID, "argument %q does not match any declared input of component %q", argName, comp.Name)
		}
		expr := op.Arguments[argName]
		if len(expr.Variables()) > 0 {
			return nil, cerr.New(cerr.UnknownReference, node.ID, "exit handler arguments must be literals; %q references other values", argName)
		}
		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return nil, cerr.New(cerr.UnresolvedPlaceholder, node.ID, "input %q: value is not a constant: %s", argName, diags.Error())
		}
		node.Bindings[argName] = &Binding{Input: argName, Kind: BindLiteral, Literal: val}
	}

	return node, nil
}

// dedupeName claims a unique name within the scope, suffixing duplicates
// deterministically.
func dedupeName(scope *Scope, name string) (string, error) {
	if !scope.names[name] {
		return name, nil
	}
	for i := 2; i <= maxNameSuffix; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if !scope.names[candidate] {
			return candidate, nil
		}
	}
	return "", cerr.New(cerr.DuplicateOperationAfterSuffixing, name, "could not find a free name after %d attempts", maxNameSuffix)
}

// lookup resolves an operation name in the current scope chain, innermost
// first.
func lookup(scope *Scope, name string) *Node {
	for s := scope; s != nil; s = s.Parent {
		if node, ok := s.visible[name]; ok {
			return node
		}
	}
	return nil
}

// enclosingLoop finds the nearest enclosing loop scope with the given item
// binding name.
func enclosingLoop(scope *Scope, binding string) *Scope {
	for s := scope; s != nil; s = s.Parent {
		if s.Kind == ScopeLoop && s.Loop.Binding == binding {
			return s
		}
	}
	return nil
}

// linkEdge records a predecessor edge. Self references cannot happen here:
// the consumer is not visible to itself during its own trace.
func linkEdge(from, to *Node) {
	if _, exists := to.Deps[from.ID]; exists {
		return
	}
	to.Deps[from.ID] = from
	from.Dependents[to.ID] = to
}

// scopePathID joins the scope chain into a globally unique node ID.
func scopePathID(scope *Scope, name string) string {
	if scope.Kind == ScopeRoot {
		return name
	}
	return scope.ID + "/" + name
}
