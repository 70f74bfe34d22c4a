package flatten

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/pipegridgo/internal/cerr"
	"github.com/vk/pipegridgo/internal/check"
	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/graph"
	"github.com/vk/pipegridgo/internal/workflow"
)

// flattener carries the emission state for one Flatten call.
type flattener struct {
	g     *graph.Graph
	doc   *workflow.Document
	names map[string]bool
}

// Flatten converts a validated graph into a workflow document. It only
// accepts the checker's output; there is no way to flatten an unvalidated
// graph.
func Flatten(ctx context.Context, v *check.Validated) (*workflow.Document, error) {
	logger := ctxlog.FromContext(ctx)
	g := v.Graph()
	logger.Debug("Flatten: starting template emission.", "pipeline", g.PipelineName)

	f := &flattener{
		g: g,
		doc: &workflow.Document{
			Schema: workflow.SchemaVersion,
		},
		names: make(map[string]bool),
	}

	if g.ExitHandler != nil {
		tmpl, err := f.containerTemplate(g.ExitHandler)
		if err != nil {
			return nil, err
		}
		f.doc.OnExit = tmpl.Name
	}

	rootState, err := f.walkScope(g.Root)
	if err != nil {
		return nil, err
	}
	f.doc.Entrypoint = rootState.tmpl.Name

	logger.Debug("Flatten: template emission complete.", "template_count", len(f.doc.Templates))
	return f.doc, nil
}

// claim reserves a globally unique template name, suffixing on collision the
// same way the builder deduplicates operation names.
func (f *flattener) claim(base string) string {
	if !f.names[base] {
		f.names[base] = true
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !f.names[candidate] {
			f.names[candidate] = true
			return candidate
		}
	}
}

// walkScope emits every template in the scope subtree and finally the
// scope's own dag template.
func (f *flattener) walkScope(s *graph.Scope) (*scopeState, error) {
	state := newScopeState(s)

	if s.Kind == graph.ScopeLoop {
		// The loop template receives the current item through its binding
		// parameter; the invoking task supplies {{item}}.
		state.declareInput(s.Loop.Binding)
	}

	for _, child := range s.Children {
		var task *workflow.Task
		var err error
		if child.Node != nil {
			task, err = f.opTask(state, child.Node)
		} else {
			task, err = f.scopeTask(state, child.Scope)
		}
		if err != nil {
			return nil, err
		}
		state.tasks = append(state.tasks, task)
	}

	name := s.ID
	if s.Kind == graph.ScopeRoot {
		name = f.g.PipelineName
	}
	tmpl := &workflow.Template{
		Name:  f.claim(name),
		Kind:  workflow.KindDAG,
		Tasks: state.tasks,
	}

	if s.Kind == graph.ScopeRoot {
		for _, p := range f.g.Params {
			param := &workflow.Parameter{Name: p.Name}
			if p.Default != nil {
				rendered, err := renderValue(*p.Default)
				if err != nil {
					return nil, cerr.New(cerr.UnresolvedPlaceholder, tmpl.Name, "parameter %q default: %v", p.Name, err)
				}
				param.Default = &rendered
			}
			tmpl.Inputs = append(tmpl.Inputs, param)
		}
	}
	for _, in := range state.inputOrder {
		tmpl.Inputs = append(tmpl.Inputs, &workflow.Parameter{Name: in})
	}

	state.tmpl = tmpl
	f.doc.Templates = append(f.doc.Templates, tmpl)
	return state, nil
}

// opTask emits the container template for a node and the task invoking it.
func (f *flattener) opTask(state *scopeState, node *graph.Node) (*workflow.Task, error) {
	tmpl, err := f.containerTemplate(node)
	if err != nil {
		return nil, err
	}

	task := &workflow.Task{Name: node.Name, Template: tmpl.Name}
	deps := make(map[string]bool)

	inputNames := make([]string, 0, len(node.Bindings))
	for name := range node.Bindings {
		inputNames = append(inputNames, name)
	}
	sort.Strings(inputNames)

	for _, inputName := range inputNames {
		binding := node.Bindings[inputName]
		value, dep, err := f.resolveBinding(state, node, binding)
		if err != nil {
			return nil, err
		}
		task.Arguments = append(task.Arguments, &workflow.Argument{Name: inputName, Value: value})
		if dep != nil {
			deps[dep.Name] = true
		}
	}

	// Remaining edges (ordering-only directives, or data edges already
	// counted above). Edges into ancestor scopes bubble up to the scope's
	// own invocation.
	for _, id := range sortedNodeKeys(node.Deps) {
		dep := node.Deps[id]
		if dep.Scope == state.scope {
			deps[dep.Name] = true
		} else {
			state.extDeps[dep.ID] = dep
		}
	}

	task.Depends = sortedSet(deps)
	return task, nil
}

// scopeTask recursively emits a nested scope's templates and builds the task
// invoking its dag template.
func (f *flattener) scopeTask(state *scopeState, s *graph.Scope) (*workflow.Task, error) {
	child, err := f.walkScope(s)
	if err != nil {
		return nil, err
	}

	task := &workflow.Task{Name: s.ID, Template: child.tmpl.Name}
	deps := make(map[string]bool)

	switch s.Kind {
	case graph.ScopeLoop:
		task.Arguments = append(task.Arguments, &workflow.Argument{Name: s.Loop.Binding, Value: "{{item}}"})
		if s.Loop.Source != nil {
			value, dep, err := f.resolveNeed(state, needOutput(s.Loop.Source, s.Loop.Output))
			if err != nil {
				return nil, err
			}
			task.WithParam = value
			if dep != nil {
				deps[dep.Name] = true
			}
		} else {
			items, err := renderItems(*s.Loop.Items)
			if err != nil {
				return nil, cerr.New(cerr.UnresolvedPlaceholder, s.ID, "loop items: %v", err)
			}
			task.WithItems = items
		}

	case graph.ScopeCondition:
		left, depL, err := f.resolveOperand(state, s.Condition.Left)
		if err != nil {
			return nil, err
		}
		right, depR, err := f.resolveOperand(state, s.Condition.Right)
		if err != nil {
			return nil, err
		}
		task.When = fmt.Sprintf("%s %s %s", left, s.Condition.Operator, right)
		if depL != nil {
			deps[depL.Name] = true
		}
		if depR != nil {
			deps[depR.Name] = true
		}
	}

	// Bind the child scope's threaded inputs in this scope. Inputs without a
	// need (the loop item binding) are bound above, not threaded.
	for _, inputName := range child.inputOrder {
		n, threaded := child.inputNeeds[inputName]
		if !threaded {
			continue
		}
		value, dep, err := f.resolveNeed(state, n)
		if err != nil {
			return nil, err
		}
		task.Arguments = append(task.Arguments, &workflow.Argument{Name: inputName, Value: value})
		if dep != nil {
			deps[dep.Name] = true
		}
	}

	// Bubble ordering dependencies that cross this scope boundary.
	for _, id := range sortedNodeKeys(child.extDeps) {
		dep := child.extDeps[id]
		if dep.Scope == state.scope {
			deps[dep.Name] = true
		} else {
			state.extDeps[dep.ID] = dep
		}
	}

	task.Depends = sortedSet(deps)
	return task, nil
}

func sortedNodeKeys(m map[string]*graph.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
