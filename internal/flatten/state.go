package flatten

import (
	"fmt"
	"strings"

	"github.com/vk/pipegridgo/internal/graph"
	"github.com/vk/pipegridgo/internal/workflow"
)

// need identifies a value a scope requires from outside itself: an upstream
// output, a pipeline parameter, or an enclosing loop's item.
type need struct {
	source *graph.Node
	output string
	param  string
	loop   *graph.Scope
}

func needOutput(source *graph.Node, output string) need {
	return need{source: source, output: output}
}

func needParam(name string) need {
	return need{param: name}
}

func needLoopItem(loop *graph.Scope) need {
	return need{loop: loop}
}

// key returns a stable identity for deduplicating threaded inputs.
func (n need) key() string {
	switch {
	case n.source != nil:
		return "op:" + n.source.ID + ":" + n.output
	case n.param != "":
		return "param:" + n.param
	default:
		return "loop:" + n.loop.ID
	}
}

// inputName returns the template parameter name used when this need is
// threaded into a scope.
func (n need) inputName() string {
	switch {
	case n.source != nil:
		return sanitize(n.source.ID) + "-" + n.output
	case n.param != "":
		return n.param
	default:
		return n.loop.Loop.Binding
	}
}

// sanitize converts a node ID into a template-name-safe form.
func sanitize(id string) string {
	return strings.ReplaceAll(id, "/", "-")
}

// scopeState accumulates one scope's template while its children are walked.
type scopeState struct {
	scope *graph.Scope
	tmpl  *workflow.Template
	tasks []*workflow.Task

	// Threaded inputs, in claim order. inputNeeds is empty for inputs
	// declared directly (the loop item binding).
	inputOrder []string
	inputNeeds map[string]need
	needIndex  map[string]string

	// extDeps are predecessor nodes in enclosing scopes; the invoking task
	// one level up must depend on them.
	extDeps map[string]*graph.Node
}

func newScopeState(s *graph.Scope) *scopeState {
	return &scopeState{
		scope:      s,
		inputNeeds: make(map[string]need),
		needIndex:  make(map[string]string),
		extDeps:    make(map[string]*graph.Node),
	}
}

// declareInput registers an input that is bound directly by the invoking
// task rather than threaded from a need.
func (st *scopeState) declareInput(name string) {
	st.inputOrder = append(st.inputOrder, name)
}

// ensureInput threads a need into the scope, returning the parameter name.
// Repeated needs share one parameter.
func (st *scopeState) ensureInput(n need) string {
	if name, ok := st.needIndex[n.key()]; ok {
		return name
	}

	name := n.inputName()
	if st.inputTaken(name) {
		for i := 2; ; i++ {
			candidate := fmt.Sprintf("%s-%d", name, i)
			if !st.inputTaken(candidate) {
				name = candidate
				break
			}
		}
	}

	st.inputOrder = append(st.inputOrder, name)
	st.inputNeeds[name] = n
	st.needIndex[n.key()] = name
	return name
}

func (st *scopeState) inputTaken(name string) bool {
	for _, existing := range st.inputOrder {
		if existing == name {
			return true
		}
	}
	return false
}
