package model

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipegridgo/internal/typetag"
)

// Pipeline is the format-agnostic trace of a user-authored pipeline: an
// ordered body of operation invocations and control-flow brackets, plus the
// pipeline-level parameters.
type Pipeline struct {
	Name   string
	Params []*Param
	Body   []Item
}

// Param is a pipeline-level parameter declaration.
type Param struct {
	Name    string
	Type    typetag.Tag
	Default *cty.Value
}

// Item is one entry in a pipeline body, in source order. Exactly one field
// is non-nil.
type Item struct {
	Op          *Op
	Condition   *Condition
	Loop        *Loop
	ExitHandler *ExitHandler
}

// Op is one invocation of a component.
type Op struct {
	// Name is the human-chosen operation name; duplicates within a scope are
	// deduplicated by the graph builder, not rejected here.
	Name      string
	Component string

	// Arguments map input names to their raw binding expressions.
	Arguments map[string]hcl.Expression

	// After lists operation names this op must run after even without a data
	// dependency.
	After []string

	Retry     int
	Env       map[string]string
	Resources *Resources

	// Labels and Annotations are pod metadata passed through to the
	// container template for the engine to attach at scheduling time.
	Labels      map[string]string
	Annotations map[string]string

	// DeclRange locates the op block in pipeline source, for diagnostics.
	DeclRange hcl.Range
}

// Resources carries the pass-through resource requests and limits for an op.
// Values are quantity strings validated at load time; the compiler does not
// interpret them further.
type Resources struct {
	CPURequest    string
	CPULimit      string
	MemoryRequest string
	MemoryLimit   string
	GPULimit      int
}

// Condition is a conditional bracket around a sub-body.
type Condition struct {
	Left     hcl.Expression
	Operator string // "==" or "!="
	Right    hcl.Expression
	Body     []Item

	DeclRange hcl.Range
}

// Loop is an iteration bracket around a sub-body.
type Loop struct {
	// Items is either a literal list or a reference to an upstream
	// list-typed output.
	Items hcl.Expression
	// As is the loop-item binding name visible to the body as loop.<As>.
	As   string
	Body []Item

	DeclRange hcl.Range
}

// ExitHandler designates Handler as a cleanup operation that runs after the
// wrapped Body completes regardless of outcome.
type ExitHandler struct {
	Handler *Op
	Body    []Item

	DeclRange hcl.Range
}
