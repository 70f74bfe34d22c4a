// Package schema defines the HCL-tagged structures used for the first
// decoding pass over component manifests and pipeline files. These structs
// stay close to the source syntax; the hcl loader translates them into the
// format-agnostic model.
package schema

import "github.com/hashicorp/hcl/v2"

// --- Component manifest structures ---

// ComponentFile is the top-level structure of a component manifest file,
// containing one or more 'component' blocks.
type ComponentFile struct {
	Components []*Component `hcl:"component,block"`
	Body       hcl.Body     `hcl:",remain"`
}

// Component represents a single 'component' block.
type Component struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Image       string         `hcl:"image"`
	Command     hcl.Expression `hcl:"command"`
	Inputs      []*Input       `hcl:"input,block"`
	Outputs     []*Output      `hcl:"output,block"`
}

// Input defines a single typed input parameter of a component.
type Input struct {
	Name     string         `hcl:"name,label"`
	Type     hcl.Expression `hcl:"type"`
	Required *bool          `hcl:"required,optional"`
	Default  hcl.Expression `hcl:"default,optional"`
}

// Output defines a single typed output parameter of a component and the
// container path the engine collects it from.
type Output struct {
	Name string         `hcl:"name,label"`
	Type hcl.Expression `hcl:"type"`
	Path string         `hcl:"path"`
}

// --- Pipeline structures ---
//
// The pipeline body interleaves op, condition, loop, and exit_handler blocks
// whose source order is the trace order, so it cannot be decoded with gohcl
// struct tags (those split blocks by type and lose interleaving). The loader
// walks the body with hcl.BodySchema instead; the schemas live here so the
// grammar is in one place.

// PipelineFile is the top-level structure of a pipeline definition file.
type PipelineFile struct {
	Pipelines []*Pipeline `hcl:"pipeline,block"`
	Body      hcl.Body    `hcl:",remain"`
}

// Pipeline represents a 'pipeline' block; its body is walked manually.
type Pipeline struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// PipelineBodySchema matches the ordered contents of a pipeline or scope body.
var PipelineBodySchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "param", LabelNames: []string{"name"}},
		{Type: "op", LabelNames: []string{"name"}},
		{Type: "condition"},
		{Type: "loop"},
		{Type: "exit_handler"},
	},
}

// OpBodySchema matches the contents of an 'op' block.
var OpBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "component", Required: true},
		{Name: "after"},
		{Name: "retry"},
		{Name: "env"},
		{Name: "labels"},
		{Name: "annotations"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "arguments"},
		{Type: "resources"},
	},
}

// ConditionBodySchema matches the attributes of a 'condition' block; nested
// operations are picked up by a recursive walk with PipelineBodySchema.
var ConditionBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "left", Required: true},
		{Name: "operator"},
		{Name: "right", Required: true},
	},
	Blocks: PipelineBodySchema.Blocks,
}

// LoopBodySchema matches the attributes of a 'loop' block.
var LoopBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "items", Required: true},
		{Name: "as", Required: true},
	},
	Blocks: PipelineBodySchema.Blocks,
}

// ExitHandlerBodySchema matches an 'exit_handler' block: one 'handler' block
// naming the cleanup operation plus the wrapped body.
var ExitHandlerBodySchema = &hcl.BodySchema{
	Blocks: append([]hcl.BlockHeaderSchema{
		{Type: "handler", LabelNames: []string{"name"}},
	}, PipelineBodySchema.Blocks...),
}

// ParamBodySchema matches the contents of a 'param' block.
var ParamBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
		{Name: "default"},
	},
}

// Resources represents a 'resources' block on an op.
type Resources struct {
	CPURequest    string `hcl:"cpu_request,optional"`
	CPULimit      string `hcl:"cpu_limit,optional"`
	MemoryRequest string `hcl:"memory_request,optional"`
	MemoryLimit   string `hcl:"memory_limit,optional"`
	GPULimit      int    `hcl:"gpu_limit,optional"`
}
