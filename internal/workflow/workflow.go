// Package workflow defines the compiled workflow specification document and
// its serializer. The document is what the downstream orchestration engine
// consumes; templates reference each other strictly by name and are emitted
// in finalization order, so the document is acyclic by construction.
package workflow

// SchemaVersion identifies the document schema. Consumers content-address
// and diff compiled documents, so the schema only changes with a new version
// string.
const SchemaVersion = "pipegrid/v1"

// Template kinds.
const (
	KindContainer = "container"
	KindDAG       = "dag"
)

// Document is the compiled workflow specification.
type Document struct {
	Schema     string      `yaml:"schema"`
	Entrypoint string      `yaml:"entrypoint"`
	OnExit     string      `yaml:"onExit,omitempty"`
	Templates  []*Template `yaml:"templates"`
}

// Template is one flattened, emission-ready unit: a leaf container step or a
// graph of task references.
type Template struct {
	Name   string       `yaml:"name"`
	Kind   string       `yaml:"kind"`
	Inputs []*Parameter `yaml:"inputs,omitempty"`

	// Container fields (KindContainer).
	Image       string             `yaml:"image,omitempty"`
	Command     []string           `yaml:"command,omitempty"`
	Env         []*EnvVar          `yaml:"env,omitempty"`
	Outputs     []*OutputParameter `yaml:"outputs,omitempty"`
	Retry       *Retry             `yaml:"retry,omitempty"`
	Resources   *Resources         `yaml:"resources,omitempty"`
	Labels      []*MetadataEntry   `yaml:"labels,omitempty"`
	Annotations []*MetadataEntry   `yaml:"annotations,omitempty"`

	// DAG fields (KindDAG).
	Tasks []*Task `yaml:"tasks,omitempty"`
}

// Parameter is a named template input, with an optional default.
type Parameter struct {
	Name    string  `yaml:"name"`
	Default *string `yaml:"default,omitempty"`
}

// OutputParameter is a declared container output and the path the engine
// collects it from.
type OutputParameter struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// EnvVar is one container environment variable.
type EnvVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// MetadataEntry is one pod label or annotation, passed through for the
// engine to attach at scheduling time.
type MetadataEntry struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Retry is the pass-through retry policy for a container step.
type Retry struct {
	Limit int `yaml:"limit"`
}

// Resources carries the pass-through resource requests and limits.
type Resources struct {
	CPURequest    string `yaml:"cpuRequest,omitempty"`
	CPULimit      string `yaml:"cpuLimit,omitempty"`
	MemoryRequest string `yaml:"memoryRequest,omitempty"`
	MemoryLimit   string `yaml:"memoryLimit,omitempty"`
	GPULimit      int    `yaml:"gpuLimit,omitempty"`
}

// Task is one node of a DAG template: an invocation of another template with
// its predecessor set and control metadata.
type Task struct {
	Name      string      `yaml:"name"`
	Template  string      `yaml:"template"`
	Depends   []string    `yaml:"depends,omitempty"`
	Arguments []*Argument `yaml:"arguments,omitempty"`

	// Loop metadata: WithItems iterates a literal list, WithParam an
	// upstream list-valued output resolved at execution time.
	WithItems []any  `yaml:"withItems,omitempty"`
	WithParam string `yaml:"withParam,omitempty"`

	// When gates the task on a condition predicate.
	When string `yaml:"when,omitempty"`
}

// Argument is one parameter binding passed to the invoked template.
type Argument struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}
