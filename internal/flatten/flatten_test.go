package flatten

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipegridgo/internal/cerr"
	"github.com/vk/pipegridgo/internal/check"
	"github.com/vk/pipegridgo/internal/graph"
	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/typetag"
	"github.com/vk/pipegridgo/internal/workflow"
)

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

func component(name string, inputs []*model.Input, outputs []*model.Output) *model.Component {
	c := &model.Component{
		Name:        name,
		Image:       "example.io/" + name + ":1",
		Inputs:      inputs,
		Outputs:     outputs,
		InputIndex:  make(map[string]*model.Input, len(inputs)),
		OutputIndex: make(map[string]*model.Output, len(outputs)),
	}
	for _, in := range inputs {
		c.InputIndex[in.Name] = in
	}
	for _, out := range outputs {
		c.OutputIndex[out.Name] = out
	}
	return c
}

func testComponents() map[string]*model.Component {
	return map[string]*model.Component{
		"producer": component("producer",
			nil,
			[]*model.Output{{Name: "out", Type: typetag.String, Path: "/tmp/out"}}),
		"consumer": component("consumer",
			[]*model.Input{{Name: "in", Type: typetag.String, Required: true}},
			[]*model.Output{{Name: "out", Type: typetag.String, Path: "/tmp/out"}}),
	}
}

func flattenPipeline(t *testing.T, pipeline *model.Pipeline, components map[string]*model.Component) *workflow.Document {
	t.Helper()
	ctx := context.Background()
	g, err := graph.Build(ctx, pipeline, components)
	require.NoError(t, err)
	v, err := check.Validate(ctx, g, nil)
	require.NoError(t, err)
	doc, err := Flatten(ctx, v)
	require.NoError(t, err)
	return doc
}

func findTemplate(t *testing.T, doc *workflow.Document, name string) *workflow.Template {
	t.Helper()
	for _, tmpl := range doc.Templates {
		if tmpl.Name == name {
			return tmpl
		}
	}
	t.Fatalf("template %q not found in document", name)
	return nil
}

func findTask(t *testing.T, tmpl *workflow.Template, name string) *workflow.Task {
	t.Helper()
	for _, task := range tmpl.Tasks {
		if task.Name == name {
			return task
		}
	}
	t.Fatalf("task %q not found in template %q", name, tmpl.Name)
	return nil
}

func TestFlattenLinearChain(t *testing.T) {
	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{Op: &model.Op{Name: "a", Component: "producer"}},
			{Op: &model.Op{Name: "b", Component: "consumer", Arguments: map[string]hcl.Expression{
				"in": expr(t, "op.a.output.out"),
			}}},
			{Op: &model.Op{Name: "c", Component: "consumer", Arguments: map[string]hcl.Expression{
				"in": expr(t, "op.b.output.out"),
			}}},
		},
	}, testComponents())

	assert.Equal(t, workflow.SchemaVersion, doc.Schema)
	assert.Equal(t, "demo", doc.Entrypoint)
	assert.Empty(t, doc.OnExit)

	// The entrypoint template is finalized after every template it references.
	require.Len(t, doc.Templates, 4)
	assert.Equal(t, "demo", doc.Templates[3].Name)
	assert.Equal(t, workflow.KindDAG, doc.Templates[3].Kind)

	root := findTemplate(t, doc, "demo")
	assert.Empty(t, findTask(t, root, "a").Depends)
	assert.Equal(t, []string{"a"}, findTask(t, root, "b").Depends)
	assert.Equal(t, []string{"b"}, findTask(t, root, "c").Depends)

	b := findTask(t, root, "b")
	require.Len(t, b.Arguments, 1)
	assert.Equal(t, "in", b.Arguments[0].Name)
	assert.Equal(t, "{{tasks.a.outputs.parameters.out}}", b.Arguments[0].Value)
}

func TestFlattenContainerTemplate(t *testing.T) {
	components := map[string]*model.Component{
		"trainer": {
			Name:  "trainer",
			Image: "example.io/trainer:2",
			Command: []model.CommandToken{
				{Literal: "python"},
				{Literal: "train.py"},
				{Literal: "--rate"},
				{Input: "rate"},
			},
			Inputs: []*model.Input{{Name: "rate", Type: typetag.Float, Required: true}},
			InputIndex: map[string]*model.Input{
				"rate": {Name: "rate", Type: typetag.Float, Required: true},
			},
			Outputs: []*model.Output{{Name: "model", Type: typetag.String, Path: "/out/model"}},
			OutputIndex: map[string]*model.Output{
				"model": {Name: "model", Type: typetag.String, Path: "/out/model"},
			},
		},
	}

	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{Op: &model.Op{
				Name:        "train",
				Component:   "trainer",
				Arguments:   map[string]hcl.Expression{"rate": expr(t, "0.1")},
				Retry:       2,
				Env:         map[string]string{"B": "2", "A": "1"},
				Resources:   &model.Resources{CPULimit: "2", MemoryRequest: "512Mi"},
				Labels:      map[string]string{"tier": "batch", "team": "ml"},
				Annotations: map[string]string{"audit/owner": "data-eng"},
			}},
		},
	}, components)

	tmpl := findTemplate(t, doc, "train")
	assert.Equal(t, workflow.KindContainer, tmpl.Kind)
	assert.Equal(t, "example.io/trainer:2", tmpl.Image)
	assert.Equal(t, []string{"python", "train.py", "--rate", "{{inputs.parameters.rate}}"}, tmpl.Command)

	require.Len(t, tmpl.Inputs, 1)
	assert.Equal(t, "rate", tmpl.Inputs[0].Name)

	require.Len(t, tmpl.Outputs, 1)
	assert.Equal(t, "model", tmpl.Outputs[0].Name)
	assert.Equal(t, "/out/model", tmpl.Outputs[0].Path)

	require.NotNil(t, tmpl.Retry)
	assert.Equal(t, 2, tmpl.Retry.Limit)

	require.Len(t, tmpl.Env, 2)
	assert.Equal(t, "A", tmpl.Env[0].Name)
	assert.Equal(t, "B", tmpl.Env[1].Name)

	require.NotNil(t, tmpl.Resources)
	assert.Equal(t, "2", tmpl.Resources.CPULimit)
	assert.Equal(t, "512Mi", tmpl.Resources.MemoryRequest)

	require.Len(t, tmpl.Labels, 2)
	assert.Equal(t, "team", tmpl.Labels[0].Name)
	assert.Equal(t, "ml", tmpl.Labels[0].Value)
	assert.Equal(t, "tier", tmpl.Labels[1].Name)

	require.Len(t, tmpl.Annotations, 1)
	assert.Equal(t, "audit/owner", tmpl.Annotations[0].Name)
	assert.Equal(t, "data-eng", tmpl.Annotations[0].Value)
}

func TestFlattenCommandPlaceholderWithoutBinding(t *testing.T) {
	components := map[string]*model.Component{
		"trainer": {
			Name:    "trainer",
			Image:   "example.io/trainer:2",
			Command: []model.CommandToken{{Input: "rate"}},
			Inputs:  []*model.Input{{Name: "rate", Type: typetag.Float}},
			InputIndex: map[string]*model.Input{
				"rate": {Name: "rate", Type: typetag.Float},
			},
			OutputIndex: map[string]*model.Output{},
		},
	}

	ctx := context.Background()
	g, err := graph.Build(ctx, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{{Op: &model.Op{Name: "train", Component: "trainer"}}},
	}, components)
	require.NoError(t, err)
	v, err := check.Validate(ctx, g, nil)
	require.NoError(t, err)

	_, err = Flatten(ctx, v)
	require.Error(t, err)
	assert.Equal(t, cerr.UnresolvedPlaceholder, cerr.KindOf(err))
}

func TestFlattenLoopWithItems(t *testing.T) {
	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{Loop: &model.Loop{
				Items: expr(t, `["a", "b", "c"]`),
				As:    "region",
				Body: []model.Item{
					{Op: &model.Op{Name: "deploy", Component: "consumer", Arguments: map[string]hcl.Expression{
						"in": expr(t, "loop.region"),
					}}},
				},
			}},
		},
	}, testComponents())

	loopTmpl := findTemplate(t, doc, "loop-1")
	assert.Equal(t, workflow.KindDAG, loopTmpl.Kind)
	require.Len(t, loopTmpl.Inputs, 1)
	assert.Equal(t, "region", loopTmpl.Inputs[0].Name)

	deploy := findTask(t, loopTmpl, "deploy")
	require.Len(t, deploy.Arguments, 1)
	assert.Equal(t, "{{inputs.parameters.region}}", deploy.Arguments[0].Value)

	root := findTemplate(t, doc, "demo")
	loopTask := findTask(t, root, "loop-1")
	assert.Equal(t, []any{"a", "b", "c"}, loopTask.WithItems)
	assert.Empty(t, loopTask.WithParam)
	require.Len(t, loopTask.Arguments, 1)
	assert.Equal(t, "region", loopTask.Arguments[0].Name)
	assert.Equal(t, "{{item}}", loopTask.Arguments[0].Value)
}

func TestFlattenLoopWithUpstreamParam(t *testing.T) {
	components := testComponents()
	listOut := &model.Output{Name: "rows", Type: typetag.List(typetag.KindString), Path: "/tmp/rows"}
	components["lister"] = &model.Component{
		Name:        "lister",
		Image:       "example.io/lister:1",
		InputIndex:  map[string]*model.Input{},
		Outputs:     []*model.Output{listOut},
		OutputIndex: map[string]*model.Output{"rows": listOut},
	}

	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{Op: &model.Op{Name: "list", Component: "lister"}},
			{Loop: &model.Loop{
				Items: expr(t, "op.list.output.rows"),
				As:    "row",
				Body: []model.Item{
					{Op: &model.Op{Name: "handle", Component: "consumer", Arguments: map[string]hcl.Expression{
						"in": expr(t, "loop.row"),
					}}},
				},
			}},
		},
	}, components)

	root := findTemplate(t, doc, "demo")
	loopTask := findTask(t, root, "loop-1")
	assert.Equal(t, "{{tasks.list.outputs.parameters.rows}}", loopTask.WithParam)
	assert.Nil(t, loopTask.WithItems)
	assert.Equal(t, []string{"list"}, loopTask.Depends)
}

func TestFlattenConditionWhen(t *testing.T) {
	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{Op: &model.Op{Name: "status", Component: "producer"}},
			{Condition: &model.Condition{
				Left:     expr(t, "op.status.output.out"),
				Operator: "==",
				Right:    expr(t, `"ready"`),
				Body: []model.Item{
					{Op: &model.Op{Name: "work", Component: "producer"}},
				},
			}},
		},
	}, testComponents())

	root := findTemplate(t, doc, "demo")
	condTask := findTask(t, root, "condition-1")
	assert.Equal(t, "{{tasks.status.outputs.parameters.out}} == ready", condTask.When)
	assert.Equal(t, []string{"status"}, condTask.Depends)

	condTmpl := findTemplate(t, doc, "condition-1")
	assert.Equal(t, workflow.KindDAG, condTmpl.Kind)
	findTask(t, condTmpl, "work")
}

func TestFlattenCrossScopeReferenceThreaded(t *testing.T) {
	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{Op: &model.Op{Name: "load", Component: "producer"}},
			{Condition: &model.Condition{
				Left:     expr(t, `"go"`),
				Operator: "==",
				Right:    expr(t, `"go"`),
				Body: []model.Item{
					{Op: &model.Op{Name: "train", Component: "consumer", Arguments: map[string]hcl.Expression{
						"in": expr(t, "op.load.output.out"),
					}}},
				},
			}},
		},
	}, testComponents())

	// The inner task reads the outside output through a scope input.
	condTmpl := findTemplate(t, doc, "condition-1")
	require.Len(t, condTmpl.Inputs, 1)
	threaded := condTmpl.Inputs[0].Name
	assert.Equal(t, "load-out", threaded)

	train := findTask(t, condTmpl, "train")
	require.Len(t, train.Arguments, 1)
	assert.Equal(t, "{{inputs.parameters.load-out}}", train.Arguments[0].Value)
	assert.Empty(t, train.Depends)

	// The invoking task supplies the value and carries the dependency.
	root := findTemplate(t, doc, "demo")
	condTask := findTask(t, root, "condition-1")
	require.Len(t, condTask.Arguments, 1)
	assert.Equal(t, "load-out", condTask.Arguments[0].Name)
	assert.Equal(t, "{{tasks.load.outputs.parameters.out}}", condTask.Arguments[0].Value)
	assert.Equal(t, []string{"load"}, condTask.Depends)
}

func TestFlattenPipelineParams(t *testing.T) {
	def := cty.StringVal("us-east-1")
	doc := flattenPipeline(t, &model.Pipeline{
		Name:   "demo",
		Params: []*model.Param{{Name: "region", Type: typetag.String, Default: &def}},
		Body: []model.Item{
			{Op: &model.Op{Name: "deploy", Component: "consumer", Arguments: map[string]hcl.Expression{
				"in": expr(t, "param.region"),
			}}},
		},
	}, testComponents())

	root := findTemplate(t, doc, "demo")
	require.Len(t, root.Inputs, 1)
	assert.Equal(t, "region", root.Inputs[0].Name)
	require.NotNil(t, root.Inputs[0].Default)
	assert.Equal(t, "us-east-1", *root.Inputs[0].Default)

	deploy := findTask(t, root, "deploy")
	require.Len(t, deploy.Arguments, 1)
	assert.Equal(t, "{{inputs.parameters.region}}", deploy.Arguments[0].Value)
	assert.Empty(t, deploy.Depends)
}

func TestFlattenParamThreadedIntoNestedScope(t *testing.T) {
	doc := flattenPipeline(t, &model.Pipeline{
		Name:   "demo",
		Params: []*model.Param{{Name: "region", Type: typetag.String}},
		Body: []model.Item{
			{Condition: &model.Condition{
				Left:     expr(t, `"go"`),
				Operator: "==",
				Right:    expr(t, `"go"`),
				Body: []model.Item{
					{Op: &model.Op{Name: "deploy", Component: "consumer", Arguments: map[string]hcl.Expression{
						"in": expr(t, "param.region"),
					}}},
				},
			}},
		},
	}, testComponents())

	condTmpl := findTemplate(t, doc, "condition-1")
	require.Len(t, condTmpl.Inputs, 1)
	assert.Equal(t, "region", condTmpl.Inputs[0].Name)

	root := findTemplate(t, doc, "demo")
	condTask := findTask(t, root, "condition-1")
	require.Len(t, condTask.Arguments, 1)
	assert.Equal(t, "region", condTask.Arguments[0].Name)
	assert.Equal(t, "{{inputs.parameters.region}}", condTask.Arguments[0].Value)
}

func TestFlattenExitHandler(t *testing.T) {
	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{ExitHandler: &model.ExitHandler{
				Handler: &model.Op{Name: "cleanup", Component: "producer"},
				Body: []model.Item{
					{Op: &model.Op{Name: "work", Component: "producer"}},
				},
			}},
		},
	}, testComponents())

	assert.Equal(t, "cleanup", doc.OnExit)

	cleanup := findTemplate(t, doc, "cleanup")
	assert.Equal(t, workflow.KindContainer, cleanup.Kind)

	// The handler is invoked by the engine, never as a dag task.
	for _, tmpl := range doc.Templates {
		for _, task := range tmpl.Tasks {
			assert.NotEqual(t, "cleanup", task.Template)
		}
	}

	ehTmpl := findTemplate(t, doc, "exit-handler-1")
	findTask(t, ehTmpl, "work")

	root := findTemplate(t, doc, "demo")
	ehTask := findTask(t, root, "exit-handler-1")
	assert.Empty(t, ehTask.Depends)
}

func TestFlattenOrderingEdgeBubblesAcrossScope(t *testing.T) {
	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{Op: &model.Op{Name: "prepare", Component: "producer"}},
			{Condition: &model.Condition{
				Left:     expr(t, `"go"`),
				Operator: "==",
				Right:    expr(t, `"go"`),
				Body: []model.Item{
					{Op: &model.Op{Name: "work", Component: "producer", After: []string{"prepare"}}},
				},
			}},
		},
	}, testComponents())

	// No value crosses the boundary, so nothing is threaded; the ordering
	// constraint moves to the invoking task.
	condTmpl := findTemplate(t, doc, "condition-1")
	assert.Empty(t, condTmpl.Inputs)
	assert.Empty(t, findTask(t, condTmpl, "work").Depends)

	root := findTemplate(t, doc, "demo")
	condTask := findTask(t, root, "condition-1")
	assert.Equal(t, []string{"prepare"}, condTask.Depends)
}

func TestFlattenSharedNeedThreadedOnce(t *testing.T) {
	// Two bindings on one inner node referencing the same outside output
	// share a single threaded input.
	components := testComponents()
	in2 := &model.Input{Name: "aux", Type: typetag.String}
	c := components["consumer"]
	c.Inputs = append(c.Inputs, in2)
	c.InputIndex["aux"] = in2

	doc := flattenPipeline(t, &model.Pipeline{
		Name: "demo",
		Body: []model.Item{
			{Op: &model.Op{Name: "load", Component: "producer"}},
			{Condition: &model.Condition{
				Left:     expr(t, `"go"`),
				Operator: "==",
				Right:    expr(t, `"go"`),
				Body: []model.Item{
					{Op: &model.Op{Name: "train", Component: "consumer", Arguments: map[string]hcl.Expression{
						"in":  expr(t, "op.load.output.out"),
						"aux": expr(t, "op.load.output.out"),
					}}},
				},
			}},
		},
	}, components)

	condTmpl := findTemplate(t, doc, "condition-1")
	assert.Len(t, condTmpl.Inputs, 1)
}
