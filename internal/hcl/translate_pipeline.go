package hcl

import (
	"context"
	"fmt"

	hcllib "github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/schema"
	"github.com/vk/pipegridgo/internal/typetag"
)

// translatePipeline converts a decoded pipeline block into the agnostic
// model, preserving the source order of the body as the trace order.
func translatePipeline(ctx context.Context, sp *schema.Pipeline) (*model.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Translating pipeline definition.", "name", sp.Name)

	if sp.Name == "" {
		return nil, fmt.Errorf("pipeline name must not be empty")
	}

	content, diags := sp.Body.Content(schema.PipelineBodySchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("pipeline %q: %w", sp.Name, diags)
	}

	pipeline := &model.Pipeline{Name: sp.Name}

	for _, block := range content.Blocks {
		if block.Type == "param" {
			param, err := translateParam(block)
			if err != nil {
				return nil, fmt.Errorf("pipeline %q: %w", sp.Name, err)
			}
			pipeline.Params = append(pipeline.Params, param)
			continue
		}
		item, err := translateBodyBlock(block)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", sp.Name, err)
		}
		pipeline.Body = append(pipeline.Body, item)
	}

	return pipeline, nil
}

// translateScopeBody walks the ordered contents of a condition, loop, or
// exit_handler body. param blocks are only legal at the pipeline top level.
func translateScopeBody(blocks hcllib.Blocks) ([]model.Item, error) {
	var items []model.Item
	for _, block := range blocks {
		if block.Type == "param" || block.Type == "handler" {
			if block.Type == "param" {
				return nil, fmt.Errorf("param blocks are only allowed at the pipeline top level")
			}
			continue // handler blocks are consumed by the exit_handler translation
		}
		item, err := translateBodyBlock(block)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func translateBodyBlock(block *hcllib.Block) (model.Item, error) {
	switch block.Type {
	case "op":
		op, err := translateOp(block)
		if err != nil {
			return model.Item{}, err
		}
		return model.Item{Op: op}, nil
	case "condition":
		cond, err := translateCondition(block)
		if err != nil {
			return model.Item{}, err
		}
		return model.Item{Condition: cond}, nil
	case "loop":
		loop, err := translateLoop(block)
		if err != nil {
			return model.Item{}, err
		}
		return model.Item{Loop: loop}, nil
	case "exit_handler":
		eh, err := translateExitHandler(block)
		if err != nil {
			return model.Item{}, err
		}
		return model.Item{ExitHandler: eh}, nil
	default:
		return model.Item{}, fmt.Errorf("unexpected block type %q", block.Type)
	}
}

func translateParam(block *hcllib.Block) (*model.Param, error) {
	name := block.Labels[0]
	content, diags := block.Body.Content(schema.ParamBodySchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("param %q: %w", name, diags)
	}

	tag, err := typetag.ParseExpr(content.Attributes["type"].Expr)
	if err != nil {
		return nil, fmt.Errorf("param %q: %w", name, err)
	}

	param := &model.Param{Name: name, Type: tag}
	if attr, ok := content.Attributes["default"]; ok {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("param %q: invalid default value: %s", name, diags.Error())
		}
		converted, err := convert.Convert(val, tag.CtyType())
		if err != nil {
			return nil, fmt.Errorf("param %q: default value does not match type %s: %w", name, tag, err)
		}
		param.Default = &converted
	}

	return param, nil
}

func translateOp(block *hcllib.Block) (*model.Op, error) {
	name := block.Labels[0]
	content, diags := block.Body.Content(schema.OpBodySchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("op %q: %w", name, diags)
	}

	op := &model.Op{Name: name, DeclRange: block.DefRange}

	if diags := gohcl.DecodeExpression(content.Attributes["component"].Expr, nil, &op.Component); diags.HasErrors() {
		return nil, fmt.Errorf("op %q: component must be a string: %s", name, diags.Error())
	}

	if attr, ok := content.Attributes["after"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &op.After); diags.HasErrors() {
			return nil, fmt.Errorf("op %q: after must be a list of operation names: %s", name, diags.Error())
		}
	}

	if attr, ok := content.Attributes["retry"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &op.Retry); diags.HasErrors() {
			return nil, fmt.Errorf("op %q: retry must be an integer: %s", name, diags.Error())
		}
		if op.Retry <= 0 {
			return nil, fmt.Errorf("op %q: retry must be a positive integer, got %d", name, op.Retry)
		}
	}

	if attr, ok := content.Attributes["env"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &op.Env); diags.HasErrors() {
			return nil, fmt.Errorf("op %q: env must be a map of strings: %s", name, diags.Error())
		}
	}

	if attr, ok := content.Attributes["labels"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &op.Labels); diags.HasErrors() {
			return nil, fmt.Errorf("op %q: labels must be a map of strings: %s", name, diags.Error())
		}
	}

	if attr, ok := content.Attributes["annotations"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &op.Annotations); diags.HasErrors() {
			return nil, fmt.Errorf("op %q: annotations must be a map of strings: %s", name, diags.Error())
		}
	}

	for _, inner := range content.Blocks {
		switch inner.Type {
		case "arguments":
			attrs, diags := inner.Body.JustAttributes()
			if diags.HasErrors() {
				return nil, fmt.Errorf("op %q: arguments: %w", name, diags)
			}
			op.Arguments = make(map[string]hcllib.Expression, len(attrs))
			for argName, attr := range attrs {
				op.Arguments[argName] = attr.Expr
			}
		case "resources":
			var res schema.Resources
			if diags := gohcl.DecodeBody(inner.Body, nil, &res); diags.HasErrors() {
				return nil, fmt.Errorf("op %q: resources: %w", name, diags)
			}
			translated, err := translateResources(&res)
			if err != nil {
				return nil, fmt.Errorf("op %q: %w", name, err)
			}
			op.Resources = translated
		}
	}

	return op, nil
}

func translateCondition(block *hcllib.Block) (*model.Condition, error) {
	content, diags := block.Body.Content(schema.ConditionBodySchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("condition: %w", diags)
	}

	cond := &model.Condition{
		Left:      content.Attributes["left"].Expr,
		Right:     content.Attributes["right"].Expr,
		Operator:  "==",
		DeclRange: block.DefRange,
	}

	if attr, ok := content.Attributes["operator"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &cond.Operator); diags.HasErrors() {
			return nil, fmt.Errorf("condition: operator must be a string: %s", diags.Error())
		}
		if cond.Operator != "==" && cond.Operator != "!=" {
			return nil, fmt.Errorf("condition: operator must be \"==\" or \"!=\", got %q", cond.Operator)
		}
	}

	body, err := translateScopeBody(content.Blocks)
	if err != nil {
		return nil, err
	}
	cond.Body = body
	return cond, nil
}

func translateLoop(block *hcllib.Block) (*model.Loop, error) {
	content, diags := block.Body.Content(schema.LoopBodySchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("loop: %w", diags)
	}

	loop := &model.Loop{
		Items:     content.Attributes["items"].Expr,
		DeclRange: block.DefRange,
	}

	if diags := gohcl.DecodeExpression(content.Attributes["as"].Expr, nil, &loop.As); diags.HasErrors() {
		return nil, fmt.Errorf("loop: as must be a string: %s", diags.Error())
	}
	if loop.As == "" {
		return nil, fmt.Errorf("loop: as must not be empty")
	}

	body, err := translateScopeBody(content.Blocks)
	if err != nil {
		return nil, err
	}
	loop.Body = body
	return loop, nil
}

func translateExitHandler(block *hcllib.Block) (*model.ExitHandler, error) {
	content, diags := block.Body.Content(schema.ExitHandlerBodySchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("exit_handler: %w", diags)
	}

	eh := &model.ExitHandler{DeclRange: block.DefRange}
	for _, inner := range content.Blocks {
		if inner.Type != "handler" {
			continue
		}
		if eh.Handler != nil {
			return nil, fmt.Errorf("exit_handler: only one handler block is allowed")
		}
		handler, err := translateOp(inner)
		if err != nil {
			return nil, err
		}
		eh.Handler = handler
	}
	if eh.Handler == nil {
		return nil, fmt.Errorf("exit_handler: a handler block is required")
	}

	body, err := translateScopeBody(content.Blocks)
	if err != nil {
		return nil, err
	}
	eh.Body = body
	return eh, nil
}

func translateResources(res *schema.Resources) (*model.Resources, error) {
	for field, v := range map[string]string{
		"cpu_request": res.CPURequest,
		"cpu_limit":   res.CPULimit,
	} {
		if v != "" && !cpuQuantity.MatchString(v) {
			return nil, fmt.Errorf("resources: %s %q is not a valid cpu quantity", field, v)
		}
	}
	for field, v := range map[string]string{
		"memory_request": res.MemoryRequest,
		"memory_limit":   res.MemoryLimit,
	} {
		if v != "" && !memoryQuantity.MatchString(v) {
			return nil, fmt.Errorf("resources: %s %q is not a valid memory quantity", field, v)
		}
	}
	if res.GPULimit < 0 {
		return nil, fmt.Errorf("resources: gpu_limit must not be negative")
	}

	return &model.Resources{
		CPURequest:    res.CPURequest,
		CPULimit:      res.CPULimit,
		MemoryRequest: res.MemoryRequest,
		MemoryLimit:   res.MemoryLimit,
		GPULimit:      res.GPULimit,
	}, nil
}
