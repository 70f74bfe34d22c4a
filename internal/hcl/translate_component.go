package hcl

import (
	"context"

	hcllib "github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/pipegridgo/internal/cerr"
	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/schema"
	"github.com/vk/pipegridgo/internal/typetag"
)

// translateComponent converts a decoded component block into the immutable
// model.Component, enforcing the manifest well-formedness rules.
func translateComponent(ctx context.Context, sc *schema.Component) (*model.Component, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Translating component definition.", "name", sc.Name)

	if sc.Name == "" {
		return nil, cerr.New(cerr.MalformedComponent, "", "component name must not be empty")
	}
	if sc.Image == "" {
		return nil, cerr.New(cerr.MalformedComponent, sc.Name, "component image must not be empty")
	}

	comp := &model.Component{
		Name:        sc.Name,
		Description: sc.Description,
		Image:       sc.Image,
		InputIndex:  make(map[string]*model.Input),
		OutputIndex: make(map[string]*model.Output),
	}

	for _, in := range sc.Inputs {
		if _, exists := comp.InputIndex[in.Name]; exists {
			return nil, cerr.New(cerr.MalformedComponent, sc.Name, "duplicate input %q", in.Name)
		}
		translated, err := translateInput(sc.Name, in)
		if err != nil {
			return nil, err
		}
		comp.Inputs = append(comp.Inputs, translated)
		comp.InputIndex[in.Name] = translated
	}

	for _, out := range sc.Outputs {
		if _, exists := comp.OutputIndex[out.Name]; exists {
			return nil, cerr.New(cerr.MalformedComponent, sc.Name, "duplicate output %q", out.Name)
		}
		tag, err := typetag.ParseExpr(out.Type)
		if err != nil {
			return nil, cerr.New(cerr.MalformedComponent, sc.Name, "output %q: %v", out.Name, err)
		}
		if out.Path == "" {
			return nil, cerr.New(cerr.MalformedComponent, sc.Name, "output %q must declare a path", out.Name)
		}
		translated := &model.Output{Name: out.Name, Type: tag, Path: out.Path}
		comp.Outputs = append(comp.Outputs, translated)
		comp.OutputIndex[out.Name] = translated
	}

	command, err := translateCommand(comp, sc.Command)
	if err != nil {
		return nil, err
	}
	comp.Command = command

	return comp, nil
}

// translateInput processes a single input block, parsing its type tag and
// validating any default against it. An input is required unless it declares
// `required = false` or carries a default.
func translateInput(componentName string, in *schema.Input) (*model.Input, error) {
	tag, err := typetag.ParseExpr(in.Type)
	if err != nil {
		return nil, cerr.New(cerr.MalformedComponent, componentName, "input %q: %v", in.Name, err)
	}

	var defaultVal *cty.Value
	if in.Default != nil {
		val, diags := in.Default.Value(nil)
		if diags.HasErrors() {
			return nil, cerr.New(cerr.MalformedComponent, componentName, "input %q: invalid default value: %v", in.Name, diags.Error())
		}
		if !val.IsNull() {
			converted, err := convert.Convert(val, tag.CtyType())
			if err != nil {
				return nil, cerr.New(cerr.MalformedComponent, componentName, "input %q: default value does not match type %s: %v", in.Name, tag, err)
			}
			defaultVal = &converted
		}
	}

	required := defaultVal == nil
	if in.Required != nil {
		required = *in.Required && defaultVal == nil
	}

	return &model.Input{
		Name:     in.Name,
		Type:     tag,
		Required: required,
		Default:  defaultVal,
	}, nil
}

// translateCommand parses the command template list. Each element is either a
// literal value or an input.<name> placeholder; placeholders must reference a
// declared input.
func translateCommand(comp *model.Component, expr hcllib.Expression) ([]model.CommandToken, error) {
	tuple, ok := expr.(*hclsyntax.TupleConsExpr)
	if !ok {
		return nil, cerr.New(cerr.MalformedComponent, comp.Name, "command must be a list of tokens")
	}

	tokens := make([]model.CommandToken, 0, len(tuple.Exprs))
	for _, el := range tuple.Exprs {
		if st, ok := el.(*hclsyntax.ScopeTraversalExpr); ok {
			if st.Traversal.RootName() != "input" || len(st.Traversal) != 2 {
				return nil, cerr.New(cerr.MalformedComponent, comp.Name, "command placeholders must have the form input.<name>")
			}
			attr, ok := st.Traversal[1].(hcllib.TraverseAttr)
			if !ok {
				return nil, cerr.New(cerr.MalformedComponent, comp.Name, "command placeholders must have the form input.<name>")
			}
			if _, declared := comp.InputIndex[attr.Name]; !declared {
				return nil, cerr.New(cerr.MalformedComponent, comp.Name, "command references undeclared input %q", attr.Name)
			}
			tokens = append(tokens, model.CommandToken{Input: attr.Name})
			continue
		}

		val, diags := el.Value(nil)
		if diags.HasErrors() {
			return nil, cerr.New(cerr.MalformedComponent, comp.Name, "command tokens must be literals or input.<name> placeholders: %v", diags.Error())
		}
		str, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, cerr.New(cerr.MalformedComponent, comp.Name, "command token is not a string: %v", err)
		}
		tokens = append(tokens, model.CommandToken{Literal: str.AsString()})
	}

	return tokens, nil
}
