package flatten

import (
	"fmt"
	"sort"

	"github.com/vk/pipegridgo/internal/cerr"
	"github.com/vk/pipegridgo/internal/graph"
	"github.com/vk/pipegridgo/internal/workflow"
)

// containerTemplate emits the leaf template for one operation node and
// appends it to the document.
func (f *flattener) containerTemplate(node *graph.Node) (*workflow.Template, error) {
	comp := node.Component

	tmpl := &workflow.Template{
		Name:  f.claim(sanitize(node.ID)),
		Kind:  workflow.KindContainer,
		Image: comp.Image,
	}

	// An input appears on the template when the invocation binds it or the
	// component supplies a default the engine can fall back to.
	available := make(map[string]bool)
	for _, in := range comp.Inputs {
		_, bound := node.Bindings[in.Name]
		if !bound && in.Default == nil {
			continue
		}
		param := &workflow.Parameter{Name: in.Name}
		if in.Default != nil {
			rendered, err := renderValue(*in.Default)
			if err != nil {
				return nil, cerr.New(cerr.UnresolvedPlaceholder, node.ID, "input %q default: %v", in.Name, err)
			}
			param.Default = &rendered
		}
		tmpl.Inputs = append(tmpl.Inputs, param)
		available[in.Name] = true
	}

	for _, token := range comp.Command {
		if !token.IsPlaceholder() {
			tmpl.Command = append(tmpl.Command, token.Literal)
			continue
		}
		if !available[token.Input] {
			return nil, cerr.New(cerr.UnresolvedPlaceholder, node.ID, "command references input %q which has no binding and no default", token.Input)
		}
		tmpl.Command = append(tmpl.Command, fmt.Sprintf("{{inputs.parameters.%s}}", token.Input))
	}

	for _, out := range comp.Outputs {
		tmpl.Outputs = append(tmpl.Outputs, &workflow.OutputParameter{Name: out.Name, Path: out.Path})
	}

	if len(node.Env) > 0 {
		keys := make([]string, 0, len(node.Env))
		for k := range node.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tmpl.Env = append(tmpl.Env, &workflow.EnvVar{Name: k, Value: node.Env[k]})
		}
	}

	tmpl.Labels = sortedMetadata(node.Labels)
	tmpl.Annotations = sortedMetadata(node.Annotations)

	if node.Retry > 0 {
		tmpl.Retry = &workflow.Retry{Limit: node.Retry}
	}
	if r := node.Resources; r != nil {
		tmpl.Resources = &workflow.Resources{
			CPURequest:    r.CPURequest,
			CPULimit:      r.CPULimit,
			MemoryRequest: r.MemoryRequest,
			MemoryLimit:   r.MemoryLimit,
			GPULimit:      r.GPULimit,
		}
	}

	f.doc.Templates = append(f.doc.Templates, tmpl)
	return tmpl, nil
}

// sortedMetadata renders a pod label or annotation map as a name-sorted
// entry list, nil when the map is empty.
func sortedMetadata(m map[string]string) []*workflow.MetadataEntry {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]*workflow.MetadataEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, &workflow.MetadataEntry{Name: k, Value: m[k]})
	}
	return entries
}
