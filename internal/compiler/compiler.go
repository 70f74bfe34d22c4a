// Package compiler wires the compilation stages into a single pure function:
// (component definitions, pipeline definition) -> workflow document. Each
// invocation is independent and holds no shared state, so compilations may
// run concurrently in separate worker contexts.
package compiler

import (
	"context"

	"github.com/google/uuid"

	"github.com/vk/pipegridgo/internal/check"
	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/flatten"
	"github.com/vk/pipegridgo/internal/graph"
	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/typetag"
	"github.com/vk/pipegridgo/internal/workflow"
)

// Options tune a compilation. The zero value selects the defaults.
type Options struct {
	// Matrix overrides the producer/consumer type compatibility rule. Nil
	// selects typetag.DefaultMatrix.
	Matrix typetag.Matrix
}

// Compile runs the full pipeline: graph building, validation, flattening.
// It fails on the first error and never returns a partial document. The
// correlation id attached to the logs identifies one compilation; it is
// never written into the document, which stays byte-deterministic.
func Compile(ctx context.Context, components map[string]*model.Component, pipeline *model.Pipeline, opts Options) (*workflow.Document, error) {
	logger := ctxlog.FromContext(ctx).With("compilation_id", uuid.NewString(), "pipeline", pipeline.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Compilation started.", "component_count", len(components))

	g, err := graph.Build(ctx, pipeline, components)
	if err != nil {
		return nil, err
	}

	validated, err := check.Validate(ctx, g, opts.Matrix)
	if err != nil {
		return nil, err
	}

	doc, err := flatten.Flatten(ctx, validated)
	if err != nil {
		return nil, err
	}

	logger.Debug("Compilation finished.", "template_count", len(doc.Templates))
	return doc, nil
}
