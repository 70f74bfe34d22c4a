package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/pipegridgo/internal/cerr"
	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/fsutil"
	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/schema"
)

// Loader is the HCL-specific implementation of the model.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL definition loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadComponents reads every component manifest found under the given paths.
// A path may be a single .hcl file or a directory searched recursively.
func (l *Loader) LoadComponents(ctx context.Context, paths ...string) (map[string]*model.Component, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Component loading started.", "path_count", len(paths))

	files, err := collectHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered component manifest files.", "count", len(files))

	parser := hclparse.NewParser()
	components := make(map[string]*model.Component)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root schema.ComponentFile
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode component manifest %s: %w", file, diags)
		}

		for _, sc := range root.Components {
			comp, err := translateComponent(ctx, sc)
			if err != nil {
				return nil, err
			}
			if _, exists := components[comp.Name]; exists {
				return nil, cerr.New(cerr.MalformedComponent, comp.Name, "component defined more than once")
			}
			components[comp.Name] = comp
		}
	}

	logger.Debug("Component loading complete.", "count", len(components))
	return components, nil
}

// LoadPipeline reads a single pipeline definition file. The file must contain
// exactly one pipeline block.
func (l *Loader) LoadPipeline(ctx context.Context, path string) (*model.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Pipeline loading started.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root schema.PipelineFile
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode pipeline file %s: %w", path, diags)
	}

	if len(root.Pipelines) != 1 {
		return nil, fmt.Errorf("pipeline file %s must contain exactly one pipeline block, found %d", path, len(root.Pipelines))
	}

	pipeline, err := translatePipeline(ctx, root.Pipelines[0])
	if err != nil {
		return nil, err
	}

	logger.Debug("Pipeline loading complete.", "name", pipeline.Name)
	return pipeline, nil
}

// collectHCLFiles flattens the given paths into a deduplicated, sorted list
// of .hcl files. Missing paths are skipped, matching the convention that an
// unused search path is not an error.
func collectHCLFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				if _, ok := seen[f]; !ok {
					all = append(all, f)
					seen[f] = struct{}{}
				}
			}
			continue
		}

		if _, ok := seen[path]; !ok {
			all = append(all, path)
			seen[path] = struct{}{}
		}
	}

	return all, nil
}
