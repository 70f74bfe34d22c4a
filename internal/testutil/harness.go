// Package testutil provides a standardized harness for compiler tests that
// start from inline HCL sources.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/pipegridgo/internal/compiler"
	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/hcl"
	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/workflow"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// CompileResult holds the outcomes of a harness compilation.
type CompileResult struct {
	Doc        *workflow.Document
	Components map[string]*model.Component
	Pipeline   *model.Pipeline
	Err        error
}

// Compile writes the given components and pipeline sources to a temp
// directory, loads them with the HCL loader, and runs the full compiler.
// Load failures and compile failures both land in CompileResult.Err.
func Compile(t *testing.T, componentsHCL, pipelineHCL string) *CompileResult {
	t.Helper()
	return CompileWithOptions(t, componentsHCL, pipelineHCL, compiler.Options{})
}

// CompileWithOptions is Compile with explicit compiler options.
func CompileWithOptions(t *testing.T, componentsHCL, pipelineHCL string, opts compiler.Options) *CompileResult {
	t.Helper()

	tmpDir := t.TempDir()
	componentsDir := filepath.Join(tmpDir, "components")
	require.NoError(t, os.Mkdir(componentsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(componentsDir, "components.hcl"), []byte(componentsHCL), 0o644))

	pipelinePath := filepath.Join(tmpDir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(pipelinePath, []byte(pipelineHCL), 0o644))

	ctx := ctxlog.WithLogger(context.Background(), DiscardLogger())

	loader := hcl.NewLoader()
	result := &CompileResult{}

	result.Components, result.Err = loader.LoadComponents(ctx, componentsDir)
	if result.Err != nil {
		return result
	}
	result.Pipeline, result.Err = loader.LoadPipeline(ctx, pipelinePath)
	if result.Err != nil {
		return result
	}

	result.Doc, result.Err = compiler.Compile(ctx, result.Components, result.Pipeline, opts)
	return result
}

// RequireDoc asserts the compilation succeeded and returns the document.
func (r *CompileResult) RequireDoc(t *testing.T) *workflow.Document {
	t.Helper()
	require.NoError(t, r.Err)
	require.NotNil(t, r.Doc)
	return r.Doc
}

// Template finds a template by name in the compiled document.
func (r *CompileResult) Template(t *testing.T, name string) *workflow.Template {
	t.Helper()
	require.NotNil(t, r.Doc)
	for _, tmpl := range r.Doc.Templates {
		if tmpl.Name == name {
			return tmpl
		}
	}
	t.Fatalf("template %q not found in compiled document", name)
	return nil
}

// Task finds a task by name within a dag template.
func Task(t *testing.T, tmpl *workflow.Template, name string) *workflow.Task {
	t.Helper()
	for _, task := range tmpl.Tasks {
		if task.Name == name {
			return task
		}
	}
	t.Fatalf("task %q not found in template %q", name, tmpl.Name)
	return nil
}
