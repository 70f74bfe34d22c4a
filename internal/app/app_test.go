package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipegridgo/internal/app"
	"github.com/vk/pipegridgo/internal/hcl"
	"github.com/vk/pipegridgo/internal/testutil"
	"github.com/vk/pipegridgo/internal/workflow"
)

const appComponents = `
component "greeter" {
  image   = "example.io/greeter:1"
  command = ["echo", input.who]

  input "who" {
    type = string
  }
}
`

const appPipeline = `
pipeline "hello" {
  op "greet" {
    component = "greeter"
    arguments {
      who = "world"
    }
  }
}
`

func writeSources(t *testing.T) (componentsDir, pipelinePath string) {
	t.Helper()
	dir := t.TempDir()
	componentsDir = filepath.Join(dir, "components")
	require.NoError(t, os.Mkdir(componentsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(componentsDir, "greeter.hcl"), []byte(appComponents), 0o644))
	pipelinePath = filepath.Join(dir, "hello.hcl")
	require.NoError(t, os.WriteFile(pipelinePath, []byte(appPipeline), 0o644))
	return componentsDir, pipelinePath
}

func TestAppRunWritesDocumentToStdout(t *testing.T) {
	componentsDir, pipelinePath := writeSources(t)

	config, err := app.NewConfig(app.Config{
		ComponentsPath: componentsDir,
		PipelinePath:   pipelinePath,
		LogFormat:      "text",
		LogLevel:       "error",
	})
	require.NoError(t, err)

	var outW, logW testutil.SafeBuffer
	a := app.NewApp(&outW, &logW, config, hcl.NewLoader())
	require.NoError(t, a.Run(context.Background()))

	doc, err := workflow.Unmarshal([]byte(outW.String()))
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Entrypoint)
	require.Len(t, doc.Templates, 2)
}

func TestAppRunWritesDocumentToFile(t *testing.T) {
	componentsDir, pipelinePath := writeSources(t)
	outputPath := filepath.Join(t.TempDir(), "out.yaml")

	config, err := app.NewConfig(app.Config{
		ComponentsPath: componentsDir,
		PipelinePath:   pipelinePath,
		OutputPath:     outputPath,
		LogFormat:      "text",
		LogLevel:       "error",
	})
	require.NoError(t, err)

	var outW, logW testutil.SafeBuffer
	a := app.NewApp(&outW, &logW, config, hcl.NewLoader())
	require.NoError(t, a.Run(context.Background()))

	assert.Empty(t, outW.String(), "stdout stays clean when writing to a file")

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	doc, err := workflow.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Entrypoint)
}

func TestAppRunFailsOnMissingPipeline(t *testing.T) {
	componentsDir, _ := writeSources(t)

	config, err := app.NewConfig(app.Config{
		ComponentsPath: componentsDir,
		PipelinePath:   filepath.Join(componentsDir, "nope.hcl"),
		LogFormat:      "text",
		LogLevel:       "error",
	})
	require.NoError(t, err)

	var outW, logW testutil.SafeBuffer
	a := app.NewApp(&outW, &logW, config, hcl.NewLoader())
	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, outW.String())
}

func TestAppLoggerFormat(t *testing.T) {
	componentsDir, pipelinePath := writeSources(t)

	newApp := func(t *testing.T, format, level string, logW *testutil.SafeBuffer) *app.App {
		t.Helper()
		config, err := app.NewConfig(app.Config{
			ComponentsPath: componentsDir,
			PipelinePath:   pipelinePath,
			LogFormat:      format,
			LogLevel:       level,
		})
		require.NoError(t, err)
		var outW testutil.SafeBuffer
		return app.NewApp(&outW, logW, config, hcl.NewLoader())
	}

	t.Run("json emits structured lines", func(t *testing.T) {
		var logW testutil.SafeBuffer
		newApp(t, "json", "debug", &logW)
		assert.Contains(t, logW.String(), `"msg":"Logger configured successfully."`)
	})

	t.Run("anything else falls back to text", func(t *testing.T) {
		var logW testutil.SafeBuffer
		newApp(t, "", "debug", &logW)
		assert.Contains(t, logW.String(), "msg=")
		assert.NotContains(t, logW.String(), `"msg"`)
	})

	t.Run("level gates output", func(t *testing.T) {
		var logW testutil.SafeBuffer
		newApp(t, "text", "error", &logW)
		assert.Empty(t, logW.String())
	})
}

func TestNewConfigValidation(t *testing.T) {
	_, err := app.NewConfig(app.Config{ComponentsPath: "components"})
	assert.Error(t, err)

	_, err = app.NewConfig(app.Config{PipelinePath: "p.hcl"})
	assert.Error(t, err)
}
