package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupProject writes a config and a template directory into a temp dir and
// returns the config path.
func setupProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	tplDir := filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(tplDir, 0755))
	for name, content := range files {
		path := filepath.Join(tplDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	config := defaultConfig()
	config.Engine.BaseDir = tplDir
	config.Server.LogLevel = "error"
	data, err := json.Marshal(config)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(bytes.NewBufferString(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRenderCmd(t *testing.T) {
	config := setupProject(t, map[string]string{
		"layout.html": "<h1>{[ block title ]}{[ endblock ]}</h1>",
		"hello.html":  "@extends(layout){[ block title ]}Hi {{ who }}{[ endblock ]}",
	})

	t.Run("Stdout", func(t *testing.T) {
		out, err := runCmd(t, `{"who":"there"}`, "render", "hello", "--config", config, "--data", "-")
		require.NoError(t, err)
		assert.Equal(t, "<h1>Hi there</h1>", out)
	})

	t.Run("OutFile", func(t *testing.T) {
		dataPath := filepath.Join(t.TempDir(), "data.json")
		require.NoError(t, os.WriteFile(dataPath, []byte(`{"who":"file"}`), 0644))
		outPath := filepath.Join(t.TempDir(), "hello.out.html")

		_, err := runCmd(t, "", "render", "hello", "--config", config, "-d", dataPath, "-o", outPath)
		require.NoError(t, err)
		got, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Equal(t, "<h1>Hi file</h1>", string(got))
	})

	t.Run("YAMLData", func(t *testing.T) {
		dataPath := filepath.Join(t.TempDir(), "data.yaml")
		require.NoError(t, os.WriteFile(dataPath, []byte("who: yaml\n"), 0644))
		out, err := runCmd(t, "", "render", "hello", "--config", config, "--data", dataPath)
		require.NoError(t, err)
		assert.Equal(t, "<h1>Hi yaml</h1>", out)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := runCmd(t, "", "render", "nope", "--config", config)
		assert.Error(t, err)
	})

	t.Run("BadData", func(t *testing.T) {
		_, err := runCmd(t, "[1, 2]", "render", "hello", "--config", config, "--data", "-")
		assert.ErrorContains(t, err, "failed to parse data file")
	})

	t.Run("DirFlag", func(t *testing.T) {
		other := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(other, "solo.html"), []byte("solo"), 0644))
		out, err := runCmd(t, "", "render", "solo", "--config", config, "--dir", other)
		require.NoError(t, err)
		assert.Equal(t, "solo", out)
	})
}

func TestCheckCmd(t *testing.T) {
	color.NoColor = true

	t.Run("Clean", func(t *testing.T) {
		config := setupProject(t, map[string]string{
			"a.html":       "{{ 1 }}",
			"parts/b.html": "{% if true: %}b{% end %}",
		})
		out, err := runCmd(t, "", "check", "--config", config)
		require.NoError(t, err)
		assert.Contains(t, out, "ok    a.html")
		assert.Contains(t, out, "ok    parts/b.html")
	})

	t.Run("Problems", func(t *testing.T) {
		config := setupProject(t, map[string]string{
			"good.html":     "fine",
			"orphan.html":   "@extends(gone)x",
			"unclosed.html": "{% for i in 3: %}{{ i }}",
		})
		out, err := runCmd(t, "", "check", "--config", config)
		assert.ErrorContains(t, err, "2 of 3 templates have problems")
		assert.Contains(t, out, "ok    good.html")
		assert.Contains(t, out, "FAIL  orphan.html")
		assert.Contains(t, out, "FAIL  unclosed.html")
		assert.Contains(t, out, "unclosed for block")
	})
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tundra version "+Version)
}
