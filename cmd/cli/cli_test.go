package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/keshon/chatkernel/internal/plugin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *plugin.Catalog {
	t.Helper()
	cat := plugin.NewCatalog()
	for _, name := range []string{"core", "dice"} {
		id := name
		require.NoError(t, cat.Add(id, func(plugin.Env) plugin.Plugin { return &plugin.Bundle{ID: id} }))
	}
	return cat
}

func TestListPluginsWithManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plugins:\n  - name: weather\n  - name: core\n"), 0o644))

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	require.NoError(t, listPlugins(c, path, testCatalog(t)))

	got := out.String()
	assert.Regexp(t, `1\s+weather\s+true\s+false`, got)
	assert.Regexp(t, `2\s+core\s+true\s+true`, got)
	assert.Regexp(t, `-\s+dice\s+false\s+true`, got)
	assert.NotContains(t, got, "no manifest")
}

func TestListPluginsWithoutManifest(t *testing.T) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	require.NoError(t, listPlugins(c, filepath.Join(t.TempDir(), "none.yaml"), testCatalog(t)))
	assert.Contains(t, out.String(), "loading every linked plugin")
}

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "console")
	assert.Contains(t, names, "plugins")
}
