package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/keshon/chatkernel/internal/config"
	"github.com/keshon/chatkernel/internal/manifest"
	"github.com/keshon/chatkernel/internal/plugin"
	"github.com/spf13/cobra"
)

func newPluginsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List linked plugins and whether the manifest enables them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listPlugins(cmd, cfg.PluginManifest, plugin.DefaultCatalog)
		},
	}
}

func listPlugins(cmd *cobra.Command, manifestPath string, cat *plugin.Catalog) error {
	names := cat.Names()
	m, err := manifest.Load(manifestPath, names)
	if err != nil {
		return err
	}

	linked := make(map[string]bool, len(names))
	for _, n := range names {
		linked[n] = true
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tPLUGIN\tENABLED\tLINKED")
	listed := make(map[string]bool, len(m.Plugins))
	for i, e := range m.Plugins {
		listed[e.Name] = true
		fmt.Fprintf(w, "%d\t%s\t%t\t%t\n", i+1, e.Name, e.On(), linked[e.Name])
	}
	for _, n := range names {
		if !listed[n] {
			fmt.Fprintf(w, "-\t%s\tfalse\ttrue\n", n)
		}
	}
	if m.Implicit {
		fmt.Fprintf(w, "\nno manifest at %q, loading every linked plugin\n", m.Path)
	}
	return w.Flush()
}
