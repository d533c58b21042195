package main

import (
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/live_blur/pkg/targets"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the targets that can be left unblurred",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := cfg.Catalog()
		if err != nil {
			return err
		}
		list := catalog.All()
		if term, _ := cmd.Flags().GetString("search"); term != "" {
			list = catalog.Search(term)
		}
		return writeTargets(cmd.OutOrStdout(), list, cfg.Selected)
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
	targetsCmd.Flags().StringP("search", "s", "", "Only list targets whose name contains this text")
}

type targetList struct {
	Targets  []targets.Target `yaml:"targets"`
	Selected []string         `yaml:"selected,omitempty"`
}

func writeTargets(w io.Writer, list []targets.Target, selected []string) error {
	if list == nil {
		list = []targets.Target{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(targetList{Targets: list, Selected: selected}); err != nil {
		return err
	}
	return enc.Close()
}
