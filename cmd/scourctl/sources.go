package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"scour/internal/services/sources"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the source catalog",
	}
	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Import sources from a YAML file (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			specs, err := readSourceSpecs(r)
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp(cmd, nil)
			if err != nil {
				return err
			}
			imported, err := a.Sources.Import(cmd.Context(), specs)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(imported))
			for _, src := range imported {
				rows = append(rows, []string{src.ID, src.Name, string(src.Type), fmt.Sprint(src.Enabled)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Type", "Enabled"}, rows))
			return nil
		},
	})
	return sourcesCmd
}

// readSourceSpecs accepts either a bare list of sources or a document with a
// top-level "sources" list.
func readSourceSpecs(r io.Reader) ([]sources.Spec, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var list []sources.Spec
	if err := yaml.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, errors.New("no sources in file")
		}
		return list, nil
	}
	var doc struct {
		Sources []sources.Spec `yaml:"sources"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	if len(doc.Sources) == 0 {
		return nil, errors.New("no sources in file")
	}
	return doc.Sources, nil
}
