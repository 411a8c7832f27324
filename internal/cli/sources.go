package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"meetcap/internal/domain"
	"meetcap/internal/output"
)

func NewSourcesCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List audio sources that can be recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := deps.Catalog.Enumerate(cmd.Context())
			if err != nil {
				return err
			}
			sources = append([]domain.AudioSource{domain.SystemWideSource()}, sources...)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sources)
			}
			output.NewFormatter(cmd.OutOrStdout()).Sources(sources)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print sources as JSON")

	return cmd
}
