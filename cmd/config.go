package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solesensei/browser-stream/internal/config"
)

func init() {
	var reset bool

	command := &cobra.Command{
		Use:   "config",
		Short: "show or reset the stored backend configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath := config.Path()

			if reset {
				if err := config.Reset(statePath); err != nil {
					return err
				}
				log.Info().Str("path", statePath).Msg("stored configuration cleared")
				return nil
			}

			state, err := config.Load(statePath)
			if err != nil {
				return err
			}
			out, err := state.JSON()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Config path:", statePath)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	command.Flags().BoolVar(&reset, "reset", false, "remove the stored backend configuration")
	rootCmd.AddCommand(command)
}
