package cmd

import (
	"fmt"

	"github.com/encodeous/strand/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <neighbour-file | node.yaml>",
	Short: "Validates a config file and prints it as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg *state.LocalCfg
		if state.IsYamlConfig(args[0]) {
			var err error
			cfg, err = state.ReadNodeConfig(args[0])
			if err != nil {
				return err
			}
			if err := state.NodeConfigValidator(cfg); err != nil {
				return err
			}
		} else {
			neighbours, err := state.ReadNeighbourFile(args[0])
			if err != nil {
				return err
			}
			for _, neigh := range neighbours {
				// the node id is unknown here, so only the neighbour itself is checked
				if err := state.NeighbourConfigValidator("", neigh); err != nil {
					return err
				}
			}
			cfg = &state.LocalCfg{Neighbours: neighbours}
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Config is valid")
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
	GroupID: "node",
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
