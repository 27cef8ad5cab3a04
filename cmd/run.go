package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/encodeous/strand/core"
	"github.com/encodeous/strand/state"
	"github.com/spf13/cobra"
)

var (
	nodeConfigPath string
	logPath        string
	host           string
)

// loadConfig builds the node config either from a YAML node file or from
// the positional <node-id> <port> <neighbour-file> form.
func loadConfig(args []string) (*state.LocalCfg, error) {
	var cfg *state.LocalCfg
	if nodeConfigPath != "" {
		if len(args) != 0 {
			return nil, fmt.Errorf("positional arguments cannot be combined with --node-config")
		}
		var err error
		cfg, err = state.ReadNodeConfig(nodeConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		if len(args) != 3 {
			return nil, fmt.Errorf("expected <node-id> <port> <neighbour-file>, got %d arguments", len(args))
		}
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", args[1])
		}
		neighbours, err := state.ReadNeighbourFile(args[2])
		if err != nil {
			return nil, err
		}
		cfg = &state.LocalCfg{
			Id:         state.NodeId(args[0]),
			Port:       uint16(port),
			Neighbours: neighbours,
		}
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	if host != "" {
		cfg.Host = host
		for i := range cfg.Neighbours {
			if cfg.Neighbours[i].Host == "" {
				cfg.Neighbours[i].Host = host
			}
		}
	}
	if err := state.NodeConfigValidator(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <node-id> <port> <neighbour-file>",
	Short: "Run a node",
	Long: `Runs a node in the foreground with an interactive console on stdin.
The neighbour file lists the neighbour count on its first line, then one "<id> <cost> <port>" line per neighbour.
Alternatively pass --node-config with a YAML node config.`,
	Args: cobra.MaximumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}

		return core.Start(*cfg, core.Options{
			LogLevel: level,
			In:       cmd.InOrStdin(),
			Out:      cmd.OutOrStdout(),
			LogOut:   cmd.ErrOrStderr(),
		})
	},
	GroupID: "node",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&nodeConfigPath, "node-config", "n", "", "YAML node config, replaces the positional arguments")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringVarP(&logPath, "log", "l", "", "Also write logs to this file")
	runCmd.Flags().StringVar(&host, "host", "", "Address to listen on and dial neighbours at (default "+state.DefaultHost+")")
	runCmd.Flags().BoolVar(&state.DBG_debug, "debug", false, "Serve expvar metrics on "+state.DBG_debug_addr)
}
