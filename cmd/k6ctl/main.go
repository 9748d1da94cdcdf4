package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for remote commands.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "k6ctl",
		Short: "Lifecycle controller for a k6 load-testing workload",
		Long: `k6ctl supervises a single k6 load-test process per unit: it materializes
the configured script, injects relation-supplied telemetry endpoints into the
environment, and converges the running process to the declared state.

Examples:
  k6ctl serve --config=k6ctl.toml   # Start the controller daemon
  k6ctl start                       # Start a load test (leader only)
  k6ctl stop                        # Stop the running load test
  k6ctl list                        # List configured scripts and recent runs
  k6ctl status                      # Show unit and workload status`,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file")

	root.AddCommand(
		createServeCommand(globalFlags),
		createActionCommand("start", "Start a load test on the leader unit"),
		createActionCommand("stop", "Stop the running load test"),
		createActionCommand("list", "List configured scripts and recent runs"),
		createStatusCommand(),
		createLeaderCommand(),
	)
	return root
}

func createActionCommand(name, short string) *cobra.Command {
	apiFlags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd.Context(), name, apiFlags)
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func createStatusCommand() *cobra.Command {
	apiFlags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show unit and workload status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), apiFlags)
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createLeaderCommand exists for harness/test topologies where no platform
// feeds the leadership signal.
func createLeaderCommand() *cobra.Command {
	apiFlags := &APIFlags{}
	var leader bool
	cmd := &cobra.Command{
		Use:   "set-leader",
		Short: "Set the unit's leadership flag on the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetLeader(cmd.Context(), apiFlags, leader)
		},
	}
	cmd.Flags().BoolVar(&leader, "leader", true, "leadership value to set")
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://localhost:7565/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}
