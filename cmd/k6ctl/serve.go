package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loadops/k6ctl"
	"github.com/loadops/k6ctl/internal/config"
)

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Leader     bool
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the k6ctl controller daemon",
		Long: `Start the controller daemon. All configuration is read from the TOML
config file; relation data and leadership arrive over the HTTP API.

Examples:
  k6ctl serve --config=k6ctl.toml
  k6ctl serve k6ctl.toml --leader`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(cmd.Context(), serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Leader, "leader", false, "start with the leadership flag set")
	return cmd
}

func runServe(ctx context.Context, flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required. Use --config=k6ctl.toml or provide as argument")
	}

	ctrl, err := k6ctl.New(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	defer func() { _ = ctrl.Close() }()

	if flags.Leader {
		ctrl.SetLeader(true)
	}

	// The loop re-reads the config per pass; the initial load here is only
	// for server/metrics wiring.
	snap, err := config.NewLoader(configPath).Load()
	if err != nil {
		return err
	}

	if snap.Metrics != nil && snap.Metrics.Enabled {
		if err := k6ctl.RegisterMetricsDefault(); err != nil {
			fmt.Printf("Warning: failed to register metrics: %v\n", err)
		}
		if snap.Metrics.Listen != "" {
			go func() {
				if err := k6ctl.ServeMetrics(snap.Metrics.Listen); err != nil {
					fmt.Printf("Metrics server error: %v\n", err)
				}
			}()
		}
	}

	listen := ":7565"
	basePath := "/api"
	if snap.Server != nil {
		if snap.Server.Listen != "" {
			listen = snap.Server.Listen
		}
		if snap.Server.BasePath != "" {
			basePath = snap.Server.BasePath
		}
	}
	server := ctrl.NewHTTPServer(listen, basePath)
	fmt.Printf("Starting k6ctl server on %s%s\n", listen, basePath)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ctrl.Run(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	fmt.Println("Shutting down...")
	cancel()
	_ = ctrl.Dispatch(context.Background(), "stop", nil)
	return server.Close()
}
