package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/candlelight/internal/config"
	"github.com/ayusman/candlelight/internal/detector"
	"github.com/ayusman/candlelight/internal/logging"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type options struct {
	configPath string
	addr       string
	noTray     bool
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "candlelight",
		Short: "A birthday candle you blow out and relight with your hands",
		Long: `Candlelight watches the camera for an index fingertip and listens to the
microphone for a blow. Blow to put the candle out, then touch the flame area
of the display to light it again.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.candlelight/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&opts.addr, "addr", "", "listen address, overrides server.addr")
	rootCmd.Flags().BoolVar(&opts.noTray, "no-tray", false, "run without the system tray")

	rootCmd.AddCommand(newBackendsCmd(&opts))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "candlelight %s\n", Version)
		},
	})

	return rootCmd
}

// newBackendsCmd checks which execution backends the configured engine can
// use on this machine.
func newBackendsCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "Check which detector backends are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(opts.configPath).Load()
			if err != nil {
				return err
			}
			logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			engine := newEngine(cfg, logger)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "engine: %s\n", engine.Name())

			for _, b := range []detector.Backend{detector.BackendAccelerated, detector.BackendCPU} {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				err := engine.UseBackend(ctx, b)
				cancel()
				if err != nil {
					fmt.Fprintf(out, "  %-12s unavailable: %v\n", b, err)
					continue
				}
				fmt.Fprintf(out, "  %-12s ok\n", b)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "time limit per backend")
	return cmd
}
