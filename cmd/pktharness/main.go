package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pktharness/cmd/pktharness/ui"
	"pktharness/internal/config"
	"pktharness/internal/logging"

	"github.com/spf13/cobra"
)

// globals holds the root persistent flags and the configuration they resolve to.
type globals struct {
	configPath string
	debug      bool
	logFormat  string
	noColor    bool

	cfg config.Config
}

func main() {
	g := &globals{}
	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "pktharness",
		Short:         "Black-box test harness for the pktvisor traffic agent",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.debug {
				cfg.LogLevel = logging.LevelDebug
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = g.logFormat
			}
			if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			ui.ConfigureColor(g.noColor)
			g.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "pktharness.yaml", "Path to the harness configuration file")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", logging.FormatText, "Log format (text or json)")
	root.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable coloured output")

	root.AddCommand(runCmd(g))
	root.AddCommand(replayCmd(g))
	root.AddCommand(validateCmd(g))
	root.AddCommand(historyCmd(g))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		stop()
		os.Exit(1)
	}
}
