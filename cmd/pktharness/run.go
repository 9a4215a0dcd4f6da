package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"pktharness/cmd/pktharness/ui"
	"pktharness/internal/alloc"
	"pktharness/internal/infra/docker"
	"pktharness/internal/infra/netdev"
	"pktharness/internal/infra/sqlite"
	"pktharness/internal/metrics"
	"pktharness/internal/replay"
	"pktharness/internal/scenario"
	"pktharness/internal/telemetry"

	"github.com/spf13/cobra"
)

func runCmd(g *globals) *cobra.Command {
	var (
		image   string
		iface   string
		noTrack bool
	)
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario against live agent containers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if image != "" {
				cfg.Image = image
			}
			if iface != "" {
				cfg.Interface = iface
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			sc, err := scenario.LoadFile(args[0])
			if err != nil {
				return err
			}

			rt, err := docker.NewRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.WaitReady(cmd.Context()); err != nil {
				return err
			}
			links, err := netdev.NewNetlink()
			if err != nil {
				return err
			}

			var journal scenario.Journal
			if cfg.HistoryPath != "" && !noTrack {
				store, err := sqlite.Open(cfg.HistoryPath)
				if err != nil {
					return err
				}
				defer store.Close()
				journal = store
			}

			progress := ui.NewProgress(os.Stderr)
			defer progress.Close()

			runner := scenario.NewRunner(cfg, scenario.Deps{
				Runtime:   rt,
				Links:     links,
				Allocator: alloc.New(cfg.PortAttempts, cfg.NameSuffixLength),
				Replayer:  replay.New(cfg.ReplayTool, cfg.UseSudo, nil),
				Metrics:   metrics.New(cfg.APIHost, cfg.Poll.RequestWait),
				Journal:   journal,
				Tracer:    progress.Tracer(telemetry.TracerName),
			})
			res, runErr := runner.Run(cmd.Context(), sc)
			printResult(sc, res)

			var assertion *scenario.AssertionError
			switch {
			case runErr == nil:
				fmt.Println(ui.SuccessMsg("Scenario %s passed in %s", sc.Name, res.Duration.Round(time.Millisecond)))
				return nil
			case errors.As(runErr, &assertion):
				return fmt.Errorf("scenario %s failed: %w", sc.Name, runErr)
			case errors.Is(runErr, replay.ErrToolMissing):
				return fmt.Errorf("environment not ready: %w", runErr)
			default:
				return runErr
			}
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Agent image (overrides config)")
	cmd.Flags().StringVar(&iface, "interface", "", "Fixed dummy interface name (default: random per run)")
	cmd.Flags().BoolVar(&noTrack, "no-history", false, "Do not record the run in the history journal")
	return cmd
}

func printResult(sc scenario.Scenario, res scenario.Result) {
	if res.Session == "" {
		return
	}
	fmt.Print(ui.KeyValues("  ",
		ui.KV("Session", res.Session),
		ui.KV("Interface", res.Interface),
		ui.KV("Captures", strconv.Itoa(len(res.Captures))),
	))

	if len(res.Instances) > 0 {
		rows := make([][]string, 0, len(res.Instances))
		for _, inst := range res.Instances {
			rows = append(rows, []string{inst.Name, string(inst.Role), strconv.Itoa(inst.Port), ui.Verdict(string(inst.Status))})
		}
		fmt.Println(ui.Table([]string{"INSTANCE", "ROLE", "PORT", "STATUS"}, rows))
	}

	if len(res.Reports) > 0 {
		rows := make([][]string, 0, len(res.Reports))
		for i, rep := range res.Reports {
			rows = append(rows, []string{sc.Captures[i], strconv.Itoa(rep.Attempted), strconv.Itoa(rep.Successful), strconv.Itoa(rep.Failed)})
		}
		fmt.Println(ui.Table([]string{"CAPTURE", "ATTEMPTED", "SUCCESSFUL", "FAILED"}, rows))
	}

	if len(res.Endpoints) > 0 {
		rows := make([][]string, 0, len(res.Endpoints))
		for _, ep := range res.Endpoints {
			rows = append(rows, []string{ep.Instance, ep.Endpoint, strconv.Itoa(ep.Status), ui.Check(ep.OK()), ep.Detail})
		}
		fmt.Println(ui.Table([]string{"INSTANCE", "ENDPOINT", "STATUS", "VALID", "DETAIL"}, rows))
	}
}
