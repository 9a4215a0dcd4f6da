package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pktharness/cmd/pktharness/ui"
	"pktharness/internal/alloc"
	"pktharness/internal/infra/netdev"
	"pktharness/internal/replay"
	"pktharness/internal/session"

	"github.com/spf13/cobra"
)

func replayCmd(g *globals) *cobra.Command {
	var iface string
	cmd := &cobra.Command{
		Use:   "replay <capture>",
		Short: "Replay a capture and check the packet counters",
		Long: "Replay a capture with the configured replay tool. Without --interface a\n" +
			"temporary dummy interface is created for the replay and removed afterwards.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg := g.cfg
			path := args[0]
			if _, statErr := os.Stat(path); statErr != nil && !filepath.IsAbs(path) {
				path = cfg.CapturePath(path)
			}

			if iface == "" {
				name, err := alloc.New(cfg.PortAttempts, cfg.NameSuffixLength).InterfaceName(cfg.InterfacePrefix)
				if err != nil {
					return err
				}
				links, err := netdev.NewNetlink()
				if err != nil {
					return err
				}
				sess, err := session.Open("replay", name, links)
				if err != nil {
					return err
				}
				defer func() {
					err = errors.Join(err, sess.Close(context.WithoutCancel(cmd.Context()), nil))
				}()
				iface = name
			}

			report, err := replay.New(cfg.ReplayTool, cfg.UseSudo, nil).Replay(cmd.Context(), iface, path)
			if report.Attempted > 0 || err == nil {
				fmt.Print(ui.KeyValues("  ",
					ui.KV("Interface", iface),
					ui.KV("Attempted", fmt.Sprint(report.Attempted)),
					ui.KV("Successful", fmt.Sprint(report.Successful)),
					ui.KV("Failed", fmt.Sprint(report.Failed)),
					ui.KV("Bytes", fmt.Sprint(report.Bytes)),
				))
			}
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("All %d packets accounted for", report.Attempted))
			return nil
		},
	}
	cmd.Flags().StringVar(&iface, "interface", "", "Existing interface to replay onto")
	return cmd
}
