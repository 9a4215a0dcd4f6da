package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pktharness/cmd/pktharness/ui"
	"pktharness/internal/infra/sqlite"

	"github.com/spf13/cobra"
)

func historyCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent scenario runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.cfg.HistoryPath == "" {
				return errors.New("history_path is not configured")
			}
			store, err := sqlite.Open(g.cfg.HistoryPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println(ui.Muted("No runs recorded."))
				return nil
			}
			fmt.Println(ui.Table([]string{"ID", "STARTED", "SESSION", "INTERFACE", "INSTANCES", "OUTCOME", "DURATION", "ERROR"}, historyRows(runs)))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func historyRows(runs []sqlite.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		names := make([]string, 0, len(run.Instances))
		for _, inst := range run.Instances {
			names = append(names, fmt.Sprintf("%s:%d", inst.Role, inst.Port))
		}
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			run.StartedAt.Local().Format(time.DateTime),
			run.Session,
			run.Interface,
			strings.Join(names, " "),
			ui.Verdict(run.Outcome),
			run.Duration.Round(time.Millisecond).String(),
			truncate(run.Error, 60),
		})
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
