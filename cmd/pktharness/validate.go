package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"pktharness/cmd/pktharness/ui"
	"pktharness/internal/metrics"

	"github.com/spf13/cobra"
)

func validateCmd(g *globals) *cobra.Command {
	var (
		schema   string
		endpoint string
		port     int
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "validate [payload.json]",
		Short: "Validate a metrics payload against the schema",
		Long: "Validate a JSON file against the metrics schema, or with --endpoint poll a\n" +
			"running agent until the endpoint returns a conforming payload.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if schema == "" {
				schema = cfg.SchemaPath()
			}
			if port == 0 {
				port = cfg.DefaultPort
			}

			if endpoint != "" {
				client := metrics.New(cfg.APIHost, cfg.Poll.RequestWait)
				res, err := client.FetchValid(cmd.Context(), endpoint, port, schema, timeout)
				if err != nil {
					return err
				}
				if !res.OK() {
					return fmt.Errorf("%s: status %d after %d attempts: %s", endpoint, res.Status, res.Attempts, res.Detail)
				}
				fmt.Println(ui.SuccessMsg("%s conforms to %s", client.URL(endpoint, port), schema))
				return nil
			}

			if len(args) == 0 {
				return errors.New("a payload file or --endpoint is required")
			}
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			ok, detail := metrics.ValidateDetail(payload, schema)
			if !ok {
				return fmt.Errorf("%s does not conform to %s: %s", args[0], schema, detail)
			}
			fmt.Println(ui.SuccessMsg("%s conforms to %s", args[0], schema))
			return nil
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "Schema file (default: <data_dir>/schemas/<schema_file_name>)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Agent API endpoint to fetch, e.g. policies/__all/metrics/bucket/0")
	cmd.Flags().IntVar(&port, "port", 0, "Agent API port (default: the agent's default port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to poll the endpoint")
	return cmd
}
