// fhub-ctl is a small operator CLI for inspecting a running aggregation node
// through its admin API.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

// defaultModuleTimeout is used when the snapshot predates the
// moduleTimeout field and reports zero.
const defaultModuleTimeout = 10 * time.Second

var (
	nodeAddr string
	timeout  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:          "fhub-ctl",
		Short:        "Inspect a running ForgeHub aggregation node",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&nodeAddr, "addr", "http://127.0.0.1:8080", "Admin API address of the node.")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout.")

	root.AddCommand(newModulesCommand(), newStatsCommand(), newSnapshotCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newModulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules known to the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap model.Snapshot
			if err := fetch("/v1/snapshot", &snap); err != nil {
				return err
			}

			staleAfter := snap.ModuleTimeout
			if staleAfter == 0 {
				staleAfter = defaultModuleTimeout
			}

			table := uitable.New()
			table.AddRow("ID", "ONLINE", "ENABLED", "PRIORITY", "SPEED", "STRESS", "CAPACITY", "LAST UPDATE")
			for _, m := range snap.Modules {
				table.AddRow(
					string(m.ID),
					yesNo(m.Online(staleAfter, snap.TakenAt)),
					yesNo(m.Enabled),
					m.Priority,
					fmt.Sprintf("%.0f", m.Speed),
					fmt.Sprintf("%.0f", m.StressDemand),
					fmt.Sprintf("%.0f", m.StressCapacity),
					m.LastUpdate.Local().Format(time.RFC3339),
				)
			}
			fmt.Println(table)
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the node's aggregated factory statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats model.AggregatedStats
			if err := fetch("/v1/stats", &stats); err != nil {
				return err
			}

			table := uitable.New()
			table.AddRow("ONLINE", stats.Online)
			table.AddRow("OFFLINE", stats.Offline)
			table.AddRow("ACTIVE", stats.Active)
			table.AddRow("INACTIVE", stats.Inactive)
			table.AddRow("STRESS USAGE (SU)", fmt.Sprintf("%.0f", stats.StressUsage))
			table.AddRow("STRESS CAPACITY (SU)", fmt.Sprintf("%.0f", stats.StressCapacity))
			fmt.Println(table)
			return nil
		},
	}
}

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Dump the node's latest snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap json.RawMessage
			if err := fetch("/v1/snapshot", &snap); err != nil {
				return err
			}
			var out map[string]any
			if err := json.Unmarshal(snap, &out); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func fetch(path string, out any) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(nodeAddr + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s for %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
