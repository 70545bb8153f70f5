package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show connection details and the stored definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx, true)
		if err != nil {
			return err
		}
		defer c.Close()

		info := c.Info()
		metrics, err := c.Connection().MetricDefinitions()
		if err != nil {
			return err
		}
		events, err := c.Connection().EventDefinitions()
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]any{
				"info":    info,
				"metrics": metrics,
				"events":  events,
			})
		}

		fmt.Printf("%s on %s (read_only=%v admin=%v)\n",
			info.Name, info.Engine, info.ReadOnly, info.Admin)
		fmt.Printf("Stores: %v\n", info.Stores)
		fmt.Printf("Metrics (%d):\n", len(metrics))
		for _, m := range metrics {
			fmt.Printf("  %-20s %-6s %-6s delete_possible=%v\n",
				m.Name, m.ID, m.Type, m.DeletePossible)
		}
		fmt.Printf("Events (%d):\n", len(events))
		for _, e := range events {
			fmt.Printf("  %-20s %s\n", e.Name, e.Type)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
