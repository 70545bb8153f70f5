package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cattledb/cattledb/internal/types"
)

var (
	newMetricID        string
	newMetricType      string
	newMetricDeletable bool
	newEventType       string
)

var newMetricCmd = &cobra.Command{
	Use:   "new-metric <name>",
	Short: "Register a metric definition and create its column family",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mt, err := parseMetricType(newMetricType)
		if err != nil {
			return err
		}
		def := types.MetricDefinition{
			Name:           args[0],
			ID:             newMetricID,
			Type:           mt,
			DeletePossible: newMetricDeletable,
		}
		if err := def.Validate(); err != nil {
			return err
		}

		c, err := openClient(ctx, true)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Connection().NewMetricDefinition(ctx, def); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(def)
		}
		fmt.Printf("Registered metric %s (%s, %s)\n", def.Name, def.ID, def.Type)
		return nil
	},
}

var newEventCmd = &cobra.Command{
	Use:   "new-event <name>",
	Short: "Register an event definition (name or prefix* pattern)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		et, err := parseEventType(newEventType)
		if err != nil {
			return err
		}
		def := types.EventDefinition{Name: args[0], Type: et}
		if err := def.Validate(); err != nil {
			return err
		}

		c, err := openClient(ctx, true)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Connection().NewEventDefinition(ctx, def); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(def)
		}
		fmt.Printf("Registered event %s (%s)\n", def.Name, def.Type)
		return nil
	},
}

func parseMetricType(s string) (types.MetricType, error) {
	switch s {
	case "float":
		return types.FloatSeries, nil
	case "dict":
		return types.DictSeries, nil
	}
	return 0, fmt.Errorf("unknown metric type %q (want float or dict)", s)
}

func parseEventType(s string) (types.EventSeriesType, error) {
	switch s {
	case "daily":
		return types.DailyEvents, nil
	case "monthly":
		return types.MonthlyEvents, nil
	}
	return 0, fmt.Errorf("unknown event type %q (want daily or monthly)", s)
}

func init() {
	newMetricCmd.Flags().StringVar(&newMetricID, "id", "", "column family id (2-6 chars)")
	newMetricCmd.Flags().StringVar(&newMetricType, "type", "float", "metric type: float or dict")
	newMetricCmd.Flags().BoolVar(&newMetricDeletable, "deletable", false,
		"allow range deletes on this metric")
	_ = newMetricCmd.MarkFlagRequired("id")

	newEventCmd.Flags().StringVar(&newEventType, "type", "daily", "event type: daily or monthly")

	rootCmd.AddCommand(newMetricCmd)
	rootCmd.AddCommand(newEventCmd)
}
