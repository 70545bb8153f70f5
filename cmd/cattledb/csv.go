package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cattledb/cattledb/internal/localstore"
	"github.com/cattledb/cattledb/internal/series"
)

var (
	csvDataDir string
	csvMetrics []string
	csvFrom    string
	csvTo      string
)

var exportCSVCmd = &cobra.Command{
	Use:   "export-csv <key>",
	Short: "Export float metrics of one key into a per-key CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		key := args[0]
		from, to, err := parseRange(csvFrom, csvTo)
		if err != nil {
			return err
		}
		if len(csvMetrics) == 0 {
			return fmt.Errorf("export-csv: no metrics given")
		}

		c, err := openClient(ctx, true)
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.GetTimeSeries(ctx, key, csvMetrics, from, to)
		if err != nil {
			return err
		}
		merged, err := series.MergeFloatSeries(key, 0, list...)
		if err != nil {
			return err
		}

		local, err := localstore.New(csvDataDir)
		if err != nil {
			return err
		}
		if err := local.StoreTimeSeries(merged); err != nil {
			return err
		}
		path, err := local.FileForKey(key, false)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]any{"file": path, "points": merged.Len()})
		}
		fmt.Printf("Wrote %d points to %s\n", merged.Len(), path)
		return nil
	},
}

var importCSVCmd = &cobra.Command{
	Use:   "import-csv <key>",
	Short: "Import a per-key CSV file, one float series per column",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		key := args[0]

		local, err := localstore.New(csvDataDir)
		if err != nil {
			return err
		}
		data, err := local.GetTimeSeries(key)
		if err != nil {
			return err
		}
		if data.Empty() {
			return fmt.Errorf("import-csv: no rows for key %q in %s", key, csvDataDir)
		}

		c, err := openClient(ctx, true)
		if err != nil {
			return err
		}
		defer c.Close()

		total := 0
		for _, metric := range data.Columns() {
			ts := series.NewFloat(key, metric)
			for i := 0; i < data.Len(); i++ {
				p := data.At(i)
				v, ok := p.Value.Dict()[metric].(float64)
				if !ok {
					continue
				}
				if _, err := ts.Insert(p.TS, 0, series.Float(float32(v)), true); err != nil {
					return err
				}
			}
			if ts.Empty() {
				continue
			}
			n, err := c.PutTimeSeries(ctx, ts)
			if err != nil {
				return fmt.Errorf("importing metric %q: %w", metric, err)
			}
			total += n
		}
		if jsonOutput {
			return outputJSON(map[string]any{"key": key, "points": total})
		}
		fmt.Printf("Imported %d points for key %s\n", total, key)
		return nil
	},
}

// parseRange accepts dates or RFC 3339 timestamps; a date "to" bound covers
// the whole day.
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, _, err := parseTime(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad --from: %w", err)
	}
	to, toDate, err := parseTime(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad --to: %w", err)
	}
	if toDate {
		to = to.Add(24*time.Hour - time.Second)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to is before --from")
	}
	return from, to, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}

func init() {
	for _, cmd := range []*cobra.Command{exportCSVCmd, importCSVCmd} {
		cmd.Flags().StringVar(&csvDataDir, "data-dir", ".", "directory of per-key CSV files")
	}
	exportCSVCmd.Flags().StringSliceVar(&csvMetrics, "metrics", nil, "metric names to export")
	exportCSVCmd.Flags().StringVar(&csvFrom, "from", "", "range start (2006-01-02 or RFC 3339)")
	exportCSVCmd.Flags().StringVar(&csvTo, "to", "", "range end (2006-01-02 or RFC 3339)")
	_ = exportCSVCmd.MarkFlagRequired("metrics")
	_ = exportCSVCmd.MarkFlagRequired("from")
	_ = exportCSVCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(exportCSVCmd)
	rootCmd.AddCommand(importCSVCmd)
}
