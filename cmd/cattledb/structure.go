package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var structureCmd = &cobra.Command{
	Use:   "structure",
	Short: "List the database tables and their column families",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx, false)
		if err != nil {
			return err
		}
		defer c.Close()

		tables, err := c.DatabaseStructure(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(tables)
		}
		for _, t := range tables {
			fmt.Printf("%-24s %-32s %s\n", t.Name, t.FullName,
				strings.Join(t.ColumnFamilies, ","))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(structureCmd)
}
