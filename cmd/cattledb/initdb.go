package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initdbForce bool

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create tables, store the configured definitions and mark the database initialised",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx, false)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Connection().DatabaseInit(ctx, initdbForce); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]any{
				"initialised": true,
				"engine":      appConfig.Engine.Backend,
				"metrics":     len(appConfig.Metrics),
				"events":      len(appConfig.Events),
			})
		}
		fmt.Printf("Initialised %s database with %d metric and %d event definitions\n",
			appConfig.Engine.Backend, len(appConfig.Metrics), len(appConfig.Events))
		return nil
	},
}

func init() {
	initdbCmd.Flags().BoolVar(&initdbForce, "force", false,
		"re-run initialisation even when the database carries an init marker")
	rootCmd.AddCommand(initdbCmd)
}
