package main

import (
	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one notification scheduler pass and exit",
	Long: `Run one notification pass over the window (now - SCHEDULER_INTERVAL, now].
Use it from an external cron that fires every SCHEDULER_INTERVAL.`,
	RunE: runTick,
}

func init() {
	rootCmd.AddCommand(tickCmd)
}

func runTick(cmd *cobra.Command, args []string) error {
	d, err := buildDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.close()

	return d.notifications.Tick(cmd.Context())
}
