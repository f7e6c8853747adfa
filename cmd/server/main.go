package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "mentor_scheduler"

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Lesson requests, lessons and notification emails for the mentoring platform",
	Long: `mentor_scheduler serves the lesson request and lesson API, runs the
notification scheduler and manages the database schema.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
