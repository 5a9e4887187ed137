package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Show prioritized recommendations",
	Long:  `Derive prioritized suggested actions from the detected patterns.`,
	RunE:  runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	loop, err := openLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	recs, err := loop.Recommendations()
	if err != nil {
		return err
	}
	if outputJSON {
		return outputAsJSON(cmd, recs)
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No recommendations yet.")
		return nil
	}
	for i, rec := range recs {
		fmt.Fprintf(out, "%d. [%s/%s] %s\n", i+1, rec.Priority, rec.Type, rec.Title)
		fmt.Fprintf(out, "   %s\n", rec.Reason)
	}
	return nil
}
