package main

import (
	"fmt"
	"sort"

	"github.com/hyperengineering/iterata"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show correction statistics",
	Long: `Compute aggregate statistics over the correction store.

Example:
  iterata stats
  iterata stats --detailed --json`,
	RunE: runStats,
}

var statsDetailed bool

func init() {
	statsCmd.Flags().BoolVar(&statsDetailed, "detailed", false, "Show detailed statistics")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	loop, err := openLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	stats, err := loop.Stats()
	if err != nil {
		return err
	}

	if outputJSON {
		return outputAsJSON(cmd, stats)
	}

	summary, err := loop.Summary()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, summary)

	if !statsDetailed {
		return nil
	}

	fmt.Fprintf(out, "\nCorrectors: %d\n", stats.Correctors.TotalCorrectors)
	if stats.Correctors.MostActive != "" {
		fmt.Fprintf(out, "  Most active: %s (%d)\n",
			stats.Correctors.MostActive, stats.Correctors.ByCorrector[stats.Correctors.MostActive])
	}

	if stats.Confidence.WithConfidence > 0 {
		fmt.Fprintf(out, "\nConfidence (for %d corrections):\n", stats.Confidence.WithConfidence)
		fmt.Fprintf(out, "  min %.2f / mean %.2f / max %.2f\n",
			stats.Confidence.Min, stats.Confidence.Mean, stats.Confidence.Max)
		fmt.Fprintf(out, "  Below 0.5: %d (%.0f%%)\n",
			stats.Confidence.LowConfidence, stats.Confidence.LowRate*100)
	}

	fmt.Fprintf(out, "\nDocuments: %d (%.1f corrections/doc)\n",
		stats.Documents.TotalDocuments, stats.Documents.AveragePerDoc)

	if len(stats.Time.PerWeek) > 0 {
		fmt.Fprintf(out, "\nActivity by week:\n")
		weeks := make([]string, 0, len(stats.Time.PerWeek))
		for week := range stats.Time.PerWeek {
			weeks = append(weeks, week)
		}
		sort.Strings(weeks)
		for _, week := range weeks {
			fmt.Fprintf(out, "  %s: %d\n", week, stats.Time.PerWeek[week])
		}
	}
	return nil
}

var summaryCmd = &cobra.Command{
	Use:   "patterns-summary",
	Short: "Show a pattern detection overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		loop, err := openLoop()
		if err != nil {
			return err
		}
		defer loop.Close()

		detector := iterata.NewDetector(loop.Storage())
		summary, err := detector.Summary()
		if err != nil {
			return err
		}
		if outputJSON {
			return outputAsJSON(cmd, summary)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Patterns: %d (%d high / %d medium / %d low impact)\n",
			summary.TotalPatterns, summary.HighImpact, summary.MediumImpact, summary.LowImpact)
		fmt.Fprintf(out, "Highly automatable: %d\n", summary.HighlyAutomatable)
		fmt.Fprintf(out, "Fields with patterns: %d\n", summary.FieldsWithPatterns)
		fmt.Fprintf(out, "Transformation patterns: %d\n", summary.TransformationPatterns)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
