package main

import (
	"fmt"
	"sort"

	"github.com/hyperengineering/iterata"
	"github.com/spf13/cobra"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Detect recurring correction patterns",
	Long: `Group explained corrections into recurring patterns.

Example:
  iterata patterns
  iterata patterns --by-field
  iterata patterns --transformations`,
	RunE: runPatterns,
}

var (
	patternsByField         bool
	patternsTransformations bool
)

func init() {
	patternsCmd.Flags().BoolVar(&patternsByField, "by-field", false, "Group patterns by field path")
	patternsCmd.Flags().BoolVar(&patternsTransformations, "transformations", false, "Group by value-change shape")
	patternsCmd.MarkFlagsMutuallyExclusive("by-field", "transformations")
	rootCmd.AddCommand(patternsCmd)
}

func runPatterns(cmd *cobra.Command, args []string) error {
	loop, err := openLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	out := cmd.OutOrStdout()

	switch {
	case patternsByField:
		byField, err := loop.PatternsByField()
		if err != nil {
			return err
		}
		if outputJSON {
			return outputAsJSON(cmd, byField)
		}
		if len(byField) == 0 {
			fmt.Fprintln(out, "No patterns detected.")
			return nil
		}
		fields := make([]string, 0, len(byField))
		for field := range byField {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(out, "%s:\n", field)
			printPatterns(cmd, byField[field], "  ")
		}
		return nil

	case patternsTransformations:
		transformations, err := loop.TransformationPatterns()
		if err != nil {
			return err
		}
		if outputJSON {
			return outputAsJSON(cmd, transformations)
		}
		if len(transformations) == 0 {
			fmt.Fprintln(out, "No transformation patterns detected.")
			return nil
		}
		for _, tp := range transformations {
			fmt.Fprintf(out, "%s (%d times)\n", tp.Signature, tp.Frequency)
			for _, ex := range tp.Examples {
				fmt.Fprintf(out, "  %q -> %q (%s)\n", ex.Original, ex.Corrected, ex.FieldPath)
			}
		}
		return nil

	default:
		patterns, err := loop.Patterns()
		if err != nil {
			return err
		}
		if outputJSON {
			return outputAsJSON(cmd, patterns)
		}
		if len(patterns) == 0 {
			fmt.Fprintln(out, "No patterns detected.")
			return nil
		}
		printPatterns(cmd, patterns, "")
		return nil
	}
}

func printPatterns(cmd *cobra.Command, patterns []iterata.Pattern, indent string) {
	out := cmd.OutOrStdout()
	for _, p := range patterns {
		fmt.Fprintf(out, "%s[%s] %s\n", indent, p.ID, p.Description)
		fmt.Fprintf(out, "%s    %d occurrences, %s impact, automation %.0f%%\n",
			indent, p.Frequency, p.Impact, p.AutomationPotential*100)
	}
}
