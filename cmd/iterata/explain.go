package main

import (
	"fmt"

	"github.com/hyperengineering/iterata"
	"github.com/spf13/cobra"
)

var explainCmd = &cobra.Command{
	Use:   "explain [correction-id]",
	Short: "Attach an explanation to a pending correction",
	Long: `Explain why a correction was needed.

With --text, the explanation is recorded as human-provided. Without it,
the configured explainer backend is invoked. With --all, the backend is
run over every pending correction.

Example:
  iterata explain 01J3ZE... --text "Decimal comma instead of dot" --type format_error
  iterata explain --all`,
	RunE: runExplain,
}

var (
	explainText       string
	explainType       string
	explainAutomation float64
	explainTags       []string
	explainAll        bool
)

func init() {
	explainCmd.Flags().StringVar(&explainText, "text", "", "Explanation text")
	explainCmd.Flags().StringVar(&explainType, "type", "", "Correction type: format_error, business_rule, model_limitation, context_missing, ocr_error, other")
	explainCmd.Flags().Float64Var(&explainAutomation, "automation", 0, "Automation potential (0.0-1.0)")
	explainCmd.Flags().StringSliceVar(&explainTags, "tags", nil, "Tags for the explanation")
	explainCmd.Flags().BoolVar(&explainAll, "all", false, "Run the explainer backend over every pending correction")

	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	loop, err := openLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	if explainAll {
		explained, failures, err := loop.ExplainPending(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Explained %d corrections\n", explained)
		for id, failure := range failures {
			fmt.Fprintf(out, "  failed %s: %v\n", id, failure)
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("expected a correction id (or --all)")
	}

	var explanation *iterata.Explanation
	if explainText != "" {
		explanation = &iterata.Explanation{
			Text:                explainText,
			Type:                iterata.ExplanationHuman,
			AutomationPotential: explainAutomation,
			Tags:                explainTags,
		}
		if explainType != "" {
			correctionType := iterata.CorrectionType(explainType)
			if !correctionType.IsValid() {
				return fmt.Errorf("invalid correction type: %s", explainType)
			}
			explanation.CorrectionType = correctionType
		}
	}

	record, err := loop.Explain(cmd.Context(), args[0], explanation)
	if err != nil {
		return err
	}
	return outputRecord(cmd, record)
}
