package main

import (
	"github.com/hyperengineering/iterata"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log a correction",
	Long: `Record a human correction to a machine-extracted field value.

Example:
  iterata log --document invoice_001.pdf --field total_amount \
    --original "1.234,56" --corrected "1234.56"
  iterata log -d report.pdf -f date --original "01/15/2024" --corrected "2024-01-15" \
    --explanation "US date format normalized to ISO"`,
	RunE: runLog,
}

var (
	logDocument    string
	logField       string
	logOriginal    string
	logCorrected   string
	logExplanation string
	logConfidence  float64
	logCorrector   string
)

func init() {
	logCmd.Flags().StringVarP(&logDocument, "document", "d", "", "Document identifier (required)")
	logCmd.Flags().StringVarP(&logField, "field", "f", "", "Field path of the corrected value (required)")
	logCmd.Flags().StringVar(&logOriginal, "original", "", "Original extracted value (required)")
	logCmd.Flags().StringVar(&logCorrected, "corrected", "", "Corrected value (required)")
	logCmd.Flags().StringVar(&logExplanation, "explanation", "", "Human explanation, attached immediately")
	logCmd.Flags().Float64Var(&logConfidence, "confidence", 0, "Extraction confidence before correction (0.0-1.0)")
	logCmd.Flags().StringVar(&logCorrector, "corrector", "", "Who made the correction")

	_ = logCmd.MarkFlagRequired("document")
	_ = logCmd.MarkFlagRequired("field")
	_ = logCmd.MarkFlagRequired("original")
	_ = logCmd.MarkFlagRequired("corrected")

	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	loop, err := openLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	params := iterata.LogParams{
		DocumentID:  logDocument,
		FieldPath:   logField,
		Original:    logOriginal,
		Corrected:   logCorrected,
		Explanation: logExplanation,
		CorrectorID: logCorrector,
	}
	if cmd.Flags().Changed("confidence") {
		params.ConfidenceBefore = &logConfidence
	}

	record, err := loop.Log(cmd.Context(), params)
	if err != nil {
		return err
	}
	return outputRecord(cmd, record)
}
