package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperengineering/iterata"
	"github.com/spf13/cobra"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputRecord prints a single record in the configured format.
func outputRecord(cmd *cobra.Command, r *iterata.Record) error {
	if outputJSON {
		return outputAsJSON(cmd, recordJSON(r))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Correction: %s\n", r.Correction.ID)
	fmt.Fprintf(out, "  Document: %s\n", r.Correction.DocumentID)
	fmt.Fprintf(out, "  Field:    %s\n", r.Correction.FieldPath)
	fmt.Fprintf(out, "  Value:    %q -> %q\n", r.Correction.OriginalValue, r.Correction.CorrectedValue)
	fmt.Fprintf(out, "  Status:   %s\n", r.Status)
	if r.Explanation != nil {
		fmt.Fprintf(out, "  Category: %s\n", r.Explanation.Category)
		fmt.Fprintf(out, "  Reason:   %s\n", r.Explanation.Text)
	}
	return nil
}

// outputRecordList prints many records in the configured format.
func outputRecordList(cmd *cobra.Command, records []*iterata.Record) error {
	if outputJSON {
		list := make([]map[string]any, 0, len(records))
		for _, r := range records {
			list = append(list, recordJSON(r))
		}
		return outputAsJSON(cmd, list)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No corrections found.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(out, "[%s] %s  %s / %s\n", r.Correction.ID,
			r.Correction.Timestamp.Format(time.RFC3339),
			r.Correction.DocumentID, r.Correction.FieldPath)
		fmt.Fprintf(out, "    %q -> %q (%s)\n",
			r.Correction.OriginalValue, r.Correction.CorrectedValue, r.Status)
	}
	return nil
}

// recordJSON flattens a record for JSON output, joining the explanation.
func recordJSON(r *iterata.Record) map[string]any {
	m := map[string]any{
		"correction_id":   r.Correction.ID,
		"timestamp":       r.Correction.Timestamp.Format(time.RFC3339),
		"document_id":     r.Correction.DocumentID,
		"field_path":      r.Correction.FieldPath,
		"original_value":  r.Correction.OriginalValue,
		"corrected_value": r.Correction.CorrectedValue,
		"status":          r.Status,
	}
	if r.Correction.ConfidenceBefore != nil {
		m["confidence_before"] = *r.Correction.ConfidenceBefore
	}
	if r.Correction.CorrectorID != "" {
		m["corrector_id"] = r.Correction.CorrectorID
	}
	if r.Explanation != nil {
		m["explanation"] = r.Explanation
	}
	return m
}
