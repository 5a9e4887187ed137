package iterata

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// ExportJSON writes the computed Statistics as indented JSON, preserving the
// full nested structure.
func (a *Analyzer) ExportJSON(w io.Writer) error {
	stats, err := a.ComputeStats()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// ExportCSV writes the computed Statistics as key/value rows, flattening
// nested structures into dotted keys (e.g. "time_stats.corrections_last_7_days").
// Rows are sorted by key so output is stable across runs.
func (a *Analyzer) ExportCSV(w io.Writer) error {
	stats, err := a.ComputeStats()
	if err != nil {
		return err
	}
	flat, err := FlattenStatistics(stats)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"key", "value"}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := cw.Write([]string{k, flat[k]}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCorrectionsCSV writes one row per stored correction, pending and
// explained alike, in storage order.
func (a *Analyzer) ExportCorrectionsCSV(w io.Writer) error {
	records, err := a.storage.LoadCorrections(FilterAll)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"correction_id", "timestamp", "document_id", "field_path",
		"original_value", "corrected_value", "status", "category", "corrector_id",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		category := ""
		if r.Explanation != nil {
			category = string(r.Explanation.Category)
		}
		row := []string{
			r.Correction.ID,
			r.Correction.Timestamp.Format(time.RFC3339),
			r.Correction.DocumentID,
			r.Correction.FieldPath,
			r.Correction.OriginalValue,
			r.Correction.CorrectedValue,
			string(r.Status),
			category,
			r.Correction.CorrectorID,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FlattenStatistics converts a Statistics into a flat map of dotted keys to
// scalar strings. Numbers keep their JSON rendering so re-parsing the export
// yields the original values; parsing back with ParseFlatValue restores them.
func FlattenStatistics(stats *Statistics) (map[string]string, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}

	flat := map[string]string{}
	flattenInto(flat, "", tree)
	return flat, nil
}

// ParseFlatValue interprets one flattened CSV value back into its scalar
// type: bool, int64, float64, or string.
func ParseFlatValue(s string) any {
	if s == "true" || s == "false" {
		return s == "true"
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func flattenInto(flat map[string]string, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			flattenInto(flat, joinKey(prefix, k), child)
		}
	case []any:
		for i, child := range val {
			flattenInto(flat, joinKey(prefix, strconv.Itoa(i)), child)
		}
	case json.Number:
		flat[prefix] = val.String()
	case bool:
		flat[prefix] = strconv.FormatBool(val)
	case nil:
		flat[prefix] = ""
	default:
		flat[prefix] = fmt.Sprint(val)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
