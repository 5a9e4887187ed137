package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export statistics or corrections",
	Long: `Export the computed statistics (JSON or flattened CSV) or the raw
corrections (CSV).

Example:
  iterata export --format json > stats.json
  iterata export --format csv --out stats.csv
  iterata export --corrections --out corrections.csv`,
	RunE: runExport,
}

var (
	exportFormat      string
	exportOut         string
	exportCorrections bool
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json or csv")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default: stdout)")
	exportCmd.Flags().BoolVar(&exportCorrections, "corrections", false, "Export raw corrections as CSV instead of statistics")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	loop, err := openLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if exportCorrections {
		return loop.ExportCorrectionsCSV(w)
	}
	switch exportFormat {
	case "json":
		return loop.ExportJSON(w)
	case "csv":
		return loop.ExportCSV(w)
	default:
		return fmt.Errorf("unknown format %q: must be json or csv", exportFormat)
	}
}
