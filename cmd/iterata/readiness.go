package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check skill readiness",
	Long:  `Report whether enough explained corrections and patterns exist to generate a skill.`,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	loop, err := openLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	readiness, err := loop.CheckReadiness()
	if err != nil {
		return err
	}
	if outputJSON {
		return outputAsJSON(cmd, readiness)
	}

	out := cmd.OutOrStdout()
	state := "NOT READY"
	if readiness.Ready {
		state = "READY"
	}
	fmt.Fprintf(out, "%s: %s\n", state, readiness.Reason)
	fmt.Fprintf(out, "  Explained corrections: %d\n", readiness.CorrectionsCount)
	fmt.Fprintf(out, "  Patterns detected: %d\n", readiness.PatternsCount)
	return nil
}
