package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateSkillCmd = &cobra.Command{
	Use:   "update-skill",
	Short: "Regenerate the skill package from explained corrections",
	Long: `Generate (or refresh) the skill package from the current patterns.

Requires skill_path in the config or the --skill-path flag.

Example:
  iterata update-skill
  iterata update-skill --force --skill-path ./my-skill`,
	RunE: runUpdateSkill,
}

var (
	updateSkillForce bool
	updateSkillPath  string
)

func init() {
	updateSkillCmd.Flags().BoolVar(&updateSkillForce, "force", false, "Generate even below the correction threshold")
	updateSkillCmd.Flags().StringVar(&updateSkillPath, "skill-path", "", "Override the configured skill path")
	rootCmd.AddCommand(updateSkillCmd)
}

func runUpdateSkill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if updateSkillPath != "" {
		cfg.SkillPath = updateSkillPath
	}

	loop, err := newLoopFrom(cfg)
	if err != nil {
		return err
	}
	defer loop.Close()

	result, err := loop.UpdateSkill(updateSkillForce)
	if err != nil {
		return err
	}
	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	if !result.Updated {
		fmt.Fprintf(out, "Skill not updated: %s\n", result.Reason)
		return nil
	}
	fmt.Fprintf(out, "Skill updated: %s\n", result.SkillFile)
	fmt.Fprintf(out, "  Corrections: %d\n", result.CorrectionsCount)
	fmt.Fprintf(out, "  Patterns:    %d\n", result.PatternsCount)
	return nil
}
