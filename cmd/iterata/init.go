package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperengineering/iterata"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new correction store",
	Long: `Create the correction store layout and a sample config file.

Example:
  iterata init --base-path ./corrections --skill-path ./my-skill`,
	RunE: runInit,
}

var initSkillPath string

func init() {
	initCmd.Flags().StringVar(&initSkillPath, "skill-path", "", "Path for skill generation (optional)")
	rootCmd.AddCommand(initCmd)
}

const sampleConfig = `# iterata configuration
base_path: %s
skill_path: %s
auto_explain: false
min_corrections_for_skill: 25

# Optional: storage backend ("markdown" or "sqlite")
# storage: markdown

# Optional: configure a backend for auto-explanation
# backend:
#   provider: anthropic
#   api_key: ${ANTHROPIC_API_KEY}
#   model: claude-sonnet-4-5
`

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if initSkillPath != "" {
		cfg.SkillPath = initSkillPath
	}

	loop, err := iterata.NewLoop(cfg)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer loop.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized correction store: %s\n", cfg.BasePath)

	configPath := filepath.Join(cfg.BasePath, iterata.ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		skillPath := cfg.SkillPath
		if skillPath == "" {
			skillPath = "./my-skill"
		}
		content := fmt.Sprintf(sampleConfig, cfg.BasePath, skillPath)
		if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		fmt.Fprintf(out, "Created config file: %s\n", configPath)
	}
	return nil
}
