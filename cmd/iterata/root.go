package main

import (
	"fmt"

	"github.com/hyperengineering/iterata"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	cfgBasePath string
	cfgStorage  string
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "iterata",
	Short: "Iterata - correction tracking CLI",
	Long: `Iterata tracks human corrections to machine-extracted data.

It stores each correction as a reviewable markdown record, detects
recurring patterns, and distills the accumulated expertise into skill
packages for extraction pipelines.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default: <base-path>/iterata.yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgBasePath, "base-path", "", "Root directory of the correction store (default: ./corrections)")
	rootCmd.PersistentFlags().StringVar(&cfgStorage, "storage", "", "Storage backend: markdown or sqlite (default: markdown)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
}

// loadConfig resolves configuration: config file, then environment, then
// explicit flags on top.
func loadConfig() (iterata.Config, error) {
	cfg, err := iterata.LoadConfigFile(cfgFile)
	if err != nil {
		return iterata.Config{}, err
	}
	if cfgBasePath != "" {
		cfg.BasePath = cfgBasePath
	}
	if cfgStorage != "" {
		cfg.Storage = cfgStorage
	}
	return cfg.WithDefaults(), nil
}

// openLoop builds a Loop from the resolved configuration.
func openLoop() (*iterata.Loop, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newLoopFrom(cfg)
}

func newLoopFrom(cfg iterata.Config) (*iterata.Loop, error) {
	loop, err := iterata.NewLoop(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize loop: %w", err)
	}
	return loop, nil
}
