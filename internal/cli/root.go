package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"mnemo/internal/config"
	"mnemo/internal/engine"
	"mnemo/internal/summarize"
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Experiential memory engine for decision agents",
	Long:  "Mnemo stores decision-cycle experiences, compacts them into logarithmic timelines, and retrieves them with recency, achievement, and boredom weighting. Single Go binary, JSON files on disk.",
}

var configPath string

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (JSON)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(timelineCmd)
}

// openEngine loads config, resolves the data dir, and opens the stores.
// Shared by every command that touches the memory files.
func openEngine() (*engine.Engine, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cfg, err
	}

	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, cfg, err
		}
	}

	summarizer, err := summarize.NewClient(cfg.Summarizer)
	if err != nil {
		return nil, cfg, fmt.Errorf("summarizer: %w", err)
	}

	eng, err := engine.Open(cfg, dataDir, summarizer)
	if err != nil {
		return nil, cfg, err
	}
	return eng, cfg, nil
}
