// Package main provides the evoforge CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"evoforge/internal/config"
	"evoforge/internal/logging"
)

var (
	// Global flags
	cfgPath string
	dataDir string
	verbose bool

	// Loaded configuration
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "evoforge",
	Short: "evoforge - evolutionary code optimization engine",
	Long: `evoforge evolves a code artifact toward a stated goal by looping
specialized model agents over it. Each cycle invokes an agent, applies its
SEARCH/REPLACE diff inside the evolvable region, scores the candidate along
blueprint-weighted metrics, and feeds lessons from failed attempts back into
later prompts as symbolic residue.

Only code between EVOLVE-BLOCK-START and EVOLVE-BLOCK-END markers is ever
modified; a file without markers is evolvable as a whole.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		logCfg := logging.Config{
			Enabled: cfg.Logging.Enabled,
			Level:   cfg.Logging.Level,
			Dir:     cfg.Logging.Dir,
			JSON:    cfg.Logging.JSON,
		}
		if verbose {
			logCfg.Enabled = true
			logCfg.Level = "debug"
		}
		if logCfg.Enabled && logCfg.Dir == "" {
			logCfg.Dir = dataDir
		}
		return logging.Initialize(logCfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "evoforge.yaml", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".evoforge", "data directory for artifacts, tasks, and residue")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// taskRoot is where running tasks publish status and pick up control files.
func taskRoot() string {
	return filepath.Join(dataDir, "tasks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
