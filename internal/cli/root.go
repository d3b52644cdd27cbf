package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhatier/mnemo/internal/config"
	"github.com/jhatier/mnemo/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Persistent associative memory store",
	Long:  "Mnemo stores annotated conversation segments, links them into a typed graph, and retrieves them through hybrid full-text, tag, and graph-weighted search. Single Go binary backed by SQLite.",
}

var (
	flagConfig string
	flagDB     string
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "path to database file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(dupesCmd)
}

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}

// openStore opens the database honoring the --db flag, then the config,
// then the default path.
func openStore(cfg *config.Config) (*store.DB, error) {
	path := flagDB
	if path == "" {
		path = cfg.Database.Path
	}
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	return store.Open(path)
}
