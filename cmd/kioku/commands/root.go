// Package commands implements the kioku CLI.
package commands

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/pkg/utils"
)

// version is set at build time via -ldflags.
var version = "dev"

const defaultConfigPath = "/usr/local/etc/kioku/config.yaml"

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "kioku",
	Short: "Local hybrid vector store and retrieval engine",
	Long: `kioku ingests documents, web pages, repositories, notes, and transcripts
into a local vector store and answers retrieval queries over them.

Most commands talk to a running server over HTTP so they never contend with
it for storage locks. Pass --server "" to operate on the data directory
directly when no server is running.

Examples:
  kioku server
  kioku ingest ~/notes
  kioku ingest --source web https://example.com/post
  kioku search "how do we rotate the signing keys"
  kioku status --output json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		// API keys and backup credentials come from the environment; a .env
		// in the working directory is how development setups provide them.
		_ = godotenv.Load()
	})

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// loadConfig loads the config from the --config path. When the flag still
// holds the default, a config.yaml in the current directory wins, so running
// from a project dir picks up that project's config. Returns the config and
// the path actually loaded.
func loadConfig() (*config.Config, string, error) {
	return loadConfigFrom(flagConfig)
}

func loadConfigFrom(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newLogger builds the CLI logger. --debug wins over the config setting.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return utils.NewLogger(cfg.Debug || flagDebug)
}
