package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/cli"
	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/store"
)

var (
	statusServer string
	statusOutput string
)

var statusCmd = &cobra.Command{
	Use:   "status [flags]",
	Short: "Show index and storage status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", defaultServerURL,
		"server URL (empty = use direct storage when server is not running)")
	statusCmd.Flags().StringVar(&statusOutput, "output", "text", "output format: text or json")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	if statusServer != "" {
		var report models.StatusReport
		if err := getJSON(statusServer+"/api/v1/status", &report); err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		return cli.WriteStatus(os.Stdout, &report, format)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	c, err := initComponents(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	report := models.StatusReport{
		Ready:      c.Syncer.Ready(),
		Records:    c.Index.Count(),
		BySource:   c.Index.CountBySource(),
		Dimensions: c.Index.Dimensions(),
		Dirty:      c.Syncer.Pending(),
		Backend:    cfg.Storage.Backend,
		Keyword:    cfg.Storage.KeywordEnabledOrDefault(),
	}
	usage, err := store.DiskUsage(cfg.Storage.ActivePaths()...)
	if err != nil {
		logger.Warn("disk usage unavailable", zap.Error(err))
	} else {
		report.DiskUsage = usage
	}
	return cli.WriteStatus(os.Stdout, &report, format)
}
