package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiokusearch/kioku/internal/sourceid"
)

var (
	deleteServer string
	deletePath   string
	deleteRepo   string
)

var deleteCmd = &cobra.Command{
	Use:   "delete [flags]",
	Short: "Delete records by source path or repository URL",
	Long: `Delete every record ingested from a source path, or every record of a
repository across all its source types. Exactly one of --path and --repo
must be given.

Examples:
  kioku delete --path ~/notes/todo.md
  kioku delete --path https://example.com/post
  kioku delete --repo https://github.com/acme/payments`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringVar(&deleteServer, "server", defaultServerURL,
		"server URL (empty = use direct storage when server is not running)")
	deleteCmd.Flags().StringVar(&deletePath, "path", "",
		"source path to delete (file path, URL, or note:<hash>)")
	deleteCmd.Flags().StringVar(&deleteRepo, "repo", "", "repository URL to delete")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if (deletePath == "") == (deleteRepo == "") {
		return fmt.Errorf("specify exactly one of --path and --repo")
	}

	sourcePath := deletePath
	if sourcePath != "" {
		canonical, err := canonicalSourcePath(sourcePath)
		if err != nil {
			return err
		}
		sourcePath = canonical
	}

	if deleteServer != "" {
		target := deleteServer + "/api/v1/sources?"
		if sourcePath != "" {
			target += "sourcePath=" + url.QueryEscape(sourcePath)
		} else {
			target += "repoUrl=" + url.QueryEscape(deleteRepo)
		}
		var out struct {
			Status  string `json:"status"`
			Records int    `json:"records_deleted"`
		}
		if err := callJSON(http.MethodDelete, target, nil, &out); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Printf("Deleted %d record(s)\n", out.Records)
		return nil
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

	var removed int
	if sourcePath != "" {
		removed = c.Syncer.DeleteBySourcePath(cmd.Context(), sourcePath)
	} else {
		removed = c.Syncer.DeleteByRepoURL(cmd.Context(), deleteRepo)
	}
	fmt.Printf("Deleted %d record(s)\n", removed)
	return nil
}

// canonicalSourcePath resolves a --path argument to the identifier records
// are stored under. Local file paths are resolved here, where relative paths
// mean something; URLs and note identifiers pass through normalization only.
func canonicalSourcePath(p string) (string, error) {
	if strings.HasPrefix(p, "note:") {
		return p, nil
	}
	if strings.Contains(p, "://") {
		return sourceid.ForURL(p)
	}
	return sourceid.ForPath(p)
}
