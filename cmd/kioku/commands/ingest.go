package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiokusearch/kioku/internal/cli"
	"github.com/kiokusearch/kioku/internal/models"
)

var (
	ingestServer string
	ingestSource string
	ingestTitle  string
	ingestTags   []string
	ingestOutput string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [flags] <target>",
	Short: "Ingest a target through a source adapter",
	Long: `Ingest a target through its source adapter and commit the resulting
records. Re-ingesting a target replaces its previous records wholesale.

The target depends on the source type: a file or directory for document, a
URL for web, a local clone path for repo-code and repo-diff, an export file
for repo-issue and repo-pr, a transcript file for voice. For note, the
remaining arguments are the note text itself.

Examples:
  kioku ingest ~/notes
  kioku ingest --source web https://example.com/post
  kioku ingest --source repo-code --tag backend ~/src/payments
  kioku ingest --source note --title "deploy" the deploy key lives in vault`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestServer, "server", defaultServerURL,
		"server URL (empty = use direct storage when server is not running)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", string(models.SourceDocument), "source type")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "title override for the produced records")
	ingestCmd.Flags().StringArrayVar(&ingestTags, "tag", nil, "tag to attach to every record (repeatable)")
	ingestCmd.Flags().StringVar(&ingestOutput, "output", "text", "output format: text or json")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(ingestOutput)
	if err != nil {
		return err
	}

	req, err := buildIngestRequest(ingestSource, args, ingestTitle, ingestTags)
	if err != nil {
		return err
	}

	if ingestServer != "" {
		var report models.IngestReport
		if err := postJSON(ingestServer+"/api/v1/ingest", req, &report); err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		return cli.WriteIngestReport(os.Stdout, &report, format)
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

	report, err := c.Pipeline.Ingest(cmd.Context(), req)
	if err != nil {
		if report != nil {
			_ = cli.WriteIngestReport(os.Stdout, report, format)
		}
		return fmt.Errorf("ingest failed: %w", err)
	}
	return cli.WriteIngestReport(os.Stdout, report, format)
}

// buildIngestRequest maps CLI arguments onto an ingest request. Local paths
// are resolved to absolute before they leave the process: in server mode a
// relative path would otherwise resolve against the server's working
// directory.
func buildIngestRequest(sourceType string, args []string, title string, tags []string) (models.IngestRequest, error) {
	st := models.SourceType(sourceType)
	if !st.Valid() {
		return models.IngestRequest{}, fmt.Errorf("%w: %q (valid: %s)",
			models.ErrUnsupportedSource, sourceType, joinSourceTypes())
	}

	req := models.IngestRequest{Source: st, Title: title, Tags: tags}
	if st == models.SourceNote {
		req.Content = strings.TrimSpace(strings.Join(args, " "))
		return req, nil
	}
	if len(args) != 1 {
		return models.IngestRequest{}, fmt.Errorf("ingest of %s takes exactly one target", st)
	}
	target := args[0]
	if st != models.SourceWeb {
		if abs, err := filepath.Abs(target); err == nil {
			target = abs
		}
	}
	req.Target = target
	return req, nil
}

func joinSourceTypes() string {
	parts := make([]string, len(models.AllSourceTypes))
	for i, st := range models.AllSourceTypes {
		parts[i] = string(st)
	}
	return strings.Join(parts, ", ")
}
