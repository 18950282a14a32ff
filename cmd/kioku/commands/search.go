package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiokusearch/kioku/internal/cli"
	"github.com/kiokusearch/kioku/internal/models"
)

var (
	searchServer        string
	searchLimit         int
	searchMinScore      float64
	searchSources       []string
	searchTags          []string
	searchKeywordWeight float64
	searchOutput        string
)

var searchCmd = &cobra.Command{
	Use:   "search [flags] <query>",
	Short: "Query the index",
	Long: `Query the index. The query is all remaining arguments joined by spaces,
so multi-word queries work with or without quotes.

Examples:
  kioku search how do we rotate the signing keys
  kioku search --source repo-code --limit 10 connection pool retry
  kioku search --tag runbook --output json "postgres failover"
  kioku search --keyword-weight 0.5 exact error string`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchServer, "server", defaultServerURL,
		"server URL (empty = use direct storage when server is not running)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "number of results (0 = configured default)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum blended score (0 = configured default)")
	searchCmd.Flags().StringArrayVar(&searchSources, "source", nil, "restrict to a source type (repeatable)")
	searchCmd.Flags().StringArrayVar(&searchTags, "tag", nil, "restrict to records carrying a tag (repeatable)")
	searchCmd.Flags().Float64Var(&searchKeywordWeight, "keyword-weight", 0,
		"keyword blend weight in [0,1] (0 = configured default; negative forces pure vector)")
	searchCmd.Flags().StringVar(&searchOutput, "output", "text",
		"output format: text (human-readable), compact (one result per line), or json")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(searchOutput)
	if err != nil {
		return err
	}
	queryStr := strings.TrimSpace(strings.Join(args, " "))
	if queryStr == "" {
		return fmt.Errorf("query cannot be empty")
	}

	query := &models.RetrieveQuery{
		Query:         queryStr,
		Limit:         searchLimit,
		MinScore:      searchMinScore,
		Tags:          searchTags,
		KeywordWeight: searchKeywordWeight,
	}
	for _, s := range searchSources {
		query.SourceTypes = append(query.SourceTypes, models.SourceType(s))
	}

	if searchServer != "" {
		var resp models.SearchResponse
		if err := postJSON(searchServer+"/api/v1/search", query, &resp); err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return cli.WriteSearchResults(os.Stdout, &resp, format)
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

	start := time.Now()
	results, err := c.Engine.Retrieve(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(os.Stdout, &models.SearchResponse{
		Results:     results,
		Total:       len(results),
		Query:       queryStr,
		QueryTimeMS: time.Since(start).Milliseconds(),
	}, format)
}
