package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/recipes/internal/config"
	"github.com/Togather-Foundation/recipes/internal/domain/ids"
	"github.com/Togather-Foundation/recipes/internal/ingest"
	"github.com/Togather-Foundation/recipes/internal/jobs"
)

type importOptions struct {
	owner   string
	file    string
	workers int
	json    bool
}

func newImportCommand(opts *globalOptions) *cobra.Command {
	iopts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import <url>",
		Short: "Import a single recipe page",
		Long: `Fetch, extract, classify and persist one recipe page directly against the
database, bypassing the HTTP API.

Examples:
  # Import a page into the public catalog
  server import https://example.com/recipes/banana-bread

  # Import a page into an owner's collection
  server import https://example.com/recipes/banana-bread --owner 0b6c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, iopts, args[0])
		},
	}
	cmd.PersistentFlags().StringVar(&iopts.owner, "owner", "", "owner id to link imported recipes to")
	cmd.PersistentFlags().BoolVar(&iopts.json, "json", false, "print the result as JSON")

	batch := &cobra.Command{
		Use:   "batch",
		Short: "Import a file of recipe URLs",
		Long: `Run a batch import synchronously. The file holds one URL per line; blank
lines and lines starting with # are ignored. Use --file - to read stdin.

Examples:
  server import batch --file urls.txt
  server import batch --file urls.txt --owner 0b6c... --workers 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportBatch(cmd, opts, iopts)
		},
	}
	batch.Flags().StringVar(&iopts.file, "file", "", "file of URLs, one per line (- for stdin)")
	batch.Flags().IntVar(&iopts.workers, "workers", 0, "parallel imports (default: BATCH_WORKERS)")
	_ = batch.MarkFlagRequired("file")

	cmd.AddCommand(batch)
	return cmd
}

func runImport(cmd *cobra.Command, opts *globalOptions, iopts *importOptions, rawURL string) error {
	owner, err := parseOwner(iopts.owner)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts, false)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Logging)

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.orchestrator.Import(cmd.Context(), ingest.Request{URL: rawURL, OwnerID: owner})
	out := cmd.OutOrStdout()
	if iopts.json {
		if err := writeIndentedJSON(out, importSummary(res)); err != nil {
			return err
		}
	} else {
		printImportResult(out, res)
	}
	if !res.Success {
		return fmt.Errorf("import failed at %s stage", res.Stage)
	}
	return nil
}

func runImportBatch(cmd *cobra.Command, opts *globalOptions, iopts *importOptions) error {
	owner, err := parseOwner(iopts.owner)
	if err != nil {
		return err
	}
	urls, err := readURLFile(cmd.InOrStdin(), iopts.file)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return errors.New("no urls found in input")
	}

	cfg, err := loadConfig(opts, false)
	if err != nil {
		return err
	}
	if iopts.workers > 0 {
		cfg.Batch.Workers = iopts.workers
	}
	logger := config.NewLogger(cfg.Logging)

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.batches.RunBatch(cmd.Context(), jobs.BatchRequest{URLs: urls, OwnerID: owner})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if iopts.json {
		return writeIndentedJSON(out, map[string]any{
			"jobId":     result.Job.ID,
			"batchId":   result.Job.BatchID,
			"status":    result.Job.Status,
			"scraped":   result.Job.RecipesScraped,
			"failed":    result.Job.RecipesFailed,
			"totalUrls": result.Job.TotalURLs,
			"items":     result.Items,
		})
	}

	fmt.Fprintf(out, "Job %s (batch %s): %s\n", result.Job.ID, result.Job.BatchID, result.Job.Status)
	fmt.Fprintf(out, "  Scraped: %d\n", result.Job.RecipesScraped)
	fmt.Fprintf(out, "  Failed:  %d\n", result.Job.RecipesFailed)
	fmt.Fprintf(out, "  Total:   %d\n", result.Job.TotalURLs)
	if result.Job.Error != "" {
		fmt.Fprintf(out, "  Summary: %s\n", result.Job.Error)
	}
	for _, item := range result.Items {
		if item.Success {
			continue
		}
		fmt.Fprintf(out, "  ✗ %s: %s\n", item.URL, item.Error)
	}
	return nil
}

func parseOwner(raw string) (*string, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := ids.ParseUUID(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --owner %q: %w", raw, err)
	}
	owner := id.String()
	return &owner, nil
}

// readURLFile reads one URL per line, skipping blanks and # comments.
func readURLFile(stdin io.Reader, path string) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open url file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return parseURLList(r)
}

func parseURLList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}

func importSummary(res ingest.Result) map[string]any {
	summary := map[string]any{
		"success":         res.Success,
		"url":             res.URL,
		"stage":           res.Stage,
		"alreadyImported": res.AlreadyImported,
		"attempts":        res.Attempts,
	}
	if res.Recipe != nil {
		summary["recipeId"] = res.Recipe.ID
		summary["name"] = res.Recipe.Name
		summary["qaStatus"] = res.Recipe.QAStatus
	}
	if res.Error != nil {
		summary["error"] = res.Error.Error()
	}
	return summary
}

func printImportResult(out io.Writer, res ingest.Result) {
	if !res.Success {
		fmt.Fprintf(out, "✗ %s\n  Stage: %s\n  Error: %v\n  Attempts: %d\n", res.URL, res.Stage, res.Error, len(res.Attempts))
		return
	}
	verb := "Imported"
	if res.AlreadyImported {
		verb = "Already imported"
	}
	fmt.Fprintf(out, "✓ %s %s\n", verb, res.URL)
	if res.Recipe != nil {
		fmt.Fprintf(out, "  ID:        %s\n", res.Recipe.ID)
		fmt.Fprintf(out, "  Name:      %s\n", res.Recipe.Name)
		fmt.Fprintf(out, "  QA status: %s\n", res.Recipe.QAStatus)
	}
}

func writeIndentedJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
