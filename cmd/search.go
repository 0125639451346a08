package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leadscout/leadscout/internal/clock/system"
	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/id/uuid"
	"github.com/leadscout/leadscout/internal/orchestrator"
	"github.com/leadscout/leadscout/internal/server"
)

// newSearchCmd creates the 'search' subcommand, a one-shot discovery run
// printed to stdout.
func newSearchCmd() *cobra.Command {
	var (
		location   string
		maxResults int
		plan       bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Runs one discovery search and prints the merged results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(args[0], location, maxResults)
			if err != nil {
				return err
			}
			if plan {
				return printPlan(req)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if req.MaxResults <= 0 {
				req.MaxResults = cfg.Discovery.MaxResultsDefault
			}
			app, err := server.Build(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer func() {
				_ = app.Close(cmd.Context())
			}()

			result, err := app.Search(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("run search: %w", err)
			}
			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "geographic focus, e.g. \"Austin, TX\"")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "cap on merged results (0 uses the configured default)")
	cmd.Flags().BoolVar(&plan, "plan", false, "print the category and source plan without searching")

	return cmd
}

func buildRequest(query, location string, maxResults int) (discovery.SearchRequest, error) {
	id, err := uuid.New().NewID()
	if err != nil {
		return discovery.SearchRequest{}, fmt.Errorf("generate run id: %w", err)
	}
	return discovery.SearchRequest{
		ID:          id,
		Query:       query,
		Location:    location,
		MaxResults:  maxResults,
		SubmittedAt: system.New().Now(),
	}, nil
}

func printPlan(req discovery.SearchRequest) error {
	category, ranked, err := orchestrator.Describe(req)
	if err != nil {
		return fmt.Errorf("describe search: %w", err)
	}
	fmt.Printf("category: %s\n\n", category)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tSOURCE\tKIND\tRELIABILITY\tMIN RESULTS")
	for _, src := range ranked {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%d\n",
			src.Tier, src.ID, src.Kind, src.Reliability, src.MinResults)
	}
	return w.Flush()
}

func printResult(result discovery.RunResult) {
	fmt.Printf("status: %s  category: %s  records: %d\n\n",
		result.Status, result.Category, len(result.Records))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPHONE\tEMAIL\tWEBSITE\tCONFIDENCE\tSOURCES")
	for _, rec := range result.Records {
		confidence := "-"
		if rec.Confidence != nil {
			confidence = fmt.Sprintf("%.0f (%s)", rec.Confidence.Overall, rec.Confidence.Level)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			rec.Name, rec.Phone, rec.Email, rec.Website, confidence, len(rec.Sources))
	}
	_ = w.Flush()

	if result.ErrorText != "" {
		fmt.Printf("\nwarning: %s\n", result.ErrorText)
	}
}
