package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/paperlens-ai/paperlens/internal/answer"
)

// newAskCmd creates the ask subcommand.
func newAskCmd() *cobra.Command {
	var (
		topK      int
		documents []string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the ingested documents",
		Long: `Ask embeds the question, retrieves the most similar extracted content,
and synthesizes an answer with source citations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			ui := NewUI(outputJSON)

			if !requireAPIKey() {
				return fmt.Errorf("OPENROUTER_API_KEY is required for answering")
			}

			var documentIDs []uuid.UUID
			for _, raw := range documents {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid document id %q", raw)
				}
				documentIDs = append(documentIDs, id)
			}

			svcs, err := buildServices(ui)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer svcs.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			stop := ui.Spinner("thinking...")
			result, err := svcs.engine.Ask(ctx, answer.Request{
				Question:    question,
				TopK:        topK,
				DocumentIDs: documentIDs,
			})
			stop()
			if err != nil {
				return fmt.Errorf("ask failed: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			printAnswer(ui, result)
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "number of records to retrieve (0 uses the configured default)")
	cmd.Flags().StringSliceVar(&documents, "documents", nil, "restrict to specific document IDs")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "query timeout")

	return cmd
}

func printAnswer(ui *UI, result *answer.Result) {
	if result.Degraded {
		ui.Warning("Retrieval was unavailable; this answer has no document context")
	}

	fmt.Println()
	fmt.Println(result.Answer)
	fmt.Println()

	if len(result.Sources) > 0 {
		if IsTerminal() {
			color.New(color.FgCyan, color.Bold).Println("Sources:")
		} else {
			fmt.Println("Sources:")
		}
		for i, src := range result.Sources {
			fmt.Printf("  %d. %s (page %d, %s, similarity %.2f)\n",
				i+1, src.Filename, src.Page, src.RecordID, src.Similarity)
			if src.Excerpt != "" {
				fmt.Printf("     %s\n", src.Excerpt)
			}
		}
		fmt.Println()
	}

	note := fmt.Sprintf("answered in %s", FormatDuration(time.Duration(result.LatencyMS)*time.Millisecond))
	if result.Cached {
		note += " (cached)"
	}
	ui.Info("%s", note)
}
