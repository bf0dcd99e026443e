package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperlens-ai/paperlens/internal/ingest"
	"github.com/paperlens-ai/paperlens/internal/progress"
)

// newIngestCmd creates the ingest subcommand.
func newIngestCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Ingest a PDF into the knowledge base",
		Long: `Ingest renders the PDF, extracts its content batch by batch with a
vision model, embeds the extracted records, and stores everything for
retrieval. Progress is shown live; Ctrl-C cancels and discards the job.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ui := NewUI(outputJSON)

			if !requireAPIKey() {
				return fmt.Errorf("OPENROUTER_API_KEY is required for extraction")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read pdf: %w", err)
			}

			svcs, err := buildServices(ui)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer svcs.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			// Ctrl-C cancels the job; partial work is discarded.
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				select {
				case <-sigs:
					ui.Warning("Cancelling, discarding partial work")
					cancel()
				case <-ctx.Done():
				}
			}()

			events, err := svcs.ingest.IngestStream(ctx, ingest.Request{
				Filename: filepath.Base(path),
				Data:     data,
			})
			if err != nil {
				return err
			}

			result, err := renderIngestProgress(ui, events)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("ingestion cancelled")
				}
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			if result.Status == "partial" {
				ui.Warning("Ingestion completed with gaps")
				for _, r := range result.FailedRanges {
					ui.KeyValue("failed pages", r.String())
				}
				if result.MissingEmbeddings > 0 {
					ui.KeyValue("records without embeddings", result.MissingEmbeddings)
				}
			} else {
				ui.Success("Ingestion completed")
			}

			ui.KeyValue("document", result.DocumentID)
			ui.KeyValue("type", result.DetectedType)
			ui.KeyValue("pages", result.TotalPages)
			ui.KeyValue("blocks", result.Blocks)
			ui.KeyValue("key-values", result.KeyValues)
			ui.KeyValue("images", result.Images)
			ui.KeyValue("duration", FormatDuration(time.Duration(result.ProcessingSeconds*float64(time.Second))))

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "overall ingestion timeout")

	return cmd
}

// renderIngestProgress consumes the event stream, driving a progress bar,
// and returns the final result.
func renderIngestProgress(ui *UI, events <-chan progress.Event) (*ingest.Result, error) {
	var bar = ui.ProgressBar(1, "extracting")

	for evt := range events {
		switch evt.Type {
		case progress.EventStart:
			ui.Info("Processing %s (%d pages)", evt.Filename, evt.TotalPages)
			bar = ui.ProgressBar(evt.TotalPages, "extracting")
		case progress.EventInfo:
			ui.Info("%d batches of up to %d pages", evt.TotalBatches, evt.BatchSize)
		case progress.EventProgress:
			if bar != nil {
				_ = bar.Set(evt.EndPage)
			}
		case progress.EventStatus:
			if bar != nil {
				_ = bar.Finish()
				bar = nil
			}
			ui.Info("%s", evt.Message)
		case progress.EventComplete:
			if bar != nil {
				_ = bar.Finish()
			}
			if result, ok := evt.Result.(*ingest.Result); ok {
				return result, nil
			}
			return nil, fmt.Errorf("malformed completion event")
		case progress.EventError:
			if bar != nil {
				_ = bar.Finish()
			}
			return nil, fmt.Errorf("%s", evt.Message)
		}
	}

	// The stream closed without a terminal event: the job was cancelled.
	return nil, fmt.Errorf("ingestion aborted")
}
