package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newDocumentsCmd creates the documents subcommand tree.
func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Manage ingested documents",
	}

	cmd.AddCommand(newDocumentsListCmd())
	cmd.AddCommand(newDocumentsShowCmd())
	cmd.AddCommand(newDocumentsDeleteCmd())

	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			store, err := openStore()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			docs, err := store.ListDocuments(ctx, limit)
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}

			if len(docs) == 0 {
				fmt.Println("No documents ingested yet.")
				return nil
			}

			for _, doc := range docs {
				fmt.Printf("%s  %-30s  %3d pages  %-8s  %s\n",
					doc.ID, doc.Filename, doc.TotalPages, doc.Status,
					doc.IngestedAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Printf("\n%d document(s)\n", len(docs))

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum documents to list")

	return cmd
}

func newDocumentsShowCmd() *cobra.Command {
	var detail bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an ingested document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			store, err := openStore()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			ui := NewUI(outputJSON)

			if detail {
				full, err := store.GetDocumentDetail(ctx, id)
				if err != nil {
					return fmt.Errorf("get document: %w", err)
				}

				if outputJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(full)
				}

				printDocumentSummary(ui, full.Document.Filename, full.Document.Status,
					full.Document.TotalPages, full.Document.Summary)
				ui.KeyValue("blocks", len(full.Blocks))
				ui.KeyValue("key-values", len(full.KeyValues))
				ui.KeyValue("images", len(full.Images))

				for _, kv := range full.KeyValues {
					fmt.Printf("  %s = %s (page %d)\n", kv.Key, kv.Value, kv.Page)
				}
				return nil
			}

			doc, err := store.GetDocument(ctx, id)
			if err != nil {
				return fmt.Errorf("get document: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}

			printDocumentSummary(ui, doc.Filename, doc.Status, doc.TotalPages, doc.Summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&detail, "detail", false, "include extracted blocks, key-values, and images")

	return cmd
}

func printDocumentSummary(ui *UI, filename, status string, pages int, summary string) {
	ui.KeyValue("filename", filename)
	ui.KeyValue("status", status)
	ui.KeyValue("pages", pages)
	if summary != "" {
		ui.KeyValue("summary", summary)
	}
}

func newDocumentsDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id> [<id>...]",
		Short: "Delete ingested documents and their extracted content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := NewUI(outputJSON)

			if !yes && IsTerminal() {
				fmt.Printf("Delete %d document(s)? [y/N] ", len(args))
				var reply string
				fmt.Scanln(&reply)
				if reply != "y" && reply != "Y" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			store, err := openStore()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			deleted := 0
			for _, raw := range args {
				id, err := uuid.Parse(raw)
				if err != nil {
					ui.Error("invalid document id %q", raw)
					continue
				}
				if err := store.DeleteDocument(ctx, id); err != nil {
					ui.Error("delete %s: %v", raw, err)
					continue
				}
				deleted++
			}

			ui.Success("Deleted %d document(s)", deleted)
			if outputJSON {
				fmt.Printf(`{"deleted":%d}`+"\n", deleted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")

	return cmd
}

// newQueriesCmd creates the queries subcommand.
func newQueriesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show recent query audit history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			store, err := openStore()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			logs, err := store.ListQueryLogs(ctx, limit)
			if err != nil {
				return fmt.Errorf("list query logs: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(logs)
			}

			if len(logs) == 0 {
				fmt.Println("No queries recorded yet.")
				return nil
			}

			for _, entry := range logs {
				fmt.Printf("[%s] %-10s %4dms  %s\n",
					entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					entry.Status, entry.LatencyMS, entry.Question)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")

	return cmd
}
