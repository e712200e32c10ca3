package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/poiesic/docket"
	"github.com/poiesic/docket/catalog"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/deletion"
	"github.com/poiesic/docket/ingestion"
	"github.com/poiesic/docket/retrieval"
	"github.com/urfave/cli/v2"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Ingest local files and wait until they are searchable",
		ArgsUsage: "FILE...",
		Action:    ingestAction,
		Flags: []cli.Flag{
			tenantFlag(),
			kbFlag(),
			&cli.StringFlag{
				Name:  "category",
				Usage: "Category recorded on every ingested document",
			},
			&cli.StringFlag{
				Name:  "display-name",
				Usage: "Display name; only valid with a single file, defaults to the file name",
			},
		},
	}
}

func ingestAction(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one file is required")
	}
	if c.String("display-name") != "" && len(paths) > 1 {
		return errors.New("display-name can only be used with a single file")
	}

	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	var errs []error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		outcome, err := sys.Ingestion().IngestNow(ctx, ingestion.Request{
			Data:            data,
			Filename:        filepath.Base(path),
			DisplayName:     c.String("display-name"),
			TenantID:        c.String("tenant"),
			KnowledgeBaseID: c.String("kb"),
			Category:        c.String("category"),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Fprintf(c.App.Writer, "%s: %s (%d chunks, %d written, %d pruned)\n",
			outcome.Document.DisplayName, outcome.Status, outcome.Chunks, outcome.Created, outcome.Pruned)
	}
	return errors.Join(errs...)
}

func scrapeCommand() *cli.Command {
	return &cli.Command{
		Name:      "scrape",
		Usage:     "Fetch a web page and ingest its text",
		ArgsUsage: "URL",
		Action:    scrapeAction,
		Flags: []cli.Flag{
			tenantFlag(),
			kbFlag(),
			&cli.StringFlag{
				Name:  "category",
				Usage: "Category recorded on the scraped document",
			},
		},
	}
}

func scrapeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one URL is required")
	}

	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	receipt, err := sys.Scrape(ctx, docket.ScrapeRequest{
		URL:             c.Args().First(),
		TenantID:        c.String("tenant"),
		KnowledgeBaseID: c.String("kb"),
		Category:        c.String("category"),
	})
	if err != nil {
		return err
	}
	if _, err := sys.Dispatcher().RunPending(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "scraped %q\n", receipt.Document.DisplayName)
	return nil
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a document and its stored bytes",
		ArgsUsage: "DISPLAY_NAME",
		Action:    deleteAction,
		Flags:     []cli.Flag{tenantFlag(), kbFlag()},
	}
}

func deleteAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one display name is required")
	}

	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	ns, err := sys.KnowledgeBases().Resolve(ctx, c.String("tenant"), c.String("kb"))
	if err != nil {
		return err
	}
	removed, err := sys.Deletion().DeleteNow(ctx, deletion.Request{
		Document: core.DocumentID{Namespace: ns, DisplayName: c.Args().First()},
		TenantID: c.String("tenant"),
	})
	if err != nil {
		return err
	}
	if removed == 0 {
		fmt.Fprintf(c.App.Writer, "no document named %q\n", c.Args().First())
		return nil
	}
	fmt.Fprintf(c.App.Writer, "deleted %q (%d entries)\n", c.Args().First(), removed)
	return nil
}

func retryCommand() *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "Reprocess a document whose ingestion failed",
		ArgsUsage: "DISPLAY_NAME",
		Action:    retryAction,
		Flags:     []cli.Flag{tenantFlag(), kbFlag()},
	}
}

func retryAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one display name is required")
	}

	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	outcome, err := sys.Ingestion().RetryNow(ctx, c.String("tenant"), c.String("kb"), c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: %s (%d chunks)\n", outcome.Document.DisplayName, outcome.Status, outcome.Chunks)
	return nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List a tenant's documents",
		Action: listAction,
		Flags: []cli.Flag{
			tenantFlag(),
			kbFlag(),
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only list documents in this category",
			},
		},
	}
}

func listAction(c *cli.Context) error {
	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	files, err := sys.Catalog().List(ctx, c.String("tenant"), catalog.Filter{
		KnowledgeBaseID: c.String("kb"),
		Category:        c.String("category"),
	})
	if err != nil {
		return err
	}
	return printFiles(c, files)
}

func printFiles(c *cli.Context, files []*catalog.File) error {
	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tCHUNKS\tSIZE\tCATEGORY\tUPDATED")
	for _, f := range files {
		size := f.SizeText
		if size == "" {
			size = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			f.DisplayName, f.Status, f.Chunks, size, f.Category, humanize.Time(f.UpdatedAt))
	}
	return tw.Flush()
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Ask a question against a tenant's knowledge",
		ArgsUsage: "QUERY...",
		Action:    searchAction,
		Flags: []cli.Flag{
			tenantFlag(),
			kbFlag(),
			&cli.BoolFlag{
				Name:  "context",
				Usage: "Also print the retrieved context",
			},
		},
	}
}

func searchAction(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return retrieval.ErrEmptyQuery
	}

	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	answer, err := sys.Retrieval().Answer(ctx, retrieval.Query{
		Text:            query,
		TenantID:        c.String("tenant"),
		KnowledgeBaseID: c.String("kb"),
	})
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintln(w, answer.Reply)
	if len(answer.Payload.Sources) > 0 {
		fmt.Fprintln(w)
		for _, src := range answer.Payload.Sources {
			fmt.Fprintf(w, "  %s (%.2f)\n", src.DisplayName, src.Score)
		}
	}
	if c.Bool("context") && answer.Payload.Context != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, answer.Payload.Context)
	}
	return nil
}

// ignoreCanceled treats a cancelled context as a clean shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
