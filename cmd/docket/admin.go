package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/poiesic/docket/reembed"
	"github.com/urfave/cli/v2"
)

func kbCommand() *cli.Command {
	return &cli.Command{
		Name:  "kb",
		Usage: "Manage knowledge bases",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a knowledge base",
				ArgsUsage: "NAME",
				Action:    kbCreateAction,
				Flags: []cli.Flag{
					tenantFlag(),
					&cli.StringFlag{
						Name:  "description",
						Usage: "Free-form description",
					},
				},
			},
			{
				Name:   "list",
				Usage:  "List the tenant's knowledge bases",
				Action: kbListAction,
				Flags:  []cli.Flag{tenantFlag()},
			},
			{
				Name:      "delete",
				Usage:     "Delete a knowledge base and every document in it",
				ArgsUsage: "ID",
				Action:    kbDeleteAction,
				Flags:     []cli.Flag{tenantFlag()},
			},
		},
	}
}

func kbCreateAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one name is required")
	}

	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	kb, err := sys.KnowledgeBases().CreateKnowledgeBase(ctx, c.String("tenant"), c.Args().First(), c.String("description"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, kb.ID)
	return nil
}

func kbListAction(c *cli.Context) error {
	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	kbs, err := sys.KnowledgeBases().ListKnowledgeBases(ctx, c.String("tenant"))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED\tDESCRIPTION")
	for _, kb := range kbs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kb.ID, kb.Name, humanize.Time(kb.CreatedAt), kb.Description)
	}
	return tw.Flush()
}

func kbDeleteAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one knowledge base ID is required")
	}

	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	removed, err := sys.KnowledgeBases().DeleteKnowledgeBase(ctx, c.String("tenant"), c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %s (%d entries)\n", c.Args().First(), removed)
	return nil
}

func notificationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "notifications",
		Usage: "Read a tenant's notifications",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List recent notifications, newest first",
				Action: notificationsListAction,
				Flags: []cli.Flag{
					tenantFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum notifications to show",
						Value: 50,
					},
				},
			},
			{
				Name:   "read-all",
				Usage:  "Mark every notification read",
				Action: notificationsReadAllAction,
				Flags:  []cli.Flag{tenantFlag()},
			},
		},
	}
}

func notificationsListAction(c *cli.Context) error {
	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	list, err := sys.Notifications().List(ctx, c.String("tenant"), c.Int("limit"))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tREAD\tWHEN\tTITLE")
	for _, n := range list {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", n.ID, n.Type, n.Read, humanize.Time(n.CreatedAt), n.Title)
	}
	return tw.Flush()
}

func notificationsReadAllAction(c *cli.Context) error {
	ctx := c.Context
	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	n, err := sys.Notifications().MarkAllRead(ctx, c.String("tenant"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "marked %d read\n", n)
	return nil
}

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Recompute every chunk vector with the configured embedding model",
		Action: reembedAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks to process in each batch",
				Value: reembed.DefaultBatchSize,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N chunks",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum retry attempts for failed operations",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: reembed.DefaultConfig().RetryDelay,
			},
		},
	}
}

func reembedAction(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	ctx := c.Context
	sys, cfg, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	fmt.Fprintf(os.Stderr, "Data dir: %s\n", cfg.DataDir)
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	n, err := reembed.NewReembedder(sys.Index(), sys.Embedder(), reembedConfig, os.Stderr).Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "re-embedded %d chunks\n", n)
	return nil
}
