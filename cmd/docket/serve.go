package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/poiesic/docket"
	"github.com/poiesic/docket/agent"
	"github.com/poiesic/docket/api"
	"github.com/poiesic/docket/ingestion"
	"github.com/poiesic/docket/watch"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API and the background job workers",
		Action: serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address; overrides server.addr",
			},
			&cli.BoolFlag{
				Name:  "no-workers",
				Usage: "Serve the API without processing queued jobs",
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, cfg, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	server, err := api.New(sys, cfg.Server, api.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	if !c.Bool("no-workers") {
		g.Go(func() error {
			return sys.RunWorkers(gctx)
		})
	}
	return ignoreCanceled(g.Wait())
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp",
		Usage:  "Expose knowledge search to agents over the Model Context Protocol",
		Action: mcpAction,
		Flags: []cli.Flag{
			tenantFlag(),
			&cli.StringFlag{
				Name:  "http",
				Usage: "Serve the streamable HTTP transport on this address instead of stdio",
			},
		},
	}
}

func mcpAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	server, err := agent.NewServer(sys.Retrieval(), c.String("tenant"), agent.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	if addr := c.String("http"); addr != "" {
		return ignoreCanceled(server.RunHTTP(ctx, addr))
	}
	return ignoreCanceled(server.Run(ctx))
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Ingest files dropped into a directory and delete documents whose files are removed",
		ArgsUsage: "DIR",
		Action:    watchAction,
		Flags: []cli.Flag{
			tenantFlag(),
			kbFlag(),
			&cli.StringFlag{
				Name:  "category",
				Usage: "Category recorded on every ingested document",
			},
			&cli.BoolFlag{
				Name:  "scan",
				Usage: "Ingest files already in the directory before watching",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before a changed file is handled",
				Value: watch.DefaultDebounce,
			},
		},
	}
}

func watchAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one directory is required")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, _, err := openSystem(ctx, c)
	if err != nil {
		return err
	}
	defer sys.Close()

	sink := &systemSink{
		sys:      sys,
		tenantID: c.String("tenant"),
		kbID:     c.String("kb"),
		category: c.String("category"),
	}
	w, err := watch.New(c.Args().First(), sink,
		watch.WithDebounce(c.Duration("debounce")),
		watch.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	if c.Bool("scan") {
		n, err := w.Scan(ctx)
		if err != nil {
			slog.Warn("initial scan incomplete", "err", err)
		}
		fmt.Fprintf(c.App.Writer, "queued %d existing files\n", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sys.RunWorkers(gctx)
	})
	g.Go(func() error {
		return w.Run(gctx)
	})
	return ignoreCanceled(g.Wait())
}

// systemSink submits watched files as uploads to one tenant namespace.
// Documents are named after their file's base name.
type systemSink struct {
	sys      *docket.System
	tenantID string
	kbID     string
	category string
}

func (s *systemSink) Ingest(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = s.sys.Ingestion().Ingest(ctx, ingestion.Request{
		Data:            data,
		Filename:        filepath.Base(path),
		TenantID:        s.tenantID,
		KnowledgeBaseID: s.kbID,
		Category:        s.category,
	})
	return err
}

func (s *systemSink) Remove(ctx context.Context, path string) error {
	_, err := s.sys.DeleteDocument(ctx, s.tenantID, s.kbID, filepath.Base(path))
	return err
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:   "token",
		Usage:  "Issue a signed API token for a tenant",
		Action: tokenAction,
		Flags: []cli.Flag{
			tenantFlag(),
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
		},
	}
}

func tokenAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		return api.ErrSecretRequired
	}
	token, err := api.IssueToken(cfg.Server.JWTSecret, cfg.Server.TenantClaim, c.String("tenant"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}
