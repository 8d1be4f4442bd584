package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"dorogallery/internal/api"
	"dorogallery/internal/config"
	"dorogallery/internal/domain"
	"dorogallery/internal/download"
	"dorogallery/internal/gallery"
	"dorogallery/internal/storage"
)

// app wires the components shared by every command.
type app struct {
	cfg    config.Config
	log    *logrus.Logger
	out    io.Writer
	errOut io.Writer

	repo      *storage.BadgerRepository
	client    api.Client
	retriever *download.Retriever
}

func newApp(cfg config.Config, log *logrus.Logger, out, errOut io.Writer) (*app, error) {
	// Database
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	client := api.NewCircuitBreakerClient(
		api.NewHTTPClient(cfg.APIBaseURL, httpClient, log),
		api.BreakerSettings{MaxFailures: cfg.BreakerMaxFailures, Timeout: cfg.BreakerTimeout},
		log,
	)
	retriever := download.NewRetriever(download.Options{
		AssetBaseURL: cfg.AssetBaseURL,
		ProxyPath:    cfg.ProxyPath,
		HTTPClient:   httpClient,
		Concurrency:  cfg.DownloadConcurrency,
		Rate:         cfg.DownloadRate,
	}, log)

	return &app{
		cfg:       cfg,
		log:       log,
		out:       out,
		errOut:    errOut,
		repo:      repo,
		client:    client,
		retriever: retriever,
	}, nil
}

func (a *app) close() {
	a.log.Debug("Closing database...")
	if err := a.repo.Close(); err != nil {
		a.log.WithError(err).Error("Error closing database")
	}
}

// gallery builds the single-user gallery with its ledger loaded.
func (a *app) gallery(ctx context.Context, sort domain.SortType) *gallery.Gallery {
	ledger := gallery.NewLedger(a.repo, "", a.log)
	if err := ledger.Load(ctx); err != nil {
		a.log.WithError(err).Warn("Starting with an empty reaction ledger")
	}
	if sort == "" {
		sort, _ = domain.ParseSortType(a.cfg.SortBy)
	}
	return gallery.New(a.client, ledger, &cliNotifier{w: a.errOut}, gallery.Options{
		PageSize: a.cfg.PageSize,
		Sort:     sort,
	}, a.log)
}

func (a *app) downloader(outDir string) *download.Downloader {
	if outDir == "" {
		outDir = a.cfg.OutputDir
	}
	return download.NewDownloader(a.retriever, download.NewFileSaver(outDir, a.log), a.log)
}

// cliNotifier prints gallery messages to stderr.
type cliNotifier struct {
	w io.Writer
}

func (n *cliNotifier) Success(msg string) { fmt.Fprintln(n.w, msg) }

func (n *cliNotifier) Error(msg string) { fmt.Fprintln(n.w, "error:", msg) }
