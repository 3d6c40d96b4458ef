// Package pipeline wires the fetch → extract → write stages for one page.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/shelfscrape/config"
	"github.com/use-agent/shelfscrape/export"
	"github.com/use-agent/shelfscrape/extractor"
	"github.com/use-agent/shelfscrape/fetcher"
	"github.com/use-agent/shelfscrape/imaging"
	"github.com/use-agent/shelfscrape/models"
)

// Pipeline runs a single scrape. It is not safe for concurrent use.
type Pipeline struct {
	cfg        *config.Config
	fetcher    *fetcher.Client
	normalizer *imaging.Normalizer
	writer     *export.Writer
}

// New builds a Pipeline from cfg.
func New(cfg *config.Config) *Pipeline {
	client := fetcher.New(cfg.Fetch)
	normalizer := imaging.NewNormalizer(client, cfg.Fetch)
	return &Pipeline{
		cfg:        cfg,
		fetcher:    client,
		normalizer: normalizer,
		writer:     export.NewWriter(normalizer),
	}
}

// Run fetches address, extracts its products and writes
// <baseDir>/products.csv plus <baseDir>/images/.
//
// An invalid address or a failed page fetch returns before anything is
// written. Individual image failures are reported in the summary only.
func (p *Pipeline) Run(ctx context.Context, address, baseDir string) (models.ExportSummary, error) {
	if err := validateAddress(address); err != nil {
		return models.ExportSummary{}, err
	}

	csvPath := p.cfg.Output.CSVPath(baseDir)
	imagesDir := p.cfg.Output.ImagesPath(baseDir)

	start := time.Now()
	page, err := p.fetcher.FetchPage(ctx, address, p.cfg.Fetch.PageTimeout)
	if err != nil {
		return models.ExportSummary{}, fmt.Errorf("pipeline: fetch page: %w", err)
	}
	slog.Info("page fetched",
		"url", page.FinalURL,
		"title", page.Title,
		"status", page.StatusCode,
		"bytes", len(page.HTML),
		"ms", time.Since(start).Milliseconds(),
	)

	products := extractor.Extract(page.HTML)
	slog.Info("products extracted", "products", len(products))

	if base, err := url.Parse(page.FinalURL); err == nil {
		p.normalizer.SetBase(base)
	}

	summary, err := p.writer.Write(ctx, products, csvPath, imagesDir)
	if err != nil {
		return summary, fmt.Errorf("pipeline: write results: %w", err)
	}
	return summary, nil
}

// validateAddress accepts absolute http(s) URLs with a host.
func validateAddress(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "invalid address", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("address %q must use http or https", address), nil)
	}
	if u.Host == "" {
		return models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("address %q has no host", address), nil)
	}
	return nil
}
