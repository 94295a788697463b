// Package exporter writes extraction results and seller offers to JSON and
// spreadsheet files.
package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/models"
)

type Exporter struct {
	outputDir string
	logger    *slog.Logger
}

func New(outputDir string, logger *slog.Logger) *Exporter {
	if outputDir == "" {
		outputDir = "."
	}
	return &Exporter{
		outputDir: outputDir,
		logger:    logger.With("component", "exporter"),
	}
}

// WriteCards writes {name}.xlsx and, when withJSON is set, {name}.json.
// It returns the paths written.
func (e *Exporter) WriteCards(result *models.ExtractionResult, name string, withJSON bool) ([]string, error) {
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if problems := result.Validate(); len(problems) > 0 {
		e.logger.Warn("result has invalid cards", "count", len(problems), "first", problems[0])
	}

	base := filepath.Join(e.outputDir, sanitizeName(name))
	var files []string

	path, err := ToSpreadsheet(result, base)
	if err != nil {
		return files, err
	}
	files = append(files, path)

	if withJSON {
		data, err := ToJSON(result)
		if err != nil {
			return files, err
		}

		path = base + ".json"
		if err := os.WriteFile(path, data, 0644); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}

	e.logger.Info("cards exported",
		"files", files,
		"layers", len(result.Layers),
		"cards", result.TotalItems())

	return files, nil
}

func (e *Exporter) WriteOffers(offers []models.SellerOffer, tag string, now time.Time) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path, err := WriteOfferTable(offers, sanitizeTag(tag), e.outputDir, now)
	if err != nil {
		return "", err
	}

	e.logger.Info("offers exported", "file", path, "offers", len(offers))
	return path, nil
}

// Flatten reads a document written by WriteCards and writes its flat form
// next to it as {name}_flat.json.
func (e *Exporter) Flatten(jsonPath string) (string, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", jsonPath, err)
	}

	result, err := FromJSON(data)
	if err != nil {
		return "", err
	}

	flat, err := ToFlatJSON(result)
	if err != nil {
		return "", err
	}

	path := strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + "_flat.json"
	if err := os.WriteFile(path, flat, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	e.logger.Info("cards flattened", "file", path, "cards", result.TotalItems())
	return path, nil
}

func sanitizeTag(tag string) string {
	if tag == "" {
		return ""
	}
	return sanitizeName(tag)
}
