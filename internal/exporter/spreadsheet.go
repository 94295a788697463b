package exporter

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	cardSheet  = "Products"
	offerSheet = "Offers"
)

var cardHeaders = []any{"Слой", "Позиция в слое", "Название товара", "Цена", "ID товара", "Ссылка"}

var offerHeaders = []any{"seller_id", "seller_name", "seller_link", "sku", "price", "delivery_date", "product_link"}

// ToSpreadsheet writes the cards to {filename}.xlsx, one row per card with
// 1-based layer and position numbers.
func ToSpreadsheet(result *models.ExtractionResult, filename string) (string, error) {
	rows := make([][]any, 0, result.TotalItems())
	for i, layer := range result.Layers {
		for j, card := range layer {
			rows = append(rows, []any{i + 1, j + 1, card.Name, card.Price, card.ProductID, card.URL})
		}
	}

	path := filename + ".xlsx"
	if err := writeSheet(path, cardSheet, cardHeaders, rows); err != nil {
		return "", err
	}
	return path, nil
}

// OfferTableName is {tag}_delivery_dates_{YYYY-MM-DD}.xlsx, without the
// leading underscore when tag is empty.
func OfferTableName(tag string, now time.Time) string {
	name := "delivery_dates_" + now.Format("2006-01-02") + ".xlsx"
	if tag == "" {
		return name
	}
	return tag + "_" + name
}

// WriteOfferTable writes the offers into dir and returns the file path.
func WriteOfferTable(offers []models.SellerOffer, tag, dir string, now time.Time) (string, error) {
	rows := make([][]any, 0, len(offers))
	for _, o := range offers {
		rows = append(rows, []any{o.SellerID, o.SellerName, o.SellerLink, o.SKU, o.Price, o.DeliveryDate, o.ProductLink})
	}

	path := filepath.Join(dir, OfferTableName(tag, now))
	if err := writeSheet(path, offerSheet, offerHeaders, rows); err != nil {
		return "", err
	}
	return path, nil
}

func writeSheet(path, sheet string, headers []any, rows [][]any) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// sanitizeName turns a free-text query into a file name.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		return "export"
	}
	return name
}
