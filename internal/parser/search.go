package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/marketplace-scraper/internal/logger"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

const (
	fixedSection     = 0
	paginatedSection = 1
)

// ExtractSearchCards reads a search results page. The pinned section and the
// paginated section are read the same way; every tile grid becomes a layer.
// Tiles that fail to resolve are logged and skipped.
func (e *CardExtractor) ExtractSearchCards(html string) (*models.ExtractionResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	root, err := contentRoot(doc)
	if err != nil {
		return nil, err
	}

	paginator, err := scrollPaginator(root)
	if err != nil {
		return nil, err
	}

	fixed, err := paginatorSection(paginator, fixedSection)
	if err != nil {
		return nil, err
	}

	result := models.NewExtractionResult()
	e.appendGrids(result, fixed, "fixed")

	rest, err := paginatorSection(paginator, paginatedSection)
	if err != nil {
		e.logger.Warn("no paginated section on search page", "error", err)
	} else {
		e.appendGrids(result, rest, "paginated")
	}

	e.logger.Info("search page parsed", "layers", len(result.Layers), "cards", result.TotalItems())
	return result, nil
}

func (e *CardExtractor) appendGrids(result *models.ExtractionResult, section *goquery.Selection, name string) {
	tileGrids(section).Each(func(_ int, grid *goquery.Selection) {
		layerIndex := len(result.Layers)
		row := models.Layer{}

		grid.Children().Each(func(position int, item *goquery.Selection) {
			card, rawPrice, err := e.searchCard(item)
			if err != nil {
				logger.Critical(e.logger, "Error processing card",
					"section", name,
					"layer", layerIndex,
					"position", position,
					"error", err)
				return
			}

			// A price without digits normalizes to "", which still counts as present.
			if card.Name == "" || card.URL == "" || rawPrice == "" {
				logger.Critical(e.logger, "Something missing in card data",
					"section", name,
					"layer", layerIndex,
					"position", position,
					"name", card.Name,
					"price", rawPrice,
					"product_id", card.ProductID,
					"url", card.URL)
				return
			}

			row = append(row, card)
		})

		result.AddLayer(row)
	})
}

// searchCard resolves one tile. The displayed price text is returned as well
// so presence can be judged before normalization.
func (e *CardExtractor) searchCard(item *goquery.Selection) (models.ProductCard, string, error) {
	markup, err := goquery.OuterHtml(item)
	if err != nil {
		return models.ProductCard{}, "", fmt.Errorf("failed to render item: %w", err)
	}

	id, ok := ResolveProductID(markup)
	if !ok {
		return models.ProductCard{}, "", stepErr("productID", "no product id in item markup")
	}

	name, err := itemName(item)
	if err != nil {
		return models.ProductCard{}, "", err
	}

	link, err := itemLink(item)
	if err != nil {
		return models.ProductCard{}, "", err
	}

	price, err := itemPrice(item)
	if err != nil {
		return models.ProductCard{}, "", err
	}

	card := models.ProductCard{
		Name:      name,
		Price:     NormalizePrice(price),
		ProductID: id,
	}
	if link != "" {
		card.URL = e.productURL(link)
	}
	return card, price, nil
}
