package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

// CardExtractor reads product tiles out of rendered marketplace pages.
type CardExtractor struct {
	productHost string
	logger      *slog.Logger
}

func NewCardExtractor(productHost string, logger *slog.Logger) *CardExtractor {
	return &CardExtractor{
		productHost: strings.TrimRight(productHost, "/"),
		logger:      logger.With("component", "card_extractor"),
	}
}

// ExtractCatalogCards reads the landing-page catalog. Every tile must
// resolve; the first one that does not aborts the extraction.
func (e *CardExtractor) ExtractCatalogCards(html string) (*models.ExtractionResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	layers, err := catalogLayers(doc)
	if err != nil {
		return nil, err
	}

	e.logger.Info("parsing catalog", "layers", layers.Length())

	result := models.NewExtractionResult()
	var extractErr error

	layers.EachWithBreak(func(i int, layer *goquery.Selection) bool {
		cards, err := layerCards(layer)
		if err != nil {
			extractErr = fmt.Errorf("layer %d: %w", i, err)
			return false
		}

		row := models.Layer{}
		cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
			card.Children().EachWithBreak(func(_ int, item *goquery.Selection) bool {
				c, err := e.catalogCard(item)
				if err != nil {
					extractErr = fmt.Errorf("layer %d position %d: %w", i, len(row), err)
					return false
				}
				row = append(row, c)
				return true
			})
			return extractErr == nil
		})
		if extractErr != nil {
			return false
		}

		e.logger.Debug("layer parsed", "layer", i, "cards", len(row))
		result.AddLayer(row)
		return true
	})

	if extractErr != nil {
		return nil, extractErr
	}

	e.logger.Info("catalog parsed", "layers", len(result.Layers), "cards", result.TotalItems())
	return result, nil
}

// catalogLayers walks from the content root to the element whose children
// are the catalog layers.
func catalogLayers(doc *goquery.Document) (*goquery.Selection, error) {
	root, err := contentRoot(doc)
	if err != nil {
		return nil, err
	}

	sel, err := lastChildFirstDiv(root)
	if err != nil {
		return nil, err
	}

	sel, err = lastIslandChild(sel)
	if err != nil {
		return nil, err
	}

	sel, err = nestedFirstDiv(sel, 3)
	if err != nil {
		return nil, err
	}

	sel, err = nthStyledDiv(sel, 1)
	if err != nil {
		return nil, err
	}

	return sel.Children(), nil
}

func (e *CardExtractor) catalogCard(item *goquery.Selection) (models.ProductCard, error) {
	name, err := itemName(item)
	if err != nil {
		return models.ProductCard{}, err
	}

	link, err := itemLink(item)
	if err != nil {
		return models.ProductCard{}, err
	}
	if link == "" {
		return models.ProductCard{}, stepErr("itemLink", "empty href")
	}

	price, err := catalogPrice(item)
	if err != nil {
		return models.ProductCard{}, err
	}

	id, _ := ResolveProductID(link)

	return models.ProductCard{
		Name:      name,
		Price:     NormalizePrice(price),
		ProductID: id,
		URL:       e.productURL(link),
	}, nil
}

func (e *CardExtractor) productURL(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return e.productHost + href
}
