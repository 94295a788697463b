package exporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/maltedev/marketplace-scraper/internal/models"
)

type jsonItem struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	URL       string `json:"url"`
	Layer     int    `json:"layer"`
	Position  int    `json:"position"`
}

type jsonLayer struct {
	LayerIndex      int        `json:"layer_index"`
	ProductsInLayer int        `json:"products_in_layer"`
	Items           []jsonItem `json:"items"`
}

type jsonDocument struct {
	Products      []jsonLayer `json:"products"`
	TotalLayers   int         `json:"total_layers"`
	TotalProducts int         `json:"total_products"`
}

type flatItem struct {
	JSONID        string `json:"json_id"`
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	URL           string `json:"url"`
	OriginalLayer int    `json:"original_layer"`
}

type flatDocument struct {
	Products      []flatItem `json:"products"`
	TotalProducts int        `json:"total_products"`
}

// ToJSON renders the layered document. Every item carries its composite id
// so that exports from the same run can be joined.
func ToJSON(result *models.ExtractionResult) ([]byte, error) {
	doc := jsonDocument{
		Products:      make([]jsonLayer, 0, len(result.Layers)),
		TotalLayers:   len(result.Layers),
		TotalProducts: result.TotalItems(),
	}

	for i, layer := range result.Layers {
		items := make([]jsonItem, 0, len(layer))
		for j, card := range layer {
			items = append(items, jsonItem{
				ID:        models.CompositeID(i, j),
				ProductID: card.ProductID,
				Name:      card.Name,
				Price:     card.Price,
				URL:       card.URL,
				Layer:     i,
				Position:  j,
			})
		}

		doc.Products = append(doc.Products, jsonLayer{
			LayerIndex:      i,
			ProductsInLayer: len(layer),
			Items:           items,
		})
	}

	return marshal(doc)
}

// FromJSON reads a document written by ToJSON back into a result. Layers
// and items are placed by their recorded indexes.
func FromJSON(data []byte) (*models.ExtractionResult, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}

	sort.SliceStable(doc.Products, func(a, b int) bool {
		return doc.Products[a].LayerIndex < doc.Products[b].LayerIndex
	})

	result := models.NewExtractionResult()
	for _, l := range doc.Products {
		if l.LayerIndex < 0 {
			return nil, fmt.Errorf("invalid layer index %d", l.LayerIndex)
		}
		for len(result.Layers) < l.LayerIndex {
			result.AddLayer(nil)
		}

		items := append([]jsonItem(nil), l.Items...)
		sort.SliceStable(items, func(a, b int) bool {
			return items[a].Position < items[b].Position
		})

		layer := make(models.Layer, 0, len(items))
		for _, it := range items {
			layer = append(layer, models.ProductCard{
				Name:      it.Name,
				Price:     it.Price,
				ProductID: it.ProductID,
				URL:       it.URL,
			})
		}
		result.AddLayer(layer)
	}

	return result, nil
}

// ToFlatJSON renders every card as one flat list keyed by "{layer}_{position}".
func ToFlatJSON(result *models.ExtractionResult) ([]byte, error) {
	doc := flatDocument{
		Products:      make([]flatItem, 0, result.TotalItems()),
		TotalProducts: result.TotalItems(),
	}

	for i, layer := range result.Layers {
		for j, card := range layer {
			doc.Products = append(doc.Products, flatItem{
				JSONID:        flatID(i, j),
				ProductID:     card.ProductID,
				Name:          card.Name,
				Price:         card.Price,
				URL:           card.URL,
				OriginalLayer: i,
			})
		}
	}

	return marshal(doc)
}

func flatID(layer, position int) string {
	return strconv.Itoa(layer) + "_" + strconv.Itoa(position)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return buf.Bytes(), nil
}
