package models

import (
	"fmt"
)

// ProductCard is one product tile as rendered on a search or catalog page.
type ProductCard struct {
	Name      string `json:"name"`
	Price     string `json:"price"`
	ProductID string `json:"product_id"`
	URL       string `json:"url"`
}

// Description renders the card the way catalog mode reports it.
func (c ProductCard) Description() string {
	return fmt.Sprintf("%s, %s, %s", c.Name, c.Price, c.URL)
}

// Layer is a visually grouped row of cards, in page order.
type Layer []ProductCard

// ExtractionResult holds the layers of one extraction in layout order.
type ExtractionResult struct {
	Layers []Layer `json:"layers"`
}

func NewExtractionResult() *ExtractionResult {
	return &ExtractionResult{
		Layers: make([]Layer, 0),
	}
}

// AddLayer appends a layer. Empty layers are kept so that layer indexes
// keep matching the page.
func (r *ExtractionResult) AddLayer(layer Layer) {
	if layer == nil {
		layer = Layer{}
	}
	r.Layers = append(r.Layers, layer)
}

func (r *ExtractionResult) TotalItems() int {
	total := 0
	for _, layer := range r.Layers {
		total += len(layer)
	}
	return total
}

// Cards returns every card flattened in layer/position order.
func (r *ExtractionResult) Cards() []ProductCard {
	cards := make([]ProductCard, 0, r.TotalItems())
	for _, layer := range r.Layers {
		cards = append(cards, layer...)
	}
	return cards
}

// ProductIDs returns the non-empty product ids in layout order.
func (r *ExtractionResult) ProductIDs() []string {
	var ids []string
	for _, card := range r.Cards() {
		if card.ProductID != "" {
			ids = append(ids, card.ProductID)
		}
	}
	return ids
}

// Validate reports cards that break the non-empty URL rule.
func (r *ExtractionResult) Validate() []string {
	var errors []string

	for i, layer := range r.Layers {
		for j, card := range layer {
			if card.URL == "" {
				errors = append(errors, fmt.Sprintf("%s: url is required", CompositeID(i, j)))
			}
		}
	}

	return errors
}

// CompositeID is the synthetic identifier used to join exported items.
func CompositeID(layer, position int) string {
	return fmt.Sprintf("layer_%d_product_%d", layer, position)
}
