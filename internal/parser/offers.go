package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/maltedev/marketplace-scraper/internal/models"
)

// SellerListPrefix starts the widget-state key holding the seller list.
const SellerListPrefix = "webSellerList-"

var deliveryDatePattern = regexp.MustCompile(`\d{1,2}\s+\p{L}+`)

// OfferParser reads seller offers from the widget-state JSON served for the
// other-offers modal.
type OfferParser struct {
	logger *slog.Logger
}

func NewOfferParser(logger *slog.Logger) *OfferParser {
	return &OfferParser{
		logger: logger.With("component", "offer_parser"),
	}
}

type widgetState struct {
	Key   string
	Value string
}

// ParseOffers returns one offer per seller. A payload that does not decode
// yields no offers at all; a seller field of an unexpected type is left
// empty. A payload without a seller-list widget is not an error.
func (p *OfferParser) ParseOffers(blob []byte) []models.SellerOffer {
	offers := []models.SellerOffer{}

	states, err := decodeWidgetStates(blob)
	if err != nil {
		p.logger.Error("failed to parse offer payload", "error", err)
		return offers
	}

	state, ok := findSellerList(states)
	if !ok {
		p.logger.Info("no seller list in payload", "widgets", len(states))
		return offers
	}

	var list struct {
		Sellers []map[string]json.RawMessage `json:"sellers"`
	}
	if err := json.Unmarshal([]byte(state.Value), &list); err != nil {
		p.logger.Error("failed to parse seller list", "key", state.Key, "error", err)
		return offers
	}

	for _, seller := range list.Sellers {
		offers = append(offers, sellerOffer(seller))
	}

	p.logger.Info("parsed seller offers", "key", state.Key, "offers", len(offers))
	return offers
}

// decodeWidgetStates returns the widgetStates entries in document order.
// Entries whose value is not a JSON string are skipped.
func decodeWidgetStates(blob []byte) ([]widgetState, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(blob, &top); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	raw, ok := top["widgetStates"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to decode widgetStates: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("widgetStates is not an object")
	}

	var states []widgetState
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode widgetStates key: %w", err)
		}
		key, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("failed to decode widgetStates[%s]: %w", key, err)
		}

		var s string
		if json.Unmarshal(value, &s) != nil {
			continue
		}
		states = append(states, widgetState{Key: key, Value: s})
	}

	return states, nil
}

// findSellerList picks the first seller-list widget in document order. The
// site renders at most one per payload.
func findSellerList(states []widgetState) (widgetState, bool) {
	for _, s := range states {
		if strings.HasPrefix(s.Key, SellerListPrefix) {
			return s, true
		}
	}
	return widgetState{}, false
}

func sellerOffer(seller map[string]json.RawMessage) models.SellerOffer {
	return models.SellerOffer{
		SellerID:     scalar(seller["id"]),
		SellerName:   scalar(seller["name"]),
		SellerLink:   scalar(seller["link"]),
		SKU:          scalar(seller["sku"]),
		Price:        NormalizePrice(sellerPrice(seller["price"])),
		ProductLink:  scalar(seller["productLink"]),
		DeliveryDate: deliveryDate(seller["advantages"]),
	}
}

// sellerPrice applies the display priority: card price, then the plain
// price, then the original price. The first key present wins even when its
// value is empty.
func sellerPrice(raw json.RawMessage) string {
	price := object(raw)
	if price == nil {
		return ""
	}

	if card, ok := price["cardPrice"]; ok {
		return scalar(object(card)["price"])
	}
	if v, ok := price["price"]; ok {
		return scalar(v)
	}
	if v, ok := price["originalPrice"]; ok {
		return scalar(v)
	}
	return ""
}

// deliveryDate finds a "12 марта"-like token in the delivery advantage.
func deliveryDate(raw json.RawMessage) string {
	var advantages []map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &advantages) != nil {
		return ""
	}

	for _, adv := range advantages {
		if scalar(adv["key"]) != "delivery" {
			continue
		}

		var content struct {
			HeadRs []map[string]json.RawMessage `json:"headRs"`
		}
		if json.Unmarshal(adv["contentRs"], &content) != nil || len(content.HeadRs) == 0 {
			continue
		}

		head := content.HeadRs[0]
		if scalar(head["type"]) != "text" {
			continue
		}

		if m := deliveryDatePattern.FindString(scalar(head["content"])); m != "" {
			return m
		}
	}

	return ""
}

func object(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

// scalar renders a JSON string or number as text; anything else is "".
func scalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if dec.Decode(&n) == nil {
		return n.String()
	}

	return ""
}
