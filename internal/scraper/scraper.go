// Package scraper drives the browser session through searches, catalog pages
// and other-offers lookups and hands the results to the exporter.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/maltedev/marketplace-scraper/internal/parser"
)

var (
	ErrInvalidMode  = errors.New("invalid mode")
	ErrEmptyInput   = errors.New("empty input")
	ErrLookupFailed = errors.New("offer lookup failed")
)

// PageLoader is the page-level browser surface the scraper needs.
type PageLoader interface {
	Load(ctx context.Context, url string, scrollSteps int) error
	PreloadActivation() error
	WaitStable(ctx context.Context, selector string, timeout time.Duration) (int, error)
	HTML() (string, error)
}

type Exporter interface {
	WriteCards(result *models.ExtractionResult, name string, withJSON bool) ([]string, error)
	WriteOffers(offers []models.SellerOffer, tag string, now time.Time) (string, error)
}

// Pacer spaces consecutive offer lookups and learns from their outcome.
type Pacer interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
	Delay() (min, max time.Duration)
}

// Sink receives run results in addition to the exported files.
type Sink interface {
	StartRun(ctx context.Context, runID uuid.UUID, mode, input string) error
	SaveCards(ctx context.Context, runID uuid.UUID, query string, result *models.ExtractionResult) error
	SaveOffers(ctx context.Context, runID uuid.UUID, productID string, offers []models.SellerOffer) error
}

type Options struct {
	BaseURL           string
	CatalogURL        string
	SearchScrollSteps int
	OfferScrollSteps  int
	SettleTimeout     time.Duration
	WriteJSON         bool
}

type Deps struct {
	Loader   PageLoader
	Cards    parser.CardParser
	Offers   parser.OfferSource
	Exporter Exporter
	Pacer    Pacer
	Sink     Sink
}

type Marketplace struct {
	loader   PageLoader
	cards    parser.CardParser
	offers   parser.OfferSource
	exporter Exporter
	pacer    Pacer
	sink     Sink
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

func New(deps Deps, opts Options, logger *slog.Logger) *Marketplace {
	if !strings.HasSuffix(opts.BaseURL, "/") {
		opts.BaseURL += "/"
	}
	if opts.CatalogURL == "" {
		opts.CatalogURL = opts.BaseURL
	}

	pacer := deps.Pacer
	if pacer == nil {
		pacer = noPacer{}
	}

	return &Marketplace{
		loader:   deps.Loader,
		cards:    deps.Cards,
		offers:   deps.Offers,
		exporter: deps.Exporter,
		pacer:    pacer,
		sink:     deps.Sink,
		opts:     opts,
		logger:   logger.With("component", "marketplace"),
		now:      time.Now,
	}
}

// SearchCards loads the search results for query and extracts their cards.
func (m *Marketplace) SearchCards(ctx context.Context, query string) (*models.ExtractionResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query", ErrEmptyInput)
	}

	html, err := m.render(ctx, m.searchURL(query), m.opts.SearchScrollSteps, parser.TileGridSelector)
	if err != nil {
		return nil, err
	}

	result, err := m.cards.ExtractSearchCards(html)
	if err != nil {
		return nil, fmt.Errorf("failed to extract search cards: %w", err)
	}

	m.logger.Info("search cards extracted",
		"query", query,
		"layers", len(result.Layers),
		"cards", result.TotalItems())
	return result, nil
}

// CatalogCards loads a landing page and extracts its catalog. Any tile that
// does not match the expected layout fails the whole extraction.
func (m *Marketplace) CatalogCards(ctx context.Context, pageURL string) (*models.ExtractionResult, error) {
	if pageURL == "" {
		pageURL = m.opts.CatalogURL
	}

	html, err := m.render(ctx, pageURL, m.opts.SearchScrollSteps, parser.ContentSelector)
	if err != nil {
		return nil, err
	}

	result, err := m.cards.ExtractCatalogCards(html)
	if err != nil {
		return nil, fmt.Errorf("failed to extract catalog cards: %w", err)
	}

	for i, layer := range result.Layers {
		for j, card := range layer {
			m.logger.Debug("catalog card", "id", models.CompositeID(i, j), "card", card.Description())
		}
	}

	m.logger.Info("catalog cards extracted",
		"url", pageURL,
		"layers", len(result.Layers),
		"cards", result.TotalItems())
	return result, nil
}

// OfferLookup is the outcome of one other-offers request.
type OfferLookup struct {
	ProductID  string
	Offers     []models.SellerOffer
	// HasSellers is false when the product has no other sellers at all.
	HasSellers bool
}

// CheaperOffers returns the other sellers' offers for a product URL or id.
// A fragment without any JSON payload is reported as ErrLookupFailed.
func (m *Marketplace) CheaperOffers(ctx context.Context, input string) (*OfferLookup, error) {
	lookup := &OfferLookup{ProductID: ProductID(input)}
	if lookup.ProductID == "" {
		return nil, fmt.Errorf("%w: product url or id", ErrEmptyInput)
	}

	if err := m.loader.PreloadActivation(); err != nil {
		return nil, err
	}

	html, err := m.render(ctx, m.offersURL(lookup.ProductID), m.opts.OfferScrollSteps, parser.PayloadSelector)
	if err != nil {
		return nil, err
	}

	payload, err := parser.ExtractJSONPayload(html)
	if err != nil {
		return nil, fmt.Errorf("%w: product %s: %v", ErrLookupFailed, lookup.ProductID, err)
	}

	if !parser.HasWidgetStates(payload) {
		m.logger.Info("product has no other sellers", "product_id", lookup.ProductID)
		return lookup, nil
	}

	lookup.HasSellers = true
	lookup.Offers = m.offers.ParseOffers([]byte(payload))
	m.logger.Info("offers collected", "product_id", lookup.ProductID, "offers", len(lookup.Offers))
	return lookup, nil
}

// ProductID resolves a product URL to its id. Input that is not a product
// URL is taken as an id as is.
func ProductID(input string) string {
	input = strings.TrimSpace(input)
	if id, ok := parser.ResolveProductID(input); ok {
		return id
	}
	return input
}

func (m *Marketplace) render(ctx context.Context, pageURL string, scrollSteps int, settleOn string) (string, error) {
	if err := m.loader.Load(ctx, pageURL, scrollSteps); err != nil {
		return "", err
	}

	if m.opts.SettleTimeout > 0 {
		if _, err := m.loader.WaitStable(ctx, settleOn, m.opts.SettleTimeout); err != nil {
			return "", err
		}
	}

	return m.loader.HTML()
}

func (m *Marketplace) searchURL(query string) string {
	return fmt.Sprintf("%ssearch/?text=%s&from_global=true", m.opts.BaseURL, url.QueryEscape(query))
}

func (m *Marketplace) offersURL(productID string) string {
	return fmt.Sprintf("%sapi/entrypoint-api.bx/page/json/v2?url=%%2Fmodal%%2FotherOffersFromSellers%%3Fproduct_id%%3D%s%%26page_changed%%3Dtrue",
		m.opts.BaseURL, url.QueryEscape(productID))
}

type noPacer struct{}

func (noPacer) Wait(ctx context.Context) error        { return ctx.Err() }
func (noPacer) RecordSuccess()                        {}
func (noPacer) RecordError()                          {}
func (noPacer) Delay() (time.Duration, time.Duration) { return 0, 0 }
