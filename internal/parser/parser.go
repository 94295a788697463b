package parser

import (
	"github.com/maltedev/marketplace-scraper/internal/models"
)

// CardParser turns rendered listing pages into layered product cards.
type CardParser interface {
	ExtractCatalogCards(html string) (*models.ExtractionResult, error)
	ExtractSearchCards(html string) (*models.ExtractionResult, error)
}

// OfferSource turns an other-offers widget payload into seller offers.
type OfferSource interface {
	ParseOffers(blob []byte) []models.SellerOffer
}

var (
	_ CardParser  = (*CardExtractor)(nil)
	_ OfferSource = (*OfferParser)(nil)
)
