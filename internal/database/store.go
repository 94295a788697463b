package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

const (
	EventCardsExtracted  = "CARDS_EXTRACTED"
	EventOffersCollected = "OFFERS_COLLECTED"

	aggregateQuery   = "query"
	aggregateProduct = "product"
)

// Store persists run results. Every write also records an outbox event in
// the same transaction.
type Store struct {
	db     *DB
	outbox *OutboxRepository
	stream string
}

func NewStore(db *DB, stream string) *Store {
	if stream == "" {
		stream = DefaultStream
	}
	return &Store{
		db:     db,
		outbox: NewOutboxRepository(db),
		stream: stream,
	}
}

func (s *Store) StartRun(ctx context.Context, runID uuid.UUID, mode, input string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO scrape_run (id, mode, input) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		runID, mode, input)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (s *Store) SaveCards(ctx context.Context, runID uuid.UUID, query string, result *models.ExtractionResult) error {
	event, err := cardsEvent(runID, query, result)
	if err != nil {
		return err
	}
	event.TargetStream = s.stream

	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, layer := range result.Layers {
			for j, card := range layer {
				batch.Queue(`
					INSERT INTO product_card (
						run_id, composite_id, layer, position,
						product_id, name, price, url, query
					) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
					ON CONFLICT (run_id, composite_id) DO UPDATE
					SET product_id = EXCLUDED.product_id, name = EXCLUDED.name,
						price = EXCLUDED.price, url = EXCLUDED.url`,
					runID, models.CompositeID(i, j), i, j,
					card.ProductID, card.Name, card.Price, card.URL, query)
			}
		}

		if err := sendBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("failed to save cards: %w", err)
		}

		return s.outbox.InsertWithTx(ctx, tx, event)
	})
}

func (s *Store) SaveOffers(ctx context.Context, runID uuid.UUID, productID string, offers []models.SellerOffer) error {
	event, err := offersEvent(runID, productID, offers)
	if err != nil {
		return err
	}
	event.TargetStream = s.stream

	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, o := range offers {
			batch.Queue(`
				INSERT INTO seller_offer (
					run_id, product_id, seller_id, seller_name, seller_link,
					sku, price, delivery_date, product_link
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				runID, productID, o.SellerID, o.SellerName, o.SellerLink,
				o.SKU, o.Price, o.DeliveryDate, o.ProductLink)
		}

		if err := sendBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("failed to save offers: %w", err)
		}

		return s.outbox.InsertWithTx(ctx, tx, event)
	})
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return br.Close()
}

type cardsPayload struct {
	RunID         string   `json:"run_id"`
	Query         string   `json:"query"`
	TotalLayers   int      `json:"total_layers"`
	TotalProducts int      `json:"total_products"`
	ProductIDs    []string `json:"product_ids"`
}

type offersPayload struct {
	RunID     string               `json:"run_id"`
	ProductID string               `json:"product_id"`
	Count     int                  `json:"count"`
	Offers    []models.SellerOffer `json:"offers"`
}

func cardsEvent(runID uuid.UUID, query string, result *models.ExtractionResult) (*OutboxEvent, error) {
	ids := result.ProductIDs()
	if ids == nil {
		ids = []string{}
	}

	payload, err := json.Marshal(cardsPayload{
		RunID:         runID.String(),
		Query:         query,
		TotalLayers:   len(result.Layers),
		TotalProducts: result.TotalItems(),
		ProductIDs:    ids,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cards event: %w", err)
	}

	return &OutboxEvent{
		AggregateType: aggregateQuery,
		AggregateID:   query,
		EventType:     EventCardsExtracted,
		Payload:       payload,
	}, nil
}

func offersEvent(runID uuid.UUID, productID string, offers []models.SellerOffer) (*OutboxEvent, error) {
	if offers == nil {
		offers = []models.SellerOffer{}
	}

	payload, err := json.Marshal(offersPayload{
		RunID:     runID.String(),
		ProductID: productID,
		Count:     len(offers),
		Offers:    offers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offers event: %w", err)
	}

	return &OutboxEvent{
		AggregateType: aggregateProduct,
		AggregateID:   productID,
		EventType:     EventOffersCollected,
		Payload:       payload,
	}, nil
}
