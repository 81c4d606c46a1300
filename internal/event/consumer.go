package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/catalogsearch/internal/domain"
	pkgkafka "github.com/utafrali/catalogsearch/pkg/kafka"
)

// Kafka topics carrying product domain events.
var (
	TopicProductCreated = pkgkafka.Topic("product", "created")
	TopicProductUpdated = pkgkafka.Topic("product", "updated")
	TopicProductDeleted = pkgkafka.Topic("product", "deleted")
)

// Topics lists every topic the consumer subscribes to.
func Topics() []string {
	return []string{TopicProductCreated, TopicProductUpdated, TopicProductDeleted}
}

// ProductEventData is the payload of product.created and product.updated.
type ProductEventData struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Label      string   `json:"label,omitempty"`
	Price      float64  `json:"price"`
	Type1      string   `json:"type1,omitempty"`
	Type2      string   `json:"type2,omitempty"`
	Type3      string   `json:"type3,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	Pic        string   `json:"pic,omitempty"`
}

// Product converts the payload to an index document.
func (d ProductEventData) Product() *domain.Product {
	return &domain.Product{
		ID:         d.ID,
		Name:       d.Name,
		Label:      d.Label,
		Price:      d.Price,
		Type1:      d.Type1,
		Type2:      d.Type2,
		Type3:      d.Type3,
		Attributes: d.Attributes,
		Pic:        d.Pic,
	}
}

// ProductDeletedData is the payload of product.deleted.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// Indexer is the part of the catalog service fed by product events.
type Indexer interface {
	IndexProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// Consumer keeps the index in sync with product events.
type Consumer struct {
	indexer Indexer
	logger  *slog.Logger
}

// NewConsumer creates a product event consumer.
func NewConsumer(indexer Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{indexer: indexer, logger: logger}
}

// Handle processes a Kafka event based on its type. Unknown types are logged
// and acknowledged.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated:
		return c.handleUpsert(ctx, event)
	case TopicProductDeleted:
		return c.handleDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductEventData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	if err := c.indexer.IndexProduct(ctx, data.Product()); err != nil {
		return fmt.Errorf("index product from %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "indexed product from event",
		slog.String("event_type", event.EventType),
		slog.String("product_id", data.ID),
	)
	return nil
}

func (c *Consumer) handleDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil && !errors.Is(err, pkgkafka.ErrEmptyData) {
		return fmt.Errorf("unmarshal product.deleted data: %w", err)
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}

	if err := c.indexer.DeleteProduct(ctx, data.ID); err != nil {
		return fmt.Errorf("delete product from deleted event: %w", err)
	}

	c.logger.InfoContext(ctx, "deleted product from event",
		slog.String("product_id", data.ID),
	)
	return nil
}
