// Package events provides NATS event publishing for stock-ledger-service
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

const (
	streamName     = "STOCK_EVENTS"
	streamSubjects = "stock.>"

	SubjectStockAdjusted   = "stock.adjusted"
	SubjectLowStock        = "stock.low_stock"
	SubjectOutOfStock      = "stock.out_of_stock"
	SubjectDocumentChanged = "stock.document_changed"
)

// StockEvent is the envelope for every event published by this service.
type StockEvent struct {
	EventType string    `json:"eventType"`
	TenantID  string    `json:"tenantId"`
	Timestamp time.Time `json:"timestamp"`

	ProductID         string `json:"productId,omitempty"`
	Location          string `json:"location,omitempty"`
	PreviousQuantity  int    `json:"previousQuantity,omitempty"`
	ResultingQuantity int    `json:"resultingQuantity,omitempty"`
	ReorderPoint      int    `json:"reorderPoint,omitempty"`
	Reason            string `json:"reason,omitempty"`
	PerformedBy       string `json:"performedBy,omitempty"`

	ReferenceID   string `json:"referenceId,omitempty"`
	ReferenceType string `json:"referenceType,omitempty"`
	FromStatus    string `json:"fromStatus,omitempty"`
	ToStatus      string `json:"toStatus,omitempty"`

	Message string `json:"message,omitempty"`
}

// StockEventPublisher publishes stock and document lifecycle events to NATS
// JetStream. Publishing is best-effort: reconciliation never fails because
// an event could not be delivered.
type StockEventPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *logrus.Entry
}

// NewStockEventPublisher connects to NATS and ensures the stock stream exists.
func NewStockEventPublisher(natsURL string, logger *logrus.Logger) (*StockEventPublisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}

	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("stock-ledger-service-publisher"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("Reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("Disconnected from NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{streamSubjects},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour * 7,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to ensure stock event stream exists")
	}

	return &StockEventPublisher{
		nc:     nc,
		js:     js,
		logger: log.WithField("component", "stock-events"),
	}, nil
}

func (p *StockEventPublisher) publish(ctx context.Context, subject string, event *StockEvent) error {
	event.Timestamp = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.logger.WithFields(logrus.Fields{
			"subject":  subject,
			"tenantId": event.TenantID,
		}).WithError(err).Error("Failed to publish event")
		return err
	}
	return nil
}

// PublishStockAdjusted publishes a stock.adjusted event for one ledger entry.
func (p *StockEventPublisher) PublishStockAdjusted(ctx context.Context, tenantID, productID, location string, previous, resulting int, reason, referenceID, performedBy string) error {
	err := p.publish(ctx, SubjectStockAdjusted, &StockEvent{
		EventType:         SubjectStockAdjusted,
		TenantID:          tenantID,
		ProductID:         productID,
		Location:          location,
		PreviousQuantity:  previous,
		ResultingQuantity: resulting,
		Reason:            reason,
		ReferenceID:       referenceID,
		PerformedBy:       performedBy,
		Message:           fmt.Sprintf("Stock adjusted: product %s changed from %d to %d (%s)", productID, previous, resulting, reason),
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"productId":         productID,
		"previousQuantity":  previous,
		"resultingQuantity": resulting,
		"referenceId":       referenceID,
	}).Info("Published stock.adjusted event")
	return nil
}

// PublishLowStockAlert publishes a stock.low_stock event when a bin falls to
// or below its reorder point.
func (p *StockEventPublisher) PublishLowStockAlert(ctx context.Context, tenantID, productID, location string, currentStock, reorderPoint int) error {
	err := p.publish(ctx, SubjectLowStock, &StockEvent{
		EventType:         SubjectLowStock,
		TenantID:          tenantID,
		ProductID:         productID,
		Location:          location,
		ResultingQuantity: currentStock,
		ReorderPoint:      reorderPoint,
		Message:           fmt.Sprintf("Low stock alert: product %s at %s has %d units remaining (reorder point: %d)", productID, location, currentStock, reorderPoint),
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"productId":    productID,
		"location":     location,
		"currentStock": currentStock,
		"reorderPoint": reorderPoint,
	}).Info("Published stock.low_stock event")
	return nil
}

// PublishOutOfStockAlert publishes a stock.out_of_stock event.
func (p *StockEventPublisher) PublishOutOfStockAlert(ctx context.Context, tenantID, productID, location string) error {
	err := p.publish(ctx, SubjectOutOfStock, &StockEvent{
		EventType: SubjectOutOfStock,
		TenantID:  tenantID,
		ProductID: productID,
		Location:  location,
		Message:   fmt.Sprintf("Out of stock: product %s at %s is now out of stock", productID, location),
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"productId": productID,
		"location":  location,
	}).Info("Published stock.out_of_stock event")
	return nil
}

// PublishDocumentChanged publishes a stock.document_changed event for a
// document lifecycle transition.
func (p *StockEventPublisher) PublishDocumentChanged(ctx context.Context, tenantID, referenceID, referenceType, fromStatus, toStatus, performedBy string) error {
	err := p.publish(ctx, SubjectDocumentChanged, &StockEvent{
		EventType:     SubjectDocumentChanged,
		TenantID:      tenantID,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		FromStatus:    fromStatus,
		ToStatus:      toStatus,
		PerformedBy:   performedBy,
		Message:       fmt.Sprintf("Document %s moved from %s to %s", referenceID, fromStatus, toStatus),
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"referenceId":   referenceID,
		"referenceType": referenceType,
		"fromStatus":    fromStatus,
		"toStatus":      toStatus,
	}).Info("Published stock.document_changed event")
	return nil
}

// IsConnected returns true if connected to NATS
func (p *StockEventPublisher) IsConnected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close closes the NATS connection
func (p *StockEventPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
