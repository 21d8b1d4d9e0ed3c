package webhook

import (
	"context"
	"time"

	"streampoints-engine/pkg/db/option"
	"streampoints-engine/pkg/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the durable idempotency gate keyed by delivery id.
type Store struct {
	db     *gorm.DB
	events repository.Repository[InboundEvent]
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:     db,
		events: repository.ProvideStore[InboundEvent](db),
	}
}

// TryBeginProcessing atomically records the delivery id. It reports isNew =
// false when the id was seen before, in which case the caller must respond
// success without re-running business logic.
func (s *Store) TryBeginProcessing(ctx context.Context, deliveryID, eventType, eventVersion string, payload []byte) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "delivery_id"}},
		DoNothing: true,
	}).Create(&InboundEvent{
		DeliveryID:   deliveryID,
		EventType:    eventType,
		EventVersion: eventVersion,
		Payload:      datatypes.JSON(payload),
		ReceivedAt:   time.Now(),
	})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

// MarkProcessed flips the processed flag once the handler has completed. On
// handler failure the row stays processed=false and the sender's redelivery
// is absorbed by TryBeginProcessing.
func (s *Store) MarkProcessed(ctx context.Context, deliveryID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&InboundEvent{}).
		Where("delivery_id = ?", deliveryID).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": now,
		}).Error
}

// Get returns the stored record for a delivery id, nil when unseen.
func (s *Store) Get(ctx context.Context, deliveryID string) (*InboundEvent, error) {
	return s.events.FindOne(ctx, &InboundEvent{DeliveryID: deliveryID})
}

// FindStuck lists events that were accepted but never marked processed,
// oldest first. These need operator attention; the core never retries them.
func (s *Store) FindStuck(ctx context.Context, limit int) ([]*InboundEvent, error) {
	return s.events.Find(ctx,
		&InboundEvent{},
		option.ApplyOperator(option.Condition{Field: "processed", Operator: option.EQ, Value: false}),
		option.WithSortBy(option.QuerySortBy{SortBy: "received_at", OrderBy: "asc", Allow: map[string]bool{"received_at": true}}),
		option.WithLimit(limit),
	)
}
