package events

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domainevents "github.com/yungbote/store-composite/internal/domain/events"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

// Journal records every event the wrapped publisher accepted in the
// published_events table. Journal failures are logged and never returned.
type Journal struct {
	next Publisher
	db   *gorm.DB
	log  *logger.Logger
}

func NewJournal(next Publisher, db *gorm.DB, log *logger.Logger) (*Journal, error) {
	if next == nil {
		return nil, errors.New("journal requires a publisher")
	}
	if db == nil {
		return nil, errors.New("journal requires a database")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Journal{next: next, db: db, log: log.With("service", "EventJournal")}, nil
}

func (j *Journal) Publish(ctx context.Context, channel Channel, event domainevents.Envelope) error {
	if err := j.next.Publish(ctx, channel, event); err != nil {
		return err
	}

	msg, err := encode(channel, event)
	if err != nil {
		j.log.Warn("Journal encode failed", "channel", string(channel), "error", err)
		return nil
	}
	row := &domainevents.PublishedEvent{
		Channel:        string(channel),
		EventType:      string(msg.Type),
		ProductID:      msg.Key,
		Payload:        datatypes.JSON(msg.Payload),
		EventCreatedAt: msg.CreatedAt,
	}
	if err := j.db.WithContext(context.WithoutCancel(ctx)).Create(row).Error; err != nil {
		j.log.Warn("Journal write failed", "channel", string(channel), "product_id", msg.Key, "error", err)
	}
	return nil
}

func (j *Journal) Close() error {
	return j.next.Close()
}
