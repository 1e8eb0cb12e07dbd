package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PublishedEvent is one journaled event that the transport accepted.
type PublishedEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Channel        string         `gorm:"column:channel;not null;index:idx_published_event_channel_key,priority:1" json:"channel"`
	EventType      string         `gorm:"column:event_type;not null" json:"event_type"`
	ProductID      int            `gorm:"column:product_id;not null;index:idx_published_event_channel_key,priority:2" json:"product_id"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload"`
	EventCreatedAt time.Time      `gorm:"column:event_created_at;not null;index" json:"event_created_at"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (PublishedEvent) TableName() string { return "published_events" }

func (p *PublishedEvent) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
