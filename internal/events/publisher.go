package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainevents "github.com/yungbote/store-composite/internal/domain/events"
)

// Channel is the logical destination owned by one backend service.
type Channel string

const (
	ChannelProducts        Channel = "products"
	ChannelRecommendations Channel = "recommendations"
	ChannelReviews         Channel = "reviews"
)

var Channels = []Channel{ChannelProducts, ChannelRecommendations, ChannelReviews}

func (c Channel) Valid() bool {
	switch c {
	case ChannelProducts, ChannelRecommendations, ChannelReviews:
		return true
	default:
		return false
	}
}

// Publisher enqueues events for asynchronous delivery. Events passed in one
// goroutine are enqueued in call order. A nil error means the transport
// accepted the event, nothing more.
type Publisher interface {
	Publish(ctx context.Context, channel Channel, event domainevents.Envelope) error
	Close() error
}

// Message is an enqueued event as stored by a transport.
type Message struct {
	ID        string
	Channel   Channel
	Type      domainevents.Type
	Key       int
	CreatedAt time.Time
	Payload   json.RawMessage
}

func encode(channel Channel, event domainevents.Envelope) (Message, error) {
	if !channel.Valid() {
		return Message{}, fmt.Errorf("unknown event channel %q", channel)
	}
	if event == nil {
		return Message{}, fmt.Errorf("nil event for channel %q", channel)
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s event: %w", channel, err)
	}
	return Message{
		Channel:   channel,
		Type:      event.EventType(),
		Key:       event.EventKey(),
		CreatedAt: event.EventCreatedAt(),
		Payload:   raw,
	}, nil
}
