package events

import (
	"context"
	"errors"
	"strconv"
	"sync"

	domainevents "github.com/yungbote/store-composite/internal/domain/events"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

var ErrClosed = errors.New("publisher closed")

// DefaultMemoryMaxLen bounds each channel log when no MaxLen is given.
const DefaultMemoryMaxLen int64 = 10000

// MemoryPublisher keeps the newest maxLen messages per channel in order and
// fans each message out to subscribers. Used in development and tests.
type MemoryPublisher struct {
	log    *logger.Logger
	maxLen int64

	mu          sync.Mutex
	closed      bool
	seq         int64
	logs        map[Channel][]Message
	subscribers map[Channel][]func(Message)
}

type MemoryOption func(*MemoryPublisher)

// WithMaxLen caps each channel log at n messages, dropping the oldest.
// Values below 1 keep the default.
func WithMaxLen(n int64) MemoryOption {
	return func(p *MemoryPublisher) {
		if n > 0 {
			p.maxLen = n
		}
	}
}

func NewMemoryPublisher(log *logger.Logger, opts ...MemoryOption) *MemoryPublisher {
	if log == nil {
		log = logger.Nop()
	}
	p := &MemoryPublisher{
		log:         log.With("service", "MemoryPublisher"),
		maxLen:      DefaultMemoryMaxLen,
		logs:        make(map[Channel][]Message),
		subscribers: make(map[Channel][]func(Message)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *MemoryPublisher) Publish(ctx context.Context, channel Channel, event domainevents.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := encode(channel, event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.seq++
	msg.ID = strconv.FormatInt(p.seq, 10)
	l := p.logs[channel]
	if int64(len(l)) >= p.maxLen {
		// Reslicing lets the next growth copy only the retained window.
		l = l[int64(len(l))-p.maxLen+1:]
	}
	p.logs[channel] = append(l, msg)
	subs := p.subscribers[channel]
	p.mu.Unlock()

	p.log.Debug("Event enqueued", "channel", string(channel), "event_type", string(msg.Type), "product_id", msg.Key)
	for _, fn := range subs {
		fn(msg)
	}
	return nil
}

// Subscribe registers fn for messages published to channel after this call.
func (p *MemoryPublisher) Subscribe(channel Channel, fn func(Message)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	p.subscribers[channel] = append(p.subscribers[channel], fn)
	p.mu.Unlock()
}

// Messages returns a copy of the channel log in enqueue order.
func (p *MemoryPublisher) Messages(channel Channel) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.logs[channel]))
	copy(out, p.logs[channel])
	return out
}

func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
