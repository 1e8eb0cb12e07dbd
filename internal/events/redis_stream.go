package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domainevents "github.com/yungbote/store-composite/internal/domain/events"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis opens a client and verifies it with PING.
func DialRedis(ctx context.Context, opts RedisOptions) (*goredis.Client, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisStreamPublisher appends each event to the stream "<prefix>.<channel>".
type RedisStreamPublisher struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	maxLen int64
}

func NewRedisStreamPublisher(rdb *goredis.Client, prefix string, maxLen int64, log *logger.Logger) (*RedisStreamPublisher, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "store"
	}
	return &RedisStreamPublisher{
		log:    log.With("service", "RedisStreamPublisher"),
		rdb:    rdb,
		prefix: prefix,
		maxLen: maxLen,
	}, nil
}

func (p *RedisStreamPublisher) Stream(channel Channel) string {
	return p.prefix + "." + string(channel)
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, channel Channel, event domainevents.Envelope) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis stream publisher not initialized")
	}
	msg, err := encode(channel, event)
	if err != nil {
		return err
	}

	args := &goredis.XAddArgs{
		Stream: p.Stream(channel),
		Values: map[string]interface{}{
			"eventType": string(msg.Type),
			"key":       strconv.Itoa(msg.Key),
			"payload":   string(msg.Payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	p.log.Debug("Event enqueued", "stream", args.Stream, "id", id, "event_type", string(msg.Type), "product_id", msg.Key)
	return nil
}

func (p *RedisStreamPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
