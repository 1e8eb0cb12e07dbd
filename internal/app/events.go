package app

import (
	"context"
	"fmt"

	"github.com/yungbote/store-composite/internal/config"
	"github.com/yungbote/store-composite/internal/data/db"
	"github.com/yungbote/store-composite/internal/events"
	"github.com/yungbote/store-composite/internal/platform/logger"
	"github.com/yungbote/store-composite/internal/platform/shutdown"
)

// wirePublisher builds the configured transport, optionally wrapped in the
// journal. Closers are returned in the order they were opened.
func wirePublisher(ctx context.Context, log *logger.Logger, cfg config.EventsConfig) (events.Publisher, []shutdown.Closer, error) {
	var (
		pub     events.Publisher
		closers []shutdown.Closer
	)

	switch cfg.Transport {
	case "redis":
		rdb, err := events.DialRedis(ctx, events.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init redis transport: %w", err)
		}
		rp, err := events.NewRedisStreamPublisher(rdb, cfg.StreamPrefix, cfg.MaxLen, log)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		pub = rp
	default:
		pub = events.NewMemoryPublisher(log, events.WithMaxLen(cfg.MaxLen))
	}
	closers = append(closers, func(context.Context) error { return pub.Close() })

	if !cfg.Journal.Enabled {
		return pub, closers, nil
	}

	dbs, err := db.Open(db.Options{Driver: cfg.Journal.Driver, DSN: cfg.Journal.DSN}, log)
	if err != nil {
		_ = pub.Close()
		return nil, nil, fmt.Errorf("init event journal: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		_ = dbs.Close()
		_ = pub.Close()
		return nil, nil, fmt.Errorf("event journal automigrate: %w", err)
	}
	closers = append(closers, func(context.Context) error { return dbs.Close() })

	journal, err := events.NewJournal(pub, dbs.DB(), log)
	if err != nil {
		_ = dbs.Close()
		_ = pub.Close()
		return nil, nil, err
	}
	return journal, closers, nil
}
