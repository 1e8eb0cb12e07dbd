package events

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/store-composite/internal/data/db"
	"github.com/yungbote/store-composite/internal/domain/catalog"
	domainevents "github.com/yungbote/store-composite/internal/domain/events"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Channel, domainevents.Envelope) error {
	return errors.New("broker down")
}
func (failingPublisher) Close() error { return nil }

func openJournalDB(t *testing.T) *db.Service {
	t.Helper()
	svc, err := db.Open(db.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "journal.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	require.NoError(t, db.AutoMigrateAll(svc.DB()))
	return svc
}

func TestJournalRecordsAcceptedEvents(t *testing.T) {
	svc := openJournalDB(t)
	mem := NewMemoryPublisher(nil)
	j, err := NewJournal(mem, svc.DB(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, j.Publish(ctx, ChannelProducts, domainevents.NewCreate(5, catalog.Product{ProductID: 5, Name: "n", Weight: 2}, now)))
	require.NoError(t, j.Publish(ctx, ChannelReviews, domainevents.NewDelete[catalog.Review](5, now)))

	var rows []domainevents.PublishedEvent
	require.NoError(t, svc.DB().Order("channel").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "products", rows[0].Channel)
	assert.Equal(t, "CREATE", rows[0].EventType)
	assert.Equal(t, 5, rows[0].ProductID)
	assert.Contains(t, string(rows[0].Payload), `"name":"n"`)
	assert.Equal(t, "reviews", rows[1].Channel)
	assert.Equal(t, "DELETE", rows[1].EventType)

	assert.Len(t, mem.Messages(ChannelProducts), 1)
}

func TestJournalSkipsRejectedEvents(t *testing.T) {
	svc := openJournalDB(t)
	j, err := NewJournal(failingPublisher{}, svc.DB(), nil)
	require.NoError(t, err)

	err = j.Publish(context.Background(), ChannelProducts, domainevents.NewDelete[catalog.Product](1, time.Now()))
	require.Error(t, err)

	var count int64
	require.NoError(t, svc.DB().Model(&domainevents.PublishedEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
