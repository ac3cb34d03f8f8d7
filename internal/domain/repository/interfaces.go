package repository

import (
	"context"
	"time"

	"OptionPulse/internal/domain/models"
)

// MarketFeed fetches the raw option chain and daily candles from the
// upstream broker API on behalf of one authenticated user.
type MarketFeed interface {
	FetchChain(ctx context.Context, token string, expiry string) (*models.Chain, error)
	FetchPrevDayOHLC(ctx context.Context, token string, before time.Time) (*models.OHLC, error)
	FetchOpenCandle(ctx context.Context, token string, day time.Time) (*models.OHLC, error)
}

// CredentialStore persists per-user access tokens.
type CredentialStore interface {
	Get(ctx context.Context, username string) (*models.Credential, error)
	Put(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, username string) error
	Users(ctx context.Context) ([]string, error)
}

// BaselineStore persists the per-(user, IST date) baseline snapshot.
type BaselineStore interface {
	Get(ctx context.Context, username, date string) (*models.BaselineSnapshot, error)
	Put(ctx context.Context, snap *models.BaselineSnapshot) error
	Delete(ctx context.Context, username, date string) error
}

// SettingsStore persists per-user runtime settings.
type SettingsStore interface {
	Get(ctx context.Context, username string) (*models.Settings, error)
	Put(ctx context.Context, s *models.Settings) error
}

// SignalLog records fired signal events and serves them back per user.
type SignalLog interface {
	Append(ctx context.Context, ev *models.SignalEvent) error
	List(ctx context.Context, username string, from, to time.Time, limit int) ([]*models.SignalEvent, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotLog is the durable per-cycle market-data log used for export.
type SnapshotLog interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, snap *models.PublishedSnapshot) error
	StoreBatch(ctx context.Context, snaps []*models.PublishedSnapshot) error
	Query(ctx context.Context, username string, from, to time.Time, limit int) ([]*models.PublishedSnapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// Publisher streams published snapshots to an external bus.
type Publisher interface {
	Publish(ctx context.Context, snap *models.PublishedSnapshot) error
	PublishBatch(ctx context.Context, snaps []*models.PublishedSnapshot) error
	Close() error
}

// Broadcaster fans a published snapshot out to connected dashboard clients.
type Broadcaster interface {
	Broadcast(snap *models.PublishedSnapshot)
	Subscribers() int
}

// Metrics records pipeline-level counters and gauges.
type Metrics interface {
	RecordCycle(username, outcome string, seconds float64)
	RecordFetchError(kind string)
	RecordSignalFired(username string, position string)
	RecordUnderlyingPrice(username string, price float64)
	RecordVolatilityState(username, state string)
	RecordSubscribers(n int)
	RecordPersistError(kind string)
	RecordPersistQueueDepth(n int)
}
