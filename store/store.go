package store

import (
	"context"
	"errors"
	"time"

	"github.com/tnicklin/sysclock/instant"
	"github.com/tnicklin/sysclock/sntp"
)

// ErrNotOpen is returned by operations on a store that has not been opened.
var ErrNotOpen = errors.New("store is not open")

// Config configures the sync history store.
type Config struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Defaults returns the default store configuration.
func (Config) Defaults() Config {
	return Config{
		Path:          "data/sysclock.db",
		RetentionDays: 30,
	}
}

// Retention returns how long records are kept, or zero to keep them
// forever.
func (c Config) Retention() time.Duration {
	return time.Duration(max(c.RetentionDays, 0)) * 24 * time.Hour
}

// Record is one persisted SNTP exchange.
type Record struct {
	ID      string
	Server  string
	Status  string
	Error   string
	Stratum uint8

	T1, T2, T3, T4 instant.Instant
	Offset         instant.Instant
	// Updated is the corrected clock value produced by the exchange.
	Updated instant.Instant

	RecordedAt time.Time
}

// RecordFromResult converts an exchange result into a Record stamped at.
func RecordFromResult(res sntp.Result, at time.Time) Record {
	rec := Record{
		ID:         res.ID.String(),
		Server:     res.Server,
		Status:     res.Status.String(),
		Stratum:    res.Packet.Stratum,
		T1:         res.T1,
		T2:         res.T2,
		T3:         res.T3,
		T4:         res.T4,
		Offset:     res.Offset,
		Updated:    res.Updated.Instant(),
		RecordedAt: at.UTC(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// Succeeded reports whether the exchange succeeded.
func (r Record) Succeeded() bool {
	return r.Status == sntp.Success.String()
}

// Store persists sync history.
type Store interface {
	Open(ctx context.Context) error
	Close() error

	RestoreFromDisk(ctx context.Context, path string) error
	FlushToDisk(ctx context.Context, path string) error

	RecordSync(ctx context.Context, rec Record) error
	// LastSuccess returns the most recent successful exchange, or nil.
	LastSuccess(ctx context.Context) (*Record, error)
	// ListSince returns records at or after cutoff, newest first. A
	// non-positive limit returns all of them.
	ListSince(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)
	// Prune deletes records older than cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
