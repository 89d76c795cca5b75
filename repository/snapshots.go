// Package repository provides the bun/sqlite-backed local persistence used
// by the session controller: a single-key snapshot of the last confirmed
// profile, the Go analogue of the dashboard's web-storage cache.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/condovalle/go-auth"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// SnapshotKey is the fixed key the profile snapshot lives under. The value
// predates this package; existing installs carry it.
const SnapshotKey = "cdv2-profile"

// SnapshotModel is the Bun model for cached profile snapshots.
type SnapshotModel struct {
	bun.BaseModel `bun:"table:profile_snapshots"`

	Key     string    `bun:"key,pk"`
	Payload []byte    `bun:"payload,notnull"`
	SavedAt time.Time `bun:"saved_at,notnull,default:current_timestamp"`
}

// Snapshots implements auth.SnapshotStore on a local sqlite database. It is
// best-effort by contract: corrupted rows are scrubbed and reported as
// absent, never surfaced as errors.
type Snapshots struct {
	db  *bun.DB
	key string
	now func() time.Time
}

var _ auth.SnapshotStore = (*Snapshots)(nil)

// SnapshotsOption customizes the store.
type SnapshotsOption func(*Snapshots)

// WithSnapshotKey overrides the storage key.
func WithSnapshotKey(key string) SnapshotsOption {
	return func(s *Snapshots) {
		if key != "" {
			s.key = key
		}
	}
}

// WithSnapshotsClock injects a custom clock (useful for tests).
func WithSnapshotsClock(clock func() time.Time) SnapshotsOption {
	return func(s *Snapshots) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewSnapshots creates a store on an existing bun DB.
func NewSnapshots(db *bun.DB, opts ...SnapshotsOption) *Snapshots {
	s := &Snapshots{
		db:  db,
		key: SnapshotKey,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Open creates a store on a sqlite file, creating the table if needed. Use
// ":memory:" for throwaway stores.
func Open(ctx context.Context, path string, opts ...SnapshotsOption) (*Snapshots, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	s := NewSnapshots(db, opts...)
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Init creates the snapshot table if it does not exist.
func (s *Snapshots) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*SnapshotModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Load implements auth.SnapshotStore. A missing row and a corrupted payload
// both come back as (nil, nil); corruption is scrubbed on the way out.
func (s *Snapshots) Load(ctx context.Context) (*auth.Profile, error) {
	model := new(SnapshotModel)
	err := s.db.NewSelect().
		Model(model).
		Where("key = ?", s.key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	profile := new(auth.Profile)
	if err := json.Unmarshal(model.Payload, profile); err != nil {
		_ = s.Clear(ctx)
		return nil, nil
	}

	return profile, nil
}

// Save implements auth.SnapshotStore, upserting under the fixed key.
func (s *Snapshots) Save(ctx context.Context, profile *auth.Profile) error {
	if profile == nil {
		return s.Clear(ctx)
	}

	payload, err := json.Marshal(profile)
	if err != nil {
		return err
	}

	model := &SnapshotModel{
		Key:     s.key,
		Payload: payload,
		SavedAt: s.now(),
	}

	_, err = s.db.NewInsert().
		Model(model).
		On("CONFLICT (key) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("saved_at = EXCLUDED.saved_at").
		Exec(ctx)
	return err
}

// Clear implements auth.SnapshotStore.
func (s *Snapshots) Clear(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*SnapshotModel)(nil)).
		Where("key = ?", s.key).
		Exec(ctx)
	return err
}

// Close releases the underlying database.
func (s *Snapshots) Close() error {
	return s.db.Close()
}
