// Package store persists TestBatch/ChannelInstance/GlobalCheck rows behind
// one interface with two backends: an in-process MemStore for
// single-host runs and tests, and a PostgresStore for a shared
// deployment.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dj1530954213/fatengine/model"
)

// ErrNotFound is returned by any lookup whose key does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract every other component depends on.
// Writes are idempotent on the primary key they're keyed by: every create
// path is a single Upsert call.
type Store interface {
	UpsertBatch(ctx context.Context, batch *model.TestBatch) error
	GetBatch(ctx context.Context, batchID uint64) (*model.TestBatch, error)
	GetBatchByName(ctx context.Context, name string) (*model.TestBatch, error)
	ListBatches(ctx context.Context) ([]*model.TestBatch, error)
	DeleteBatch(ctx context.Context, batchID uint64) error

	UpsertInstances(ctx context.Context, instances []*model.ChannelInstance) error
	GetInstance(ctx context.Context, instanceID uint64) (*model.ChannelInstance, error)
	GetInstancesByBatch(ctx context.Context, batchID uint64) ([]*model.ChannelInstance, error)

	UpsertGlobalCheck(ctx context.Context, check *model.GlobalCheck) error
	GetGlobalChecks(ctx context.Context, station string, importTime time.Time) ([]*model.GlobalCheck, error)

	Close() error
}
