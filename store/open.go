package store

import (
	"context"
	"fmt"

	"github.com/dj1530954213/fatengine/configs"
)

// Open builds the Store named by backend ("mem" or "postgres"), matching
// the store-type switch in configs.StoreMem/configs.StorePostgres. dsnOrDir
// is the WAL directory for "mem" or the connection string for "postgres".
func Open(ctx context.Context, backend, dsnOrDir string) (Store, error) {
	switch backend {
	case configs.StoreMem:
		return NewMemStore(dsnOrDir)
	case configs.StorePostgres:
		return NewPostgresStore(ctx, dsnOrDir)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
