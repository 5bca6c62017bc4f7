package db

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned by Load when the store holds no snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// SnapshotStore defines the persistence collaborator contract. The engine
// hands it a serialized copy of its state after every successful mutation;
// the stored copy is derived and never the source of truth while the
// process is running. Both filestore.Store and postgres.DB implement this
// interface.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}
