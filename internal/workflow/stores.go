package workflow

import (
	"log/slog"

	"prodir/internal/generation"
	"prodir/internal/profile/approval"
	profilestore "prodir/internal/profile/store"
	"prodir/internal/publication/pipeline"
	pubstore "prodir/internal/publication/store"
	"prodir/internal/review/aggregator"
	reviewstore "prodir/internal/review/store"
)

// ProfileStore is everything the workflow needs from the draft store.
type ProfileStore interface {
	approval.Store
	aggregator.ProfileStore
	pipeline.ProfileStore
}

// SnapshotStore is the public-read store, including removal.
type SnapshotStore interface {
	pipeline.SnapshotStore
	approval.SnapshotRemover
}

// Stores are the persistence adapters a Service is built from.
type Stores struct {
	Profiles  ProfileStore
	Reviews   aggregator.ReviewStore
	Tx        aggregator.TxRunner
	Snapshots SnapshotStore
}

// InMemoryStores returns process-local adapters for every store.
func InMemoryStores() Stores {
	return Stores{
		Profiles:  profilestore.NewInMemory(),
		Reviews:   reviewstore.NewInMemory(),
		Tx:        reviewstore.NewShardedTx(0),
		Snapshots: pubstore.NewInMemory(),
	}
}

// Build wires the approval, review and publication services over stores
// and returns the façade. A nil generator leaves generation disabled.
func Build(stores Stores, generator generation.Generator, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	approvals, err := approval.New(stores.Profiles,
		approval.WithLogger(logger),
		approval.WithSnapshotRemover(stores.Snapshots),
	)
	if err != nil {
		return nil, err
	}
	reviews, err := aggregator.New(stores.Reviews, stores.Profiles, stores.Tx, aggregator.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	publication, err := pipeline.New(stores.Profiles, stores.Snapshots, pipeline.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithLogger(logger)}, opts...)
	if generator != nil {
		gen, err := generation.New(generator, approvals, generation.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithGeneration(gen))
	}
	return New(approvals, reviews, publication, opts...)
}
