package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/pooly/backend/internal/repository"
)

// Loaders coalesce per-question upvote lookups issued during one unit of work
// into a single query per batch. They keep no cache: a Loaders value is built
// for one unit of work and each batch reads the ledger afresh.
type Loaders struct {
	UpvoteCount *dataloader.Loader[uuid.UUID, int64]
	Upvoted     *dataloader.Loader[uuid.UUID, bool]
}

const loaderWait = 2 * time.Millisecond

func NewLoaders(upvotes repository.UpvoteRepository, participantID uuid.UUID) *Loaders {
	countBatch := func(ctx context.Context, ids []uuid.UUID) []*dataloader.Result[int64] {
		counts, err := upvotes.CountMany(ctx, ids)
		results := make([]*dataloader.Result[int64], len(ids))
		for i, id := range ids {
			if err != nil {
				results[i] = &dataloader.Result[int64]{Error: err}
				continue
			}
			results[i] = &dataloader.Result[int64]{Data: counts[id]}
		}
		return results
	}

	upvotedBatch := func(ctx context.Context, ids []uuid.UUID) []*dataloader.Result[bool] {
		upvoted, err := upvotes.ExistsMany(ctx, ids, participantID)
		results := make([]*dataloader.Result[bool], len(ids))
		for i, id := range ids {
			if err != nil {
				results[i] = &dataloader.Result[bool]{Error: err}
				continue
			}
			results[i] = &dataloader.Result[bool]{Data: upvoted[id]}
		}
		return results
	}

	return &Loaders{
		UpvoteCount: dataloader.NewBatchedLoader(countBatch,
			dataloader.WithCache[uuid.UUID, int64](&dataloader.NoCache[uuid.UUID, int64]{}),
			dataloader.WithWait[uuid.UUID, int64](loaderWait),
		),
		Upvoted: dataloader.NewBatchedLoader(upvotedBatch,
			dataloader.WithCache[uuid.UUID, bool](&dataloader.NoCache[uuid.UUID, bool]{}),
			dataloader.WithWait[uuid.UUID, bool](loaderWait),
		),
	}
}
