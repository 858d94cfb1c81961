package jobs

import (
	"context"
	"log"
)

// OrphanRepository deletes embeddings whose owning record no longer exists.
type OrphanRepository interface {
	DeleteOrphans(ctx context.Context) (int64, error)
}

// OrphanSweeper purges embeddings left behind when general items or wishlist
// entries are deleted out from under them. The embedding table carries no
// foreign keys, so stale rows accumulate until a sweep runs.
type OrphanSweeper struct {
	repo OrphanRepository
}

// NewOrphanSweeper creates a new OrphanSweeper instance
func NewOrphanSweeper(repo OrphanRepository) *OrphanSweeper {
	return &OrphanSweeper{repo: repo}
}

// Sweep runs one pass over the embedding store.
func (s *OrphanSweeper) Sweep(ctx context.Context) error {
	deleted, err := s.repo.DeleteOrphans(ctx)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("Swept %d orphaned embeddings", deleted)
	}
	return nil
}
