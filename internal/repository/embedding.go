package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
)

// EmbeddingRepository persists owner-keyed item embeddings and implements
// nearest-neighbor search over them.
type EmbeddingRepository struct {
	db dbtx
}

func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{db: pool}
}

func NewEmbeddingRepositoryWithTx(tx pgx.Tx) *EmbeddingRepository {
	return &EmbeddingRepository{db: tx}
}

// Upsert inserts or overwrites the embedding for the record's owner key. The
// conflict target is the owner column, so concurrent writers for the same
// owner collapse into a single row.
func (r *EmbeddingRepository) Upsert(ctx context.Context, e *domain.ItemEmbedding) error {
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	vec := pgvector.NewVector(e.Vector)

	switch e.Owner.Kind() {
	case domain.OwnerGeneralItem:
		return r.db.QueryRow(ctx,
			`INSERT INTO item_embeddings (general_item_id, donor_offer_id, embedding, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (general_item_id) DO UPDATE
			 SET donor_offer_id = EXCLUDED.donor_offer_id,
			     embedding = EXCLUDED.embedding,
			     updated_at = EXCLUDED.updated_at
			 RETURNING id`,
			e.Owner.ID(), e.Owner.DonorOfferID(), vec, updatedAt,
		).Scan(&e.ID)
	case domain.OwnerWishlist:
		return r.db.QueryRow(ctx,
			`INSERT INTO item_embeddings (wishlist_id, embedding, updated_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (wishlist_id) DO UPDATE
			 SET embedding = EXCLUDED.embedding,
			     updated_at = EXCLUDED.updated_at
			 RETURNING id`,
			e.Owner.ID(), vec, updatedAt,
		).Scan(&e.ID)
	default:
		return domain.ErrMissingOwner
	}
}

// UpsertPartial is Upsert for the modify path: when the record carries no
// donor offer reference, a conflicting general item row keeps its stored
// donor_offer_id instead of having it cleared.
func (r *EmbeddingRepository) UpsertPartial(ctx context.Context, e *domain.ItemEmbedding) error {
	if e.Owner.Kind() != domain.OwnerGeneralItem {
		return r.Upsert(ctx, e)
	}

	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	return r.db.QueryRow(ctx,
		`INSERT INTO item_embeddings (general_item_id, donor_offer_id, embedding, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (general_item_id) DO UPDATE
		 SET donor_offer_id = COALESCE(EXCLUDED.donor_offer_id, item_embeddings.donor_offer_id),
		     embedding = EXCLUDED.embedding,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		e.Owner.ID(), e.Owner.DonorOfferID(), pgvector.NewVector(e.Vector), updatedAt,
	).Scan(&e.ID)
}

// UpdateDonorOffer repoints an existing general item embedding at a donor
// offer without touching its vector.
func (r *EmbeddingRepository) UpdateDonorOffer(ctx context.Context, generalItemID int64, donorOfferID *int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE item_embeddings SET donor_offer_id = $1, updated_at = $2 WHERE general_item_id = $3`,
		donorOfferID, time.Now().UTC(), generalItemID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEmbeddingNotFound
	}
	return nil
}

// CountGeneralItemOwned reports how many of the given embedding ids belong to
// general items. Used to refuse deletions that target them.
func (r *EmbeddingRepository) CountGeneralItemOwned(ctx context.Context, embeddingIDs []int64) (int64, error) {
	if len(embeddingIDs) == 0 {
		return 0, nil
	}

	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM item_embeddings WHERE id = ANY($1) AND general_item_id IS NOT NULL`,
		embeddingIDs,
	).Scan(&count)
	return count, err
}

// Delete removes wishlist-owned embeddings by embedding id and/or wishlist id.
// The predicate keeps general item embeddings untouched regardless of input.
func (r *EmbeddingRepository) Delete(ctx context.Context, embeddingIDs, wishlistIDs []int64) error {
	if len(embeddingIDs) == 0 && len(wishlistIDs) == 0 {
		return nil
	}

	_, err := r.db.Exec(ctx,
		`DELETE FROM item_embeddings
		 WHERE wishlist_id IS NOT NULL
		   AND (id = ANY($1) OR wishlist_id = ANY($2))`,
		embeddingIDs, wishlistIDs,
	)
	return err
}

// Search returns up to k general-item embeddings nearest to the query vector,
// ordered by ascending cosine distance. Only items on matchable donor offers
// are candidates: offers still open for responses, or archived offers that
// retain at least one unallocated line item.
func (r *EmbeddingRepository) Search(ctx context.Context, vector []float32, k int, filter domain.MatchFilter) ([]*domain.MatchResult, error) {
	if k <= 0 {
		return []*domain.MatchResult{}, nil
	}

	query := `
		SELECT e.id, e.general_item_id, e.donor_offer_id, gi.title,
		       (e.embedding <=> $1)::float8 AS distance
		FROM item_embeddings e
		JOIN general_items gi ON gi.id = e.general_item_id
		JOIN donor_offers o ON o.id = gi.donor_offer_id
		WHERE e.general_item_id IS NOT NULL
		  AND (
		    (o.state = 'UNFINALIZED' AND (o.response_deadline IS NULL OR o.response_deadline > now()))
		    OR (o.state = 'ARCHIVED' AND EXISTS (
		      SELECT 1 FROM line_items li
		      LEFT JOIN allocations a ON a.line_item_id = li.id
		      WHERE li.donor_offer_id = o.id AND a.id IS NULL))
		  )`
	args := []interface{}{pgvector.NewVector(vector)}

	if len(filter.GeneralItemIDs) > 0 {
		args = append(args, filter.GeneralItemIDs)
		query += fmt.Sprintf(" AND e.general_item_id = ANY($%d)", len(args))
	}
	if len(filter.WishlistIDs) > 0 {
		args = append(args, filter.WishlistIDs)
		query += fmt.Sprintf(" AND e.wishlist_id = ANY($%d)", len(args))
	}
	if len(filter.DonorOfferIDs) > 0 {
		args = append(args, filter.DonorOfferIDs)
		query += fmt.Sprintf(" AND e.donor_offer_id = ANY($%d)", len(args))
	}

	args = append(args, k)
	query += fmt.Sprintf(" ORDER BY e.embedding <=> $1 LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.MatchResult, 0, k)
	for rows.Next() {
		var m domain.MatchResult
		if err := rows.Scan(&m.EmbeddingID, &m.GeneralItemID, &m.DonorOfferID, &m.Title, &m.Distance); err != nil {
			return nil, err
		}
		m.ID = m.GeneralItemID
		results = append(results, &m)
	}

	return results, rows.Err()
}

// ListByDonorOffer bulk-fetches every general item embedding tied to one
// donor offer, together with the item metadata the reconciliation filters
// match on.
func (r *EmbeddingRepository) ListByDonorOffer(ctx context.Context, donorOfferID int64) ([]domain.OfferItemEmbedding, error) {
	rows, err := r.db.Query(ctx,
		`SELECT e.general_item_id, gi.title, gi.unit_type, gi.expiration_date, e.embedding
		 FROM item_embeddings e
		 JOIN general_items gi ON gi.id = e.general_item_id
		 WHERE e.donor_offer_id = $1`,
		donorOfferID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.OfferItemEmbedding
	for rows.Next() {
		var entry domain.OfferItemEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&entry.GeneralItemID, &entry.Title, &entry.UnitType, &entry.ExpirationDate, &vec); err != nil {
			return nil, err
		}
		entry.Vector = vec.Slice()
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteOrphans removes embeddings whose owning record was deleted. The
// embedding table carries no foreign keys, so cascaded owner deletions leave
// rows behind until this sweep runs.
func (r *EmbeddingRepository) DeleteOrphans(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM item_embeddings e
		 WHERE (e.general_item_id IS NOT NULL
		        AND NOT EXISTS (SELECT 1 FROM general_items gi WHERE gi.id = e.general_item_id))
		    OR (e.wishlist_id IS NOT NULL
		        AND NOT EXISTS (SELECT 1 FROM wishlists w WHERE w.id = e.wishlist_id))`,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
