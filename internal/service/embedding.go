package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingRepositoryInterface defines the repository interface for embedding lifecycle operations
type EmbeddingRepositoryInterface interface {
	Upsert(ctx context.Context, e *domain.ItemEmbedding) error
	UpsertPartial(ctx context.Context, e *domain.ItemEmbedding) error
	UpdateDonorOffer(ctx context.Context, generalItemID int64, donorOfferID *int64) error
	CountGeneralItemOwned(ctx context.Context, embeddingIDs []int64) (int64, error)
	Delete(ctx context.Context, embeddingIDs, wishlistIDs []int64) error
}

// ItemInput describes one record to embed. Exactly one of GeneralItemID and
// WishlistID must be set; DonorOfferID is only valid alongside GeneralItemID.
type ItemInput struct {
	Title         string
	GeneralItemID *int64
	WishlistID    *int64
	DonorOfferID  *int64
}

// RemoveInput targets embeddings for deletion by embedding id and/or
// wishlist id.
type RemoveInput struct {
	EmbeddingIDs []int64
	WishlistIDs  []int64
}

// EmbeddingService maintains the embedding store: upserts on add/modify,
// wishlist-only deletion, and the ownership invariants around both.
type EmbeddingService struct {
	client EmbeddingClient
	repo   EmbeddingRepositoryInterface
}

// NewEmbeddingService creates a new EmbeddingService instance. A nil client
// means embedding generation is not configured; mutating calls fail closed.
func NewEmbeddingService(client EmbeddingClient, repo EmbeddingRepositoryInterface) *EmbeddingService {
	return &EmbeddingService{client: client, repo: repo}
}

// Add embeds and upserts an embedding per item. Items with empty or
// whitespace-only titles are silently skipped. All items are validated before
// any network or store call is made.
func (s *EmbeddingService) Add(ctx context.Context, items []ItemInput) error {
	if s.client == nil {
		return domain.ErrEmbeddingNotConfigured
	}

	owners := make([]domain.Owner, len(items))
	for i, item := range items {
		owner, err := domain.NewOwner(item.GeneralItemID, item.WishlistID, item.DonorOfferID)
		if err != nil {
			return err
		}
		owners[i] = owner
	}

	var (
		titles  []string
		toEmbed []int
	)
	for i, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		titles = append(titles, title)
		toEmbed = append(toEmbed, i)
	}
	if len(titles) == 0 {
		return nil
	}

	vectors, err := s.client.GenerateEmbeddings(ctx, titles)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	for j, i := range toEmbed {
		vec := vectors[j]
		domain.SanitizeVector(vec)
		if err := domain.ValidateVector(vec); err != nil {
			return err
		}

		record := &domain.ItemEmbedding{Owner: owners[i], Vector: vec}
		if err := s.repo.Upsert(ctx, record); err != nil {
			return fmt.Errorf("failed to upsert embedding: %w", err)
		}
	}

	return nil
}

// Modify partially updates embeddings. The vector is recomputed only when a
// non-empty title is supplied; a donor offer reference can be updated on its
// own, and a title-only update leaves the stored reference alone.
// Identifiers are re-validated per item.
func (s *EmbeddingService) Modify(ctx context.Context, items []ItemInput) error {
	if s.client == nil {
		return domain.ErrEmbeddingNotConfigured
	}

	owners := make([]domain.Owner, len(items))
	for i, item := range items {
		owner, err := domain.NewOwner(item.GeneralItemID, item.WishlistID, item.DonorOfferID)
		if err != nil {
			return err
		}
		owners[i] = owner
	}

	for i, item := range items {
		title := strings.TrimSpace(item.Title)
		if title != "" {
			vec, err := s.client.GenerateEmbedding(ctx, title)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			domain.SanitizeVector(vec)
			if err := domain.ValidateVector(vec); err != nil {
				return err
			}

			record := &domain.ItemEmbedding{Owner: owners[i], Vector: vec}
			if err := s.repo.UpsertPartial(ctx, record); err != nil {
				return fmt.Errorf("failed to upsert embedding: %w", err)
			}
			continue
		}

		if owners[i].Kind() == domain.OwnerGeneralItem && item.DonorOfferID != nil {
			if err := s.repo.UpdateDonorOffer(ctx, owners[i].ID(), item.DonorOfferID); err != nil {
				return fmt.Errorf("failed to update donor offer reference: %w", err)
			}
		}
	}

	return nil
}

// Remove deletes wishlist-owned embeddings. Deleting a general item embedding
// is refused outright so callers notice the misuse; those records only go away
// when their owner is deleted.
func (s *EmbeddingService) Remove(ctx context.Context, input RemoveInput) error {
	if len(input.EmbeddingIDs) == 0 && len(input.WishlistIDs) == 0 {
		return domain.ErrNoRemoveIdentifiers
	}

	count, err := s.repo.CountGeneralItemOwned(ctx, input.EmbeddingIDs)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrGeneralItemEmbeddingDelete
	}

	return s.repo.Delete(ctx, input.EmbeddingIDs, input.WishlistIDs)
}
