package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/telemetry"
)

// DefaultReconcileCutoff is the cosine distance ceiling for reconciliation
// matches. Much stricter than discovery search: this path pairs finalized
// spreadsheet rows with already-declared catalog items.
const DefaultReconcileCutoff = 0.15

// DefaultExpirationToleranceDays is the allowed gap between candidate and
// query expiration dates.
const DefaultExpirationToleranceDays = 1

// OfferEmbeddingRepository defines the repository interface for bulk-loading
// one offer's embeddings.
type OfferEmbeddingRepository interface {
	ListByDonorOffer(ctx context.Context, donorOfferID int64) ([]domain.OfferItemEmbedding, error)
}

// OfferEmbeddingCache holds one donor offer's embeddings in memory for the
// duration of a bulk reconciliation pass. It is not safe for concurrent
// mutation; callers serialize per offer.
type OfferEmbeddingCache struct {
	entries map[int64][]domain.OfferItemEmbedding
}

// NewOfferEmbeddingCache creates an empty cache.
func NewOfferEmbeddingCache() *OfferEmbeddingCache {
	return &OfferEmbeddingCache{entries: make(map[int64][]domain.OfferItemEmbedding)}
}

// Loaded reports whether the offer's embeddings are already cached.
func (c *OfferEmbeddingCache) Loaded(donorOfferID int64) bool {
	_, ok := c.entries[donorOfferID]
	return ok
}

// ReconcileFilter narrows cache candidates before any vector math runs.
type ReconcileFilter struct {
	UnitType       string
	ExpirationDate *time.Time
	// ToleranceDays overrides the default expiration tolerance when > 0.
	ToleranceDays int
}

// ReconcileService matches reconciliation rows against one offer's cached
// embeddings.
type ReconcileService struct {
	client EmbeddingClient
	repo   OfferEmbeddingRepository
}

// NewReconcileService creates a new ReconcileService instance
func NewReconcileService(client EmbeddingClient, repo OfferEmbeddingRepository) *ReconcileService {
	return &ReconcileService{client: client, repo: repo}
}

// LoadDonorOfferEmbeddings fetches all of the offer's general item embeddings
// into the cache in one round trip. Reloading an already-loaded offer is a
// no-op.
func (s *ReconcileService) LoadDonorOfferEmbeddings(ctx context.Context, donorOfferID int64, cache *OfferEmbeddingCache) error {
	ctx, span := telemetry.StartSpan(ctx, "ReconcileService.LoadDonorOfferEmbeddings", telemetry.SpanAttributes{
		DonorOfferID: strconv.FormatInt(donorOfferID, 10),
		Operation:    "reconcile",
	})
	defer span.End()

	if cache.Loaded(donorOfferID) {
		return nil
	}

	entries, err := s.repo.ListByDonorOffer(ctx, donorOfferID)
	if err != nil {
		return fmt.Errorf("failed to load donor offer embeddings: %w", err)
	}
	if entries == nil {
		entries = []domain.OfferItemEmbedding{}
	}
	cache.entries[donorOfferID] = entries
	return nil
}

// FindSimilarFromCache returns the cached candidate closest to the query, or
// nil when no candidate survives the metadata filters and the distance
// cutoff. Candidates are filtered on unit type and expiration proximity
// before the query is embedded.
func (s *ReconcileService) FindSimilarFromCache(ctx context.Context, donorOfferID int64, query string, cache *OfferEmbeddingCache, filter ReconcileFilter, cutoff float64) (*domain.CacheMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if cutoff <= 0 {
		cutoff = DefaultReconcileCutoff
	}
	tolerance := filter.ToleranceDays
	if tolerance <= 0 {
		tolerance = DefaultExpirationToleranceDays
	}

	var candidates []domain.OfferItemEmbedding
	for _, entry := range cache.entries[donorOfferID] {
		if normalizeUnitType(entry.UnitType) != normalizeUnitType(filter.UnitType) {
			continue
		}
		if !expirationWithin(entry.ExpirationDate, filter.ExpirationDate, tolerance) {
			continue
		}
		candidates = append(candidates, entry)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if s.client == nil {
		return nil, domain.ErrEmbeddingNotConfigured
	}
	queryVec, err := s.client.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var best *domain.CacheMatch
	for _, entry := range candidates {
		dist := cosineDistance(queryVec, entry.Vector)
		if best == nil || dist < best.Distance {
			best = &domain.CacheMatch{
				GeneralItemID: entry.GeneralItemID,
				Title:         entry.Title,
				Distance:      dist,
			}
		}
	}

	if best == nil || best.Distance > cutoff {
		return nil, nil
	}
	return best, nil
}

// normalizeUnitType folds case and whitespace so "Bottle " and "bottle"
// compare equal.
func normalizeUnitType(unit string) string {
	return strings.ToLower(strings.Join(strings.Fields(unit), " "))
}

// expirationWithin reports whether two expiration dates are within tolerance
// days of each other. Both nil counts as a match; one-sided nil does not.
func expirationWithin(a, b *time.Time, toleranceDays int) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	days := a.Sub(*b).Hours() / 24
	return math.Abs(days) <= float64(toleranceDays)
}

// cosineDistance computes 1 - cosine similarity. Zero-magnitude vectors are
// maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
