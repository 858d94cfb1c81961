package domain

import (
	"math"
	"time"
)

// EmbeddingDimensions is the fixed dimension of stored vectors (ada-002).
const EmbeddingDimensions = 1536

// ItemEmbedding is a persisted embedding keyed by its owning record. At most
// one embedding exists per owner; writes are upserts by owner key.
type ItemEmbedding struct {
	ID        int64
	Owner     Owner
	Vector    []float32
	UpdatedAt time.Time
}

// ValidateVector checks the vector against the fixed dimension.
func ValidateVector(vec []float32) error {
	if len(vec) != EmbeddingDimensions {
		return ErrWrongDimensions
	}
	return nil
}

// SanitizeVector coerces non-finite components to zero in place. Alignment
// with the stored dimension is preserved rather than rejecting the vector.
func SanitizeVector(vec []float32) {
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			vec[i] = 0
		}
	}
}

// MatchStrength classifies how close a match is relative to the hard cutoff.
type MatchStrength string

const (
	MatchHard MatchStrength = "hard"
	MatchSoft MatchStrength = "soft"
)

// MatchResult is one nearest-neighbor hit for a query. Computed per query,
// never persisted.
type MatchResult struct {
	ID            int64
	EmbeddingID   int64
	GeneralItemID int64
	DonorOfferID  *int64
	Title         string
	Distance      float64
	Similarity    float64
	Strength      MatchStrength
}

// MatchFilter narrows a similarity search by record metadata.
type MatchFilter struct {
	GeneralItemIDs []int64
	WishlistIDs    []int64
	DonorOfferIDs  []int64
}

// OfferItemEmbedding is one cached candidate loaded for a bulk reconciliation
// pass over a single donor offer.
type OfferItemEmbedding struct {
	GeneralItemID  int64
	Title          string
	UnitType       string
	ExpirationDate *time.Time
	Vector         []float32
}

// CacheMatch is the best surviving candidate from a cache scan, or absent when
// nothing clears the cutoff.
type CacheMatch struct {
	GeneralItemID int64
	Title         string
	Distance      float64
}
