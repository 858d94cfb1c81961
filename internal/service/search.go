package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/telemetry"
)

const (
	// DefaultTopK bounds result lists when the caller does not say otherwise.
	DefaultTopK = 10
	// DefaultDistanceCutoff drops results further than this cosine distance.
	DefaultDistanceCutoff = 0.5
	// DefaultHardCutoff separates hard matches from soft ones.
	DefaultHardCutoff = 0.3
)

// MatchSearchRepository defines the repository interface for nearest-neighbor lookups
type MatchSearchRepository interface {
	Search(ctx context.Context, vector []float32, k int, filter domain.MatchFilter) ([]*domain.MatchResult, error)
}

// TopKInput is one batch similarity query. Zero-valued cutoffs take the
// defaults; nil/blank queries yield empty result lists.
type TopKInput struct {
	Queries        []string
	K              int
	DistanceCutoff *float64
	HardCutoff     *float64
	Filter         domain.MatchFilter
}

// MatchService answers semantic similarity queries over general item
// embeddings.
type MatchService struct {
	client EmbeddingClient
	repo   MatchSearchRepository
}

// NewMatchService creates a new MatchService instance
func NewMatchService(client EmbeddingClient, repo MatchSearchRepository) *MatchService {
	return &MatchService{client: client, repo: repo}
}

// TopKMatches embeds each query and returns its nearest general-item matches,
// ordered by ascending distance and truncated to k. The output always has one
// result list per input query; blank queries map to empty lists.
func (s *MatchService) TopKMatches(ctx context.Context, input TopKInput) ([][]*domain.MatchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "MatchService.TopKMatches", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	results := make([][]*domain.MatchResult, len(input.Queries))
	for i := range results {
		results[i] = []*domain.MatchResult{}
	}

	var (
		texts   []string
		indices []int
	)
	for i, q := range input.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		texts = append(texts, q)
		indices = append(indices, i)
	}
	if len(texts) == 0 {
		return results, nil
	}

	if s.client == nil {
		return nil, domain.ErrEmbeddingNotConfigured
	}

	k := input.K
	if k <= 0 {
		k = DefaultTopK
	}
	distanceCutoff := DefaultDistanceCutoff
	if input.DistanceCutoff != nil {
		distanceCutoff = *input.DistanceCutoff
	}
	hardCutoff := DefaultHardCutoff
	if input.HardCutoff != nil {
		hardCutoff = *input.HardCutoff
	}

	vectors, err := s.client.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed queries: %w", err)
	}

	for j, i := range indices {
		matches, err := s.repo.Search(ctx, vectors[j], k, input.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to search embeddings: %w", err)
		}

		kept := make([]*domain.MatchResult, 0, len(matches))
		for _, m := range matches {
			if m.Distance > distanceCutoff {
				continue
			}
			m.Similarity = 1 - m.Distance
			if m.Distance <= hardCutoff {
				m.Strength = domain.MatchHard
			} else {
				m.Strength = domain.MatchSoft
			}
			kept = append(kept, m)
		}
		results[i] = kept
	}

	return results, nil
}
