package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/api"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/service"
)

type MatchSearchService interface {
	TopKMatches(ctx context.Context, input service.TopKInput) ([][]*domain.MatchResult, error)
}

type ReconcileMatchService interface {
	LoadDonorOfferEmbeddings(ctx context.Context, donorOfferID int64, cache *service.OfferEmbeddingCache) error
	FindSimilarFromCache(ctx context.Context, donorOfferID int64, query string, cache *service.OfferEmbeddingCache, filter service.ReconcileFilter, cutoff float64) (*domain.CacheMatch, error)
}

type MatchHandler struct {
	search    MatchSearchService
	reconcile ReconcileMatchService
}

func NewMatchHandler(search MatchSearchService, reconcile ReconcileMatchService) *MatchHandler {
	return &MatchHandler{search: search, reconcile: reconcile}
}

type SearchRequest struct {
	Queries        []string `json:"queries"`
	TopK           int      `json:"topK"`
	DistanceCutoff *float64 `json:"distanceCutoff"`
	HardCutoff     *float64 `json:"hardCutoff"`
	GeneralItemIDs []int64  `json:"generalItemIds"`
	WishlistIDs    []int64  `json:"wishlistIds"`
	DonorOfferIDs  []int64  `json:"donorOfferIds"`
}

type MatchResponse struct {
	GeneralItemID int64   `json:"generalItemId"`
	DonorOfferID  *int64  `json:"donorOfferId,omitempty"`
	Title         string  `json:"title"`
	Distance      float64 `json:"distance"`
	Similarity    float64 `json:"similarity"`
	Strength      string  `json:"strength"`
}

type SearchResponse struct {
	Results [][]*MatchResponse `json:"results"`
}

func (h *MatchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Queries) == 0 {
		api.Error(w, http.StatusBadRequest, "queries are required")
		return
	}

	input := service.TopKInput{
		Queries:        req.Queries,
		K:              req.TopK,
		DistanceCutoff: req.DistanceCutoff,
		HardCutoff:     req.HardCutoff,
		Filter: domain.MatchFilter{
			GeneralItemIDs: req.GeneralItemIDs,
			WishlistIDs:    req.WishlistIDs,
			DonorOfferIDs:  req.DonorOfferIDs,
		},
	}

	results, err := h.search.TopKMatches(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([][]*MatchResponse, len(results))
	for i, matches := range results {
		out[i] = make([]*MatchResponse, len(matches))
		for j, m := range matches {
			out[i][j] = &MatchResponse{
				GeneralItemID: m.GeneralItemID,
				DonorOfferID:  m.DonorOfferID,
				Title:         m.Title,
				Distance:      m.Distance,
				Similarity:    m.Similarity,
				Strength:      string(m.Strength),
			}
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: out})
}

type ReconcileRowRequest struct {
	Query          string `json:"query"`
	UnitType       string `json:"unitType"`
	ExpirationDate string `json:"expirationDate"`
}

type ReconcileRequest struct {
	Rows          []ReconcileRowRequest `json:"rows"`
	Cutoff        float64               `json:"cutoff"`
	ToleranceDays int                   `json:"toleranceDays"`
}

type ReconcileMatchResponse struct {
	GeneralItemID int64   `json:"generalItemId"`
	Title         string  `json:"title"`
	Distance      float64 `json:"distance"`
}

type ReconcileResponse struct {
	Matches []*ReconcileMatchResponse `json:"matches"`
}

// ReconcileOffer resolves a batch of reconciliation rows against one offer's
// embeddings. The offer's embeddings are fetched once per request, then every
// row is answered from the in-memory copy.
func (h *MatchHandler) ReconcileOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := strconv.ParseInt(chi.URLParam(r, "offerID"), 10, 64)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid offer id")
		return
	}

	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		api.Error(w, http.StatusBadRequest, "rows are required")
		return
	}

	cache := service.NewOfferEmbeddingCache()
	if err := h.reconcile.LoadDonorOfferEmbeddings(r.Context(), offerID, cache); err != nil {
		api.HandleError(w, err)
		return
	}

	matches := make([]*ReconcileMatchResponse, len(req.Rows))
	for i, row := range req.Rows {
		filter := service.ReconcileFilter{
			UnitType:      row.UnitType,
			ToleranceDays: req.ToleranceDays,
		}
		if row.ExpirationDate != "" {
			parsed, err := time.Parse("2006-01-02", row.ExpirationDate)
			if err != nil {
				api.Error(w, http.StatusBadRequest, "invalid expiration date, expected YYYY-MM-DD")
				return
			}
			filter.ExpirationDate = &parsed
		}

		match, err := h.reconcile.FindSimilarFromCache(r.Context(), offerID, row.Query, cache, filter, req.Cutoff)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		if match != nil {
			matches[i] = &ReconcileMatchResponse{
				GeneralItemID: match.GeneralItemID,
				Title:         match.Title,
				Distance:      match.Distance,
			}
		}
	}

	api.Success(w, http.StatusOK, ReconcileResponse{Matches: matches})
}
