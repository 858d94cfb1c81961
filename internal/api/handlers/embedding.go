package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/api"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/service"
)

type EmbeddingService interface {
	Add(ctx context.Context, items []service.ItemInput) error
	Modify(ctx context.Context, items []service.ItemInput) error
	Remove(ctx context.Context, input service.RemoveInput) error
}

type EmbeddingHandler struct {
	svc EmbeddingService
}

func NewEmbeddingHandler(svc EmbeddingService) *EmbeddingHandler {
	return &EmbeddingHandler{svc: svc}
}

type EmbeddingItemRequest struct {
	Title         string `json:"title"`
	GeneralItemID *int64 `json:"generalItemId"`
	WishlistID    *int64 `json:"wishlistId"`
	DonorOfferID  *int64 `json:"donorOfferId"`
}

type EmbeddingBatchRequest struct {
	Items []EmbeddingItemRequest `json:"items"`
}

type RemoveEmbeddingsRequest struct {
	EmbeddingIDs []int64 `json:"embeddingIds"`
	WishlistIDs  []int64 `json:"wishlistIds"`
}

func embeddingInputs(req EmbeddingBatchRequest) []service.ItemInput {
	items := make([]service.ItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.ItemInput{
			Title:         item.Title,
			GeneralItemID: item.GeneralItemID,
			WishlistID:    item.WishlistID,
			DonorOfferID:  item.DonorOfferID,
		}
	}
	return items
}

func (h *EmbeddingHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		api.Error(w, http.StatusBadRequest, "items are required")
		return
	}

	if err := h.svc.Add(r.Context(), embeddingInputs(req)); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, map[string]int{"count": len(req.Items)})
}

func (h *EmbeddingHandler) Modify(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		api.Error(w, http.StatusBadRequest, "items are required")
		return
	}

	if err := h.svc.Modify(r.Context(), embeddingInputs(req)); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int{"count": len(req.Items)})
}

func (h *EmbeddingHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req RemoveEmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.RemoveInput{
		EmbeddingIDs: req.EmbeddingIDs,
		WishlistIDs:  req.WishlistIDs,
	}
	if err := h.svc.Remove(r.Context(), input); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]bool{"deleted": true})
}
