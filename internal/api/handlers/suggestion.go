package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/api"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/service"
)

type SuggestionWorkflow interface {
	Preview(ctx context.Context, donorOfferID int64) (*service.PreviewResult, error)
	Keep(ctx context.Context, donorOfferID int64) (*service.CommitResult, error)
	Undo(donorOfferID int64) error
}

type SuggestionHandler struct {
	svc SuggestionWorkflow
}

func NewSuggestionHandler(svc SuggestionWorkflow) *SuggestionHandler {
	return &SuggestionHandler{svc: svc}
}

type PreviewResponse struct {
	SessionID   string                      `json:"sessionId"`
	Suggestions []domain.ItemSuggestion     `json:"suggestions"`
	Assignments []domain.LineItemAssignment `json:"assignments"`
	Changed     []domain.LineItemAssignment `json:"changed"`
}

type KeepResponse struct {
	AppliedCount      int    `json:"appliedCount"`
	TotalChanged      int    `json:"totalChanged"`
	FirstFailureIndex *int   `json:"firstFailureIndex,omitempty"`
	Error             string `json:"error,omitempty"`
}

func offerIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "offerID"), 10, 64)
	return id, err == nil
}

func (h *SuggestionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	offerID, ok := offerIDParam(r)
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid offer id")
		return
	}

	result, err := h.svc.Preview(r.Context(), offerID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, PreviewResponse{
		SessionID:   result.SessionID,
		Suggestions: result.Suggestions,
		Assignments: result.Assignments,
		Changed:     result.Changed,
	})
}

func (h *SuggestionHandler) Keep(w http.ResponseWriter, r *http.Request) {
	offerID, ok := offerIDParam(r)
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid offer id")
		return
	}

	result, err := h.svc.Keep(r.Context(), offerID)
	if err != nil {
		if result == nil {
			api.HandleError(w, err)
			return
		}
		// partial commit: earlier pairs are already durable, so the caller
		// gets the progress report with the failure, not a bare error
		api.JSON(w, http.StatusConflict, KeepResponse{
			AppliedCount:      result.AppliedCount,
			TotalChanged:      result.TotalChanged,
			FirstFailureIndex: result.FirstFailureIndex,
			Error:             err.Error(),
		})
		return
	}

	api.Success(w, http.StatusOK, KeepResponse{
		AppliedCount: result.AppliedCount,
		TotalChanged: result.TotalChanged,
	})
}

func (h *SuggestionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	offerID, ok := offerIDParam(r)
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid offer id")
		return
	}

	if err := h.svc.Undo(offerID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]bool{"discarded": true})
}
