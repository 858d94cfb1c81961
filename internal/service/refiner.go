package service

import (
	"context"
	"log"
	"math"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/apportion"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/telemetry"
)

// ReasoningClient defines the interface for heuristic allocation adjustment
type ReasoningClient interface {
	AdjustAllocations(ctx context.Context, payload domain.AdjustmentPayload) (*domain.AdjustmentResponse, error)
}

// RefinerService turns a batch of items and partner requests into suggested
// integer shares. The largest-remainder baseline is always computed first;
// the reasoning service only ever reshapes it, and every degradation path
// lands back on the baseline.
type RefinerService struct {
	reasoning ReasoningClient
}

// NewRefinerService creates a new RefinerService instance. A nil reasoning
// client selects the deterministic fallback path.
func NewRefinerService(reasoning ReasoningClient) *RefinerService {
	return &RefinerService{reasoning: reasoning}
}

// Refine computes suggestions for the whole batch. Each returned suggestion
// carries the deterministic baseline alongside the final shares; both sum
// exactly to the item's total quantity.
func (s *RefinerService) Refine(ctx context.Context, items []domain.AllocationItem) ([]domain.ItemSuggestion, error) {
	ctx, span := telemetry.StartSpan(ctx, "RefinerService.Refine", telemetry.SpanAttributes{
		Operation: "refine",
	})
	defer span.End()

	suggestions := make([]domain.ItemSuggestion, len(items))
	for i, item := range items {
		weights := make([]float64, len(item.Requests))
		for j, req := range item.Requests {
			weights[j] = float64(req.Quantity)
		}
		baseline := apportion.Shares(item.TotalQuantity, weights)

		shares := make([]domain.AllocationShare, len(item.Requests))
		for j, req := range item.Requests {
			shares[j] = domain.AllocationShare{PartnerID: req.PartnerID, Quantity: baseline[j]}
		}

		suggestions[i] = domain.ItemSuggestion{
			GeneralItemID: item.GeneralItemID,
			Title:         item.Title,
			TotalQuantity: item.TotalQuantity,
			Baseline:      shares,
			Final:         shares,
		}
	}

	if s.reasoning == nil {
		return suggestions, nil
	}

	payload := buildAdjustmentPayload(items, suggestions)
	adjusted, err := s.reasoning.AdjustAllocations(ctx, payload)
	if err != nil {
		// Transport failures degrade to the baseline the same way parse
		// failures do; the batch never fails because the model was down.
		log.Printf("reasoning adjustment failed, keeping baseline: %v", err)
		telemetry.CaptureError(ctx, err)
		return suggestions, nil
	}

	for i := range suggestions {
		applyAdjustment(&suggestions[i], items[i], adjusted, i)
	}

	return suggestions, nil
}

// buildAdjustmentPayload assembles the compact per-item document, including
// each partner's aggregate position across the batch.
func buildAdjustmentPayload(items []domain.AllocationItem, suggestions []domain.ItemSuggestion) domain.AdjustmentPayload {
	global := partnerGlobalContext(items, suggestions)

	payload := domain.AdjustmentPayload{Items: make([]domain.AdjustmentItem, len(items))}
	for i, item := range items {
		entry := domain.AdjustmentItem{
			GeneralItemID: item.GeneralItemID,
			Title:         item.Title,
			Type:          item.UnitType,
			TotalQuantity: item.TotalQuantity,
			Requests:      make([]domain.AdjustmentContext, len(item.Requests)),
		}
		for j, req := range item.Requests {
			g := global[req.PartnerID]
			entry.Requests[j] = domain.AdjustmentContext{
				PartnerID:          req.PartnerID,
				Requested:          req.Quantity,
				Baseline:           suggestions[i].Baseline[j].Quantity,
				GlobalShare:        g.NormalizedShare,
				GlobalRequestCount: g.RequestCount,
			}
		}
		payload.Items[i] = entry
	}

	return payload
}

// partnerGlobalContext aggregates each partner's normalized baseline share
// and request count across every item in the batch.
func partnerGlobalContext(items []domain.AllocationItem, suggestions []domain.ItemSuggestion) map[int64]domain.PartnerGlobalContext {
	global := make(map[int64]domain.PartnerGlobalContext)
	for i, item := range items {
		for j, req := range item.Requests {
			g := global[req.PartnerID]
			g.PartnerID = req.PartnerID
			g.RequestCount++
			if item.TotalQuantity > 0 {
				g.NormalizedShare += float64(suggestions[i].Baseline[j].Quantity) / float64(item.TotalQuantity)
			}
			global[req.PartnerID] = g
		}
	}
	return global
}

// applyAdjustment folds one item's adjusted quantities into its suggestion.
// Missing or malformed per-partner values fall back to the baseline, and the
// result is re-apportioned whenever its sum drifts from the total.
func applyAdjustment(suggestion *domain.ItemSuggestion, item domain.AllocationItem, adjusted *domain.AdjustmentResponse, index int) {
	if adjusted == nil || index >= len(adjusted.Items) {
		return
	}

	byPartner := make(map[int64]domain.LooseQuantity)
	for _, req := range adjusted.Items[index].Requests {
		byPartner[req.PartnerID] = req.Quantity
	}

	final := make([]domain.AllocationShare, len(suggestion.Baseline))
	var sum int64
	for j, base := range suggestion.Baseline {
		qty := base.Quantity
		if loose, ok := byPartner[base.PartnerID]; ok && loose.OK {
			qty = int64(math.Round(loose.Value))
			if qty < 0 {
				qty = 0
			}
		}
		final[j] = domain.AllocationShare{PartnerID: base.PartnerID, Quantity: qty}
		sum += qty
	}

	// The exact-sum invariant holds regardless of model output quality: a
	// drifted sum is corrected by re-apportioning with the adjusted values
	// as weights.
	if sum != item.TotalQuantity {
		weights := make([]float64, len(final))
		for j, share := range final {
			weights[j] = float64(share.Quantity)
		}
		corrected := apportion.Shares(item.TotalQuantity, weights)
		for j := range final {
			final[j].Quantity = corrected[j]
		}
	}

	suggestion.Final = final
}
