package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// DonorOfferState mirrors the lifecycle states of a donor offer.
type DonorOfferState string

const (
	DonorOfferUnfinalized DonorOfferState = "UNFINALIZED"
	DonorOfferFinalized   DonorOfferState = "FINALIZED"
	DonorOfferArchived    DonorOfferState = "ARCHIVED"
)

// AllocationRequest is one partner's requested quantity against a general item.
type AllocationRequest struct {
	PartnerID int64
	Quantity  int64
}

// AllocationShare is one partner's allocated whole-unit share. For a given
// item the shares sum exactly to the item's total quantity.
type AllocationShare struct {
	PartnerID int64 `json:"partnerId"`
	Quantity  int64 `json:"quantity"`
}

// AllocationItem is the per-item input to suggestion computation: a finite
// supply and the competing partner requests against it.
type AllocationItem struct {
	GeneralItemID int64
	Title         string
	UnitType      string
	TotalQuantity int64
	Requests      []AllocationRequest
}

// PartnerGlobalContext aggregates one partner's position across a whole
// allocation batch. Ephemeral, recomputed per batch.
type PartnerGlobalContext struct {
	PartnerID       int64
	NormalizedShare float64
	RequestCount    int
}

// ItemSuggestion pairs the deterministic baseline with the final suggested
// shares for one item. Baseline and Final list the same partners in the same
// order; on the fallback path they are equal.
type ItemSuggestion struct {
	GeneralItemID int64             `json:"generalItemId"`
	Title         string            `json:"title"`
	TotalQuantity int64             `json:"totalQuantity"`
	Baseline      []AllocationShare `json:"baseline"`
	Final         []AllocationShare `json:"final"`
}

// LineItemState is one line item's current partner assignment, if any.
// A slice of these forms the pre-preview snapshot.
type LineItemState struct {
	LineItemID    int64
	GeneralItemID int64
	PartnerID     *int64
}

// LineItemAssignment is one staged (line item, partner) suggestion pair.
type LineItemAssignment struct {
	LineItemID int64 `json:"lineItemId"`
	PartnerID  int64 `json:"partnerId"`
}

// AdjustmentPayload is the compact batch document submitted to the reasoning
// service.
type AdjustmentPayload struct {
	Items []AdjustmentItem `json:"items"`
}

// AdjustmentItem carries one item's supply and per-partner context.
type AdjustmentItem struct {
	GeneralItemID int64               `json:"generalItemId"`
	Title         string              `json:"title"`
	Type          string              `json:"type"`
	TotalQuantity int64               `json:"totalQuantity"`
	Requests      []AdjustmentContext `json:"requests"`
}

// AdjustmentContext is one partner's original request, baseline share, and
// cross-item context for a single item.
type AdjustmentContext struct {
	PartnerID          int64   `json:"partnerId"`
	Requested          int64   `json:"requested"`
	Baseline           int64   `json:"baseline"`
	GlobalShare        float64 `json:"globalShare"`
	GlobalRequestCount int     `json:"globalRequestCount"`
}

// AdjustmentResponse is the strict response schema expected back from the
// reasoning service.
type AdjustmentResponse struct {
	Items []AdjustmentResponseItem `json:"items"`
}

type AdjustmentResponseItem struct {
	Requests []AdjustedRequest `json:"requests"`
}

// AdjustedRequest is one partner's adjusted quantity. Quantity tolerates
// malformed values so a single bad field degrades to the baseline instead of
// failing the batch.
type AdjustedRequest struct {
	PartnerID int64         `json:"partnerId"`
	Quantity  LooseQuantity `json:"quantity"`
}

// LooseQuantity is a numeric field that records whether the incoming JSON
// value was actually numeric. Strings holding numbers are accepted; anything
// else unmarshals as not-ok rather than erroring.
type LooseQuantity struct {
	Value float64
	OK    bool
}

func (q *LooseQuantity) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		q.OK = false
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		q.Value = f
		q.OK = true
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			q.Value = f
			q.OK = true
			return nil
		}
	}

	q.OK = false
	return nil
}

// SuggestionAuditRecord is the document archived when a preview is kept.
type SuggestionAuditRecord struct {
	SessionID    string               `json:"sessionId"`
	DonorOfferID int64                `json:"donorOfferId"`
	KeptAt       time.Time            `json:"keptAt"`
	Pairs        []LineItemAssignment `json:"pairs"`
	AppliedCount int                  `json:"appliedCount"`
	FailureIndex *int                 `json:"failureIndex,omitempty"`
}
