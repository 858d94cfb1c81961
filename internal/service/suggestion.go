package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/telemetry"
)

// SuggestionRepository defines the read side used to build a preview.
type SuggestionRepository interface {
	OfferAllocationItems(ctx context.Context, donorOfferID int64) ([]domain.AllocationItem, error)
	OfferLineItemStates(ctx context.Context, donorOfferID int64) ([]domain.LineItemState, error)
}

// AllocationCommitRepository defines the write operations applied when a
// preview is kept.
type AllocationCommitRepository interface {
	ReleaseAllocation(ctx context.Context, lineItemID int64) error
	EnsurePendingDistribution(ctx context.Context, partnerID int64) (int64, error)
	CreateAllocation(ctx context.Context, lineItemID, partnerID, distributionID int64) error
}

// Refiner defines the interface for computing suggested shares.
type Refiner interface {
	Refine(ctx context.Context, items []domain.AllocationItem) ([]domain.ItemSuggestion, error)
}

// AuditArchiver records kept suggestion batches for later review.
type AuditArchiver interface {
	ArchiveSuggestionCommit(ctx context.Context, record domain.SuggestionAuditRecord) error
}

// PreviewResult is the staged view handed to the operator: the detailed
// suggestions plus the concrete line-item pairs that would change on keep.
type PreviewResult struct {
	SessionID   string
	Suggestions []domain.ItemSuggestion
	Assignments []domain.LineItemAssignment
	Changed     []domain.LineItemAssignment
}

// CommitResult reports how far a keep got. FirstFailureIndex is set when the
// sequential commit stopped partway so the operator can reconcile or retry
// the remainder.
type CommitResult struct {
	AppliedCount      int
	TotalChanged      int
	FirstFailureIndex *int
}

// suggestionSession holds the snapshot and staged view for one offer while it
// is being previewed. Nothing in it touches storage.
type suggestionSession struct {
	id        string
	offerID   int64
	snapshot  []domain.LineItemState
	staged    []domain.LineItemAssignment
	changed   []domain.LineItemAssignment
	createdAt time.Time
}

// SuggestionService runs the preview/keep/undo workflow. One preview session
// may exist per donor offer at a time; sessions live in memory only.
type SuggestionService struct {
	repo     SuggestionRepository
	tx       TxRunner
	refiner  Refiner
	archiver AuditArchiver

	mu       sync.Mutex
	sessions map[int64]*suggestionSession
}

// NewSuggestionService creates a new SuggestionService instance. The archiver
// may be nil when audit export is not configured.
func NewSuggestionService(repo SuggestionRepository, tx TxRunner, refiner Refiner, archiver AuditArchiver) *SuggestionService {
	return &SuggestionService{
		repo:     repo,
		tx:       tx,
		refiner:  refiner,
		archiver: archiver,
		sessions: make(map[int64]*suggestionSession),
	}
}

// Preview snapshots the offer's current allocation state, computes refined
// suggestions, and stages them without mutating storage.
func (s *SuggestionService) Preview(ctx context.Context, donorOfferID int64) (*PreviewResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SuggestionService.Preview", telemetry.SpanAttributes{
		DonorOfferID: strconv.FormatInt(donorOfferID, 10),
		Operation:    "preview",
	})
	defer span.End()

	s.mu.Lock()
	if _, exists := s.sessions[donorOfferID]; exists {
		s.mu.Unlock()
		return nil, domain.ErrPreviewInProgress
	}
	s.mu.Unlock()

	snapshot, err := s.repo.OfferLineItemStates(ctx, donorOfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot allocation state: %w", err)
	}
	items, err := s.repo.OfferAllocationItems(ctx, donorOfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation items: %w", err)
	}
	if len(items) == 0 {
		return nil, domain.ErrDonorOfferNotFound
	}

	suggestions, err := s.refiner.Refine(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("failed to compute suggestions: %w", err)
	}

	staged := stageAssignments(suggestions, snapshot)
	changed := changedPairs(staged, snapshot)

	session := &suggestionSession{
		id:        uuid.NewString(),
		offerID:   donorOfferID,
		snapshot:  snapshot,
		staged:    staged,
		changed:   changed,
		createdAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if _, exists := s.sessions[donorOfferID]; exists {
		s.mu.Unlock()
		return nil, domain.ErrPreviewInProgress
	}
	s.sessions[donorOfferID] = session
	s.mu.Unlock()

	return &PreviewResult{
		SessionID:   session.id,
		Suggestions: suggestions,
		Assignments: staged,
		Changed:     changed,
	}, nil
}

// Keep commits the staged pairs sequentially: release a differing existing
// allocation, ensure a pending distribution for the target partner, create
// the new allocation. Each pair commits atomically, but the sequence is
// best-effort: a failure stops the walk and earlier pairs stay committed.
func (s *SuggestionService) Keep(ctx context.Context, donorOfferID int64) (*CommitResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SuggestionService.Keep", telemetry.SpanAttributes{
		DonorOfferID: strconv.FormatInt(donorOfferID, 10),
		Operation:    "keep",
	})
	defer span.End()

	s.mu.Lock()
	session, ok := s.sessions[donorOfferID]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNoActivePreview
	}
	delete(s.sessions, donorOfferID)
	s.mu.Unlock()

	hadPartner := make(map[int64]bool, len(session.snapshot))
	for _, state := range session.snapshot {
		hadPartner[state.LineItemID] = state.PartnerID != nil
	}

	result := &CommitResult{TotalChanged: len(session.changed)}
	for i, pair := range session.changed {
		err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
			allocations := repos.Allocations()
			if hadPartner[pair.LineItemID] {
				if err := allocations.ReleaseAllocation(ctx, pair.LineItemID); err != nil {
					return fmt.Errorf("failed to release allocation: %w", err)
				}
			}
			distributionID, err := allocations.EnsurePendingDistribution(ctx, pair.PartnerID)
			if err != nil {
				return fmt.Errorf("failed to ensure pending distribution: %w", err)
			}
			if err := allocations.CreateAllocation(ctx, pair.LineItemID, pair.PartnerID, distributionID); err != nil {
				return fmt.Errorf("failed to create allocation: %w", err)
			}
			return nil
		})
		if err != nil {
			idx := i
			result.FirstFailureIndex = &idx
			s.archive(ctx, session, result)
			return result, fmt.Errorf("commit stopped at pair %d: %w", i, err)
		}
		result.AppliedCount++
	}

	s.archive(ctx, session, result)
	return result, nil
}

// Undo discards the staged view. Storage was never touched while previewing,
// so dropping the session restores the snapshot state by definition.
func (s *SuggestionService) Undo(donorOfferID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[donorOfferID]; !ok {
		return domain.ErrNoActivePreview
	}
	delete(s.sessions, donorOfferID)
	return nil
}

func (s *SuggestionService) archive(ctx context.Context, session *suggestionSession, result *CommitResult) {
	if s.archiver == nil {
		return
	}

	record := domain.SuggestionAuditRecord{
		SessionID:    session.id,
		DonorOfferID: session.offerID,
		KeptAt:       time.Now().UTC(),
		Pairs:        session.changed,
		AppliedCount: result.AppliedCount,
		FailureIndex: result.FirstFailureIndex,
	}
	if err := s.archiver.ArchiveSuggestionCommit(ctx, record); err != nil {
		log.Printf("failed to archive suggestion commit: %v", err)
	}
}

// stageAssignments converts item-level shares into per-line-item partner
// assignments. Line items are walked in snapshot order; a partner with a
// share of q claims the item's next q line items.
func stageAssignments(suggestions []domain.ItemSuggestion, snapshot []domain.LineItemState) []domain.LineItemAssignment {
	byItem := make(map[int64][]int64)
	for _, state := range snapshot {
		byItem[state.GeneralItemID] = append(byItem[state.GeneralItemID], state.LineItemID)
	}

	var staged []domain.LineItemAssignment
	for _, suggestion := range suggestions {
		lineItems := byItem[suggestion.GeneralItemID]
		cursor := 0
		for _, share := range suggestion.Final {
			for q := int64(0); q < share.Quantity && cursor < len(lineItems); q++ {
				staged = append(staged, domain.LineItemAssignment{
					LineItemID: lineItems[cursor],
					PartnerID:  share.PartnerID,
				})
				cursor++
			}
		}
	}
	return staged
}

// changedPairs filters staged assignments down to the ones that differ from
// the snapshot.
func changedPairs(staged []domain.LineItemAssignment, snapshot []domain.LineItemState) []domain.LineItemAssignment {
	current := make(map[int64]*int64, len(snapshot))
	for _, state := range snapshot {
		current[state.LineItemID] = state.PartnerID
	}

	changed := make([]domain.LineItemAssignment, 0, len(staged))
	for _, pair := range staged {
		existing := current[pair.LineItemID]
		if existing != nil && *existing == pair.PartnerID {
			continue
		}
		changed = append(changed, pair)
	}
	return changed
}
