package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
)

// MockSuggestionRepo mocks the preview read side
type MockSuggestionRepo struct {
	mock.Mock
}

func (m *MockSuggestionRepo) OfferAllocationItems(ctx context.Context, donorOfferID int64) ([]domain.AllocationItem, error) {
	args := m.Called(ctx, donorOfferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AllocationItem), args.Error(1)
}

func (m *MockSuggestionRepo) OfferLineItemStates(ctx context.Context, donorOfferID int64) ([]domain.LineItemState, error) {
	args := m.Called(ctx, donorOfferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LineItemState), args.Error(1)
}

// MockAllocationCommitRepo mocks the transactional write side
type MockAllocationCommitRepo struct {
	mock.Mock
}

func (m *MockAllocationCommitRepo) ReleaseAllocation(ctx context.Context, lineItemID int64) error {
	args := m.Called(ctx, lineItemID)
	return args.Error(0)
}

func (m *MockAllocationCommitRepo) EnsurePendingDistribution(ctx context.Context, partnerID int64) (int64, error) {
	args := m.Called(ctx, partnerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAllocationCommitRepo) CreateAllocation(ctx context.Context, lineItemID, partnerID, distributionID int64) error {
	args := m.Called(ctx, lineItemID, partnerID, distributionID)
	return args.Error(0)
}

// MockRefiner mocks the share computation
type MockRefiner struct {
	mock.Mock
}

func (m *MockRefiner) Refine(ctx context.Context, items []domain.AllocationItem) ([]domain.ItemSuggestion, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ItemSuggestion), args.Error(1)
}

// MockAuditArchiver mocks the commit audit sink
type MockAuditArchiver struct {
	mock.Mock
}

func (m *MockAuditArchiver) ArchiveSuggestionCommit(ctx context.Context, record domain.SuggestionAuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// fakeTxRunner hands the mocked commit repo straight to fn. Transaction
// semantics are exercised in the repository integration tests.
type fakeTxRunner struct {
	alloc AllocationCommitRepository
}

func (f *fakeTxRunner) Allocations() AllocationCommitRepository { return f.alloc }

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	return fn(f)
}

// previewFixture: one item with three line items, line item 11 already held
// by partner 200, and shares that move everything to partners 100/200.
func previewFixture(repo *MockSuggestionRepo, refiner *MockRefiner, offerID int64) {
	repo.On("OfferLineItemStates", mock.Anything, offerID).Return([]domain.LineItemState{
		{LineItemID: 10, GeneralItemID: 1},
		{LineItemID: 11, GeneralItemID: 1, PartnerID: int64Ptr(200)},
		{LineItemID: 12, GeneralItemID: 1},
	}, nil)
	repo.On("OfferAllocationItems", mock.Anything, offerID).Return([]domain.AllocationItem{
		{
			GeneralItemID: 1,
			Title:         "Gauze pads",
			TotalQuantity: 3,
			Requests: []domain.AllocationRequest{
				{PartnerID: 100, Quantity: 2},
				{PartnerID: 200, Quantity: 1},
			},
		},
	}, nil)

	shares := []domain.AllocationShare{
		{PartnerID: 100, Quantity: 2},
		{PartnerID: 200, Quantity: 1},
	}
	refiner.On("Refine", mock.Anything, mock.Anything).Return([]domain.ItemSuggestion{
		{GeneralItemID: 1, Title: "Gauze pads", TotalQuantity: 3, Baseline: shares, Final: shares},
	}, nil)
}

func TestSuggestionService_Preview_StagesWithoutWriting(t *testing.T) {
	mockRepo := new(MockSuggestionRepo)
	mockRefiner := new(MockRefiner)
	mockAlloc := new(MockAllocationCommitRepo)
	svc := NewSuggestionService(mockRepo, &fakeTxRunner{alloc: mockAlloc}, mockRefiner, nil)

	previewFixture(mockRepo, mockRefiner, 7)

	result, err := svc.Preview(context.Background(), 7)

	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
	// partner 100 claims line items 10 and 11 in order, partner 200 gets 12
	assert.Equal(t, []domain.LineItemAssignment{
		{LineItemID: 10, PartnerID: 100},
		{LineItemID: 11, PartnerID: 100},
		{LineItemID: 12, PartnerID: 200},
	}, result.Assignments)
	assert.Equal(t, result.Assignments, result.Changed)

	mockAlloc.AssertNotCalled(t, "ReleaseAllocation")
	mockAlloc.AssertNotCalled(t, "CreateAllocation")
}

func TestSuggestionService_Preview_UnchangedPairsExcluded(t *testing.T) {
	mockRepo := new(MockSuggestionRepo)
	mockRefiner := new(MockRefiner)
	svc := NewSuggestionService(mockRepo, &fakeTxRunner{}, mockRefiner, nil)

	mockRepo.On("OfferLineItemStates", mock.Anything, int64(7)).Return([]domain.LineItemState{
		{LineItemID: 10, GeneralItemID: 1, PartnerID: int64Ptr(100)},
		{LineItemID: 11, GeneralItemID: 1},
	}, nil)
	mockRepo.On("OfferAllocationItems", mock.Anything, int64(7)).Return([]domain.AllocationItem{
		{GeneralItemID: 1, TotalQuantity: 2, Requests: []domain.AllocationRequest{{PartnerID: 100, Quantity: 2}}},
	}, nil)
	shares := []domain.AllocationShare{{PartnerID: 100, Quantity: 2}}
	mockRefiner.On("Refine", mock.Anything, mock.Anything).Return([]domain.ItemSuggestion{
		{GeneralItemID: 1, TotalQuantity: 2, Baseline: shares, Final: shares},
	}, nil)

	result, err := svc.Preview(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, result.Assignments, 2)
	// line item 10 keeps its partner, so only 11 would change
	assert.Equal(t, []domain.LineItemAssignment{{LineItemID: 11, PartnerID: 100}}, result.Changed)
}

func TestSuggestionService_Preview_SecondPreviewRejected(t *testing.T) {
	mockRepo := new(MockSuggestionRepo)
	mockRefiner := new(MockRefiner)
	svc := NewSuggestionService(mockRepo, &fakeTxRunner{}, mockRefiner, nil)

	previewFixture(mockRepo, mockRefiner, 7)

	_, err := svc.Preview(context.Background(), 7)
	require.NoError(t, err)

	_, err = svc.Preview(context.Background(), 7)
	assert.Equal(t, domain.ErrPreviewInProgress, err)
}

func TestSuggestionService_Preview_UnknownOffer(t *testing.T) {
	mockRepo := new(MockSuggestionRepo)
	svc := NewSuggestionService(mockRepo, &fakeTxRunner{}, new(MockRefiner), nil)

	mockRepo.On("OfferLineItemStates", mock.Anything, int64(404)).Return([]domain.LineItemState{}, nil)
	mockRepo.On("OfferAllocationItems", mock.Anything, int64(404)).Return([]domain.AllocationItem{}, nil)

	_, err := svc.Preview(context.Background(), 404)

	assert.Equal(t, domain.ErrDonorOfferNotFound, err)
}

func TestSuggestionService_Keep_CommitsChangedPairs(t *testing.T) {
	mockRepo := new(MockSuggestionRepo)
	mockRefiner := new(MockRefiner)
	mockAlloc := new(MockAllocationCommitRepo)
	svc := NewSuggestionService(mockRepo, &fakeTxRunner{alloc: mockAlloc}, mockRefiner, nil)

	previewFixture(mockRepo, mockRefiner, 7)
	_, err := svc.Preview(context.Background(), 7)
	require.NoError(t, err)

	ctx := context.Background()
	// line item 11 was held by partner 200 and must be released first
	mockAlloc.On("ReleaseAllocation", ctx, int64(11)).Return(nil).Once()
	mockAlloc.On("EnsurePendingDistribution", ctx, int64(100)).Return(int64(500), nil).Twice()
	mockAlloc.On("EnsurePendingDistribution", ctx, int64(200)).Return(int64(501), nil).Once()
	mockAlloc.On("CreateAllocation", ctx, int64(10), int64(100), int64(500)).Return(nil).Once()
	mockAlloc.On("CreateAllocation", ctx, int64(11), int64(100), int64(500)).Return(nil).Once()
	mockAlloc.On("CreateAllocation", ctx, int64(12), int64(200), int64(501)).Return(nil).Once()

	result, err := svc.Keep(ctx, 7)

	require.NoError(t, err)
	assert.Equal(t, 3, result.AppliedCount)
	assert.Equal(t, 3, result.TotalChanged)
	assert.Nil(t, result.FirstFailureIndex)
	mockAlloc.AssertExpectations(t)

	// session is consumed: a fresh preview is allowed again
	_, err = svc.Preview(ctx, 7)
	assert.NoError(t, err)
}

func TestSuggestionService_Keep_StopsAtFirstFailure(t *testing.T) {
	mockRepo := new(MockSuggestionRepo)
	mockRefiner := new(MockRefiner)
	mockAlloc := new(MockAllocationCommitRepo)
	mockArchiver := new(MockAuditArchiver)
	svc := NewSuggestionService(mockRepo, &fakeTxRunner{alloc: mockAlloc}, mockRefiner, mockArchiver)

	previewFixture(mockRepo, mockRefiner, 7)
	_, err := svc.Preview(context.Background(), 7)
	require.NoError(t, err)

	ctx := context.Background()
	mockAlloc.On("EnsurePendingDistribution", ctx, int64(100)).Return(int64(500), nil)
	mockAlloc.On("CreateAllocation", ctx, int64(10), int64(100), int64(500)).Return(nil)
	mockAlloc.On("ReleaseAllocation", ctx, int64(11)).Return(errors.New("deadlock"))

	mockArchiver.On("ArchiveSuggestionCommit", ctx, mock.MatchedBy(func(r domain.SuggestionAuditRecord) bool {
		return r.DonorOfferID == 7 && r.AppliedCount == 1 &&
			r.FailureIndex != nil && *r.FailureIndex == 1
	})).Return(nil)

	result, err := svc.Keep(ctx, 7)

	require.Error(t, err)
	assert.Equal(t, 1, result.AppliedCount)
	assert.Equal(t, 3, result.TotalChanged)
	require.NotNil(t, result.FirstFailureIndex)
	assert.Equal(t, 1, *result.FirstFailureIndex)
	mockAlloc.AssertNotCalled(t, "CreateAllocation", ctx, int64(12), int64(200), mock.Anything)
	mockArchiver.AssertExpectations(t)
}

func TestSuggestionService_Keep_WithoutPreview(t *testing.T) {
	svc := NewSuggestionService(new(MockSuggestionRepo), &fakeTxRunner{}, new(MockRefiner), nil)

	_, err := svc.Keep(context.Background(), 7)

	assert.Equal(t, domain.ErrNoActivePreview, err)
}

func TestSuggestionService_Undo_DiscardsSessionWithoutWriting(t *testing.T) {
	mockRepo := new(MockSuggestionRepo)
	mockRefiner := new(MockRefiner)
	mockAlloc := new(MockAllocationCommitRepo)
	svc := NewSuggestionService(mockRepo, &fakeTxRunner{alloc: mockAlloc}, mockRefiner, nil)

	previewFixture(mockRepo, mockRefiner, 7)
	_, err := svc.Preview(context.Background(), 7)
	require.NoError(t, err)

	require.NoError(t, svc.Undo(7))

	mockAlloc.AssertNotCalled(t, "ReleaseAllocation")
	mockAlloc.AssertNotCalled(t, "EnsurePendingDistribution")
	mockAlloc.AssertNotCalled(t, "CreateAllocation")

	// undone session frees the offer for a fresh preview but not a keep
	_, err = svc.Keep(context.Background(), 7)
	assert.Equal(t, domain.ErrNoActivePreview, err)
	_, err = svc.Preview(context.Background(), 7)
	assert.NoError(t, err)
}

func TestSuggestionService_Undo_WithoutPreview(t *testing.T) {
	svc := NewSuggestionService(new(MockSuggestionRepo), &fakeTxRunner{}, new(MockRefiner), nil)

	assert.Equal(t, domain.ErrNoActivePreview, svc.Undo(7))
}

func TestSuggestionService_Keep_ArchivesSuccessfulCommit(t *testing.T) {
	mockRepo := new(MockSuggestionRepo)
	mockRefiner := new(MockRefiner)
	mockAlloc := new(MockAllocationCommitRepo)
	mockArchiver := new(MockAuditArchiver)
	svc := NewSuggestionService(mockRepo, &fakeTxRunner{alloc: mockAlloc}, mockRefiner, mockArchiver)

	previewFixture(mockRepo, mockRefiner, 7)
	preview, err := svc.Preview(context.Background(), 7)
	require.NoError(t, err)

	ctx := context.Background()
	mockAlloc.On("ReleaseAllocation", ctx, mock.Anything).Return(nil)
	mockAlloc.On("EnsurePendingDistribution", ctx, mock.Anything).Return(int64(500), nil)
	mockAlloc.On("CreateAllocation", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	mockArchiver.On("ArchiveSuggestionCommit", ctx, mock.MatchedBy(func(r domain.SuggestionAuditRecord) bool {
		return r.SessionID == preview.SessionID && r.AppliedCount == 3 &&
			r.FailureIndex == nil && len(r.Pairs) == 3
	})).Return(nil)

	_, err = svc.Keep(ctx, 7)

	require.NoError(t, err)
	mockArchiver.AssertExpectations(t)
}
