package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/service"
)

type MockSuggestionWorkflow struct {
	mock.Mock
}

func (m *MockSuggestionWorkflow) Preview(ctx context.Context, donorOfferID int64) (*service.PreviewResult, error) {
	args := m.Called(ctx, donorOfferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PreviewResult), args.Error(1)
}

func (m *MockSuggestionWorkflow) Keep(ctx context.Context, donorOfferID int64) (*service.CommitResult, error) {
	args := m.Called(ctx, donorOfferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CommitResult), args.Error(1)
}

func (m *MockSuggestionWorkflow) Undo(donorOfferID int64) error {
	args := m.Called(donorOfferID)
	return args.Error(0)
}

func suggestionRequest(t *testing.T, offerID, action string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/offers/"+offerID+"/suggestions/"+action, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("offerID", offerID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSuggestionHandler_Preview_Success(t *testing.T) {
	mockSvc := new(MockSuggestionWorkflow)
	handler := NewSuggestionHandler(mockSvc)

	mockSvc.On("Preview", mock.Anything, int64(7)).Return(&service.PreviewResult{
		SessionID: "sess-1",
		Suggestions: []domain.ItemSuggestion{
			{GeneralItemID: 1, Title: "Gauze pads", TotalQuantity: 3},
		},
		Assignments: []domain.LineItemAssignment{{LineItemID: 10, PartnerID: 100}},
		Changed:     []domain.LineItemAssignment{{LineItemID: 10, PartnerID: 100}},
	}, nil)

	w := httptest.NewRecorder()
	handler.Preview(w, suggestionRequest(t, "7", "preview"))

	assert.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Data PreviewResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "sess-1", result.Data.SessionID)
	require.Len(t, result.Data.Changed, 1)
	assert.Equal(t, int64(10), result.Data.Changed[0].LineItemID)
}

func TestSuggestionHandler_Preview_AlreadyInProgress(t *testing.T) {
	mockSvc := new(MockSuggestionWorkflow)
	handler := NewSuggestionHandler(mockSvc)

	mockSvc.On("Preview", mock.Anything, int64(7)).Return(nil, domain.ErrPreviewInProgress)

	w := httptest.NewRecorder()
	handler.Preview(w, suggestionRequest(t, "7", "preview"))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSuggestionHandler_Preview_UnknownOffer(t *testing.T) {
	mockSvc := new(MockSuggestionWorkflow)
	handler := NewSuggestionHandler(mockSvc)

	mockSvc.On("Preview", mock.Anything, int64(404)).Return(nil, domain.ErrDonorOfferNotFound)

	w := httptest.NewRecorder()
	handler.Preview(w, suggestionRequest(t, "404", "preview"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuggestionHandler_Preview_BadOfferID(t *testing.T) {
	handler := NewSuggestionHandler(new(MockSuggestionWorkflow))

	w := httptest.NewRecorder()
	handler.Preview(w, suggestionRequest(t, "abc", "preview"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestionHandler_Keep_Success(t *testing.T) {
	mockSvc := new(MockSuggestionWorkflow)
	handler := NewSuggestionHandler(mockSvc)

	mockSvc.On("Keep", mock.Anything, int64(7)).Return(&service.CommitResult{
		AppliedCount: 3,
		TotalChanged: 3,
	}, nil)

	w := httptest.NewRecorder()
	handler.Keep(w, suggestionRequest(t, "7", "keep"))

	assert.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Data KeepResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Data.AppliedCount)
	assert.Nil(t, result.Data.FirstFailureIndex)
}

func TestSuggestionHandler_Keep_PartialFailureReportsProgress(t *testing.T) {
	mockSvc := new(MockSuggestionWorkflow)
	handler := NewSuggestionHandler(mockSvc)

	idx := 1
	mockSvc.On("Keep", mock.Anything, int64(7)).Return(&service.CommitResult{
		AppliedCount:      1,
		TotalChanged:      3,
		FirstFailureIndex: &idx,
	}, assert.AnError)

	w := httptest.NewRecorder()
	handler.Keep(w, suggestionRequest(t, "7", "keep"))

	assert.Equal(t, http.StatusConflict, w.Code)

	var result KeepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.AppliedCount)
	require.NotNil(t, result.FirstFailureIndex)
	assert.Equal(t, 1, *result.FirstFailureIndex)
	assert.NotEmpty(t, result.Error)
}

func TestSuggestionHandler_Keep_NoActivePreview(t *testing.T) {
	mockSvc := new(MockSuggestionWorkflow)
	handler := NewSuggestionHandler(mockSvc)

	mockSvc.On("Keep", mock.Anything, int64(7)).Return(nil, domain.ErrNoActivePreview)

	w := httptest.NewRecorder()
	handler.Keep(w, suggestionRequest(t, "7", "keep"))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSuggestionHandler_Undo_Success(t *testing.T) {
	mockSvc := new(MockSuggestionWorkflow)
	handler := NewSuggestionHandler(mockSvc)

	mockSvc.On("Undo", int64(7)).Return(nil)

	w := httptest.NewRecorder()
	handler.Undo(w, suggestionRequest(t, "7", "undo"))

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestSuggestionHandler_Undo_NoActivePreview(t *testing.T) {
	mockSvc := new(MockSuggestionWorkflow)
	handler := NewSuggestionHandler(mockSvc)

	mockSvc.On("Undo", int64(7)).Return(domain.ErrNoActivePreview)

	w := httptest.NewRecorder()
	handler.Undo(w, suggestionRequest(t, "7", "undo"))

	assert.Equal(t, http.StatusConflict, w.Code)
}
