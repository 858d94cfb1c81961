package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/api/handlers"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/service"
)

type MockEmbeddingService struct {
	mock.Mock
}

func (m *MockEmbeddingService) Add(ctx context.Context, items []service.ItemInput) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockEmbeddingService) Modify(ctx context.Context, items []service.ItemInput) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockEmbeddingService) Remove(ctx context.Context, input service.RemoveInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

type MockMatchSearchService struct {
	mock.Mock
}

func (m *MockMatchSearchService) TopKMatches(ctx context.Context, input service.TopKInput) ([][]*domain.MatchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]*domain.MatchResult), args.Error(1)
}

type MockReconcileService struct {
	mock.Mock
}

func (m *MockReconcileService) LoadDonorOfferEmbeddings(ctx context.Context, donorOfferID int64, cache *service.OfferEmbeddingCache) error {
	args := m.Called(ctx, donorOfferID, cache)
	return args.Error(0)
}

func (m *MockReconcileService) FindSimilarFromCache(ctx context.Context, donorOfferID int64, query string, cache *service.OfferEmbeddingCache, filter service.ReconcileFilter, cutoff float64) (*domain.CacheMatch, error) {
	args := m.Called(ctx, donorOfferID, query, cache, filter, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CacheMatch), args.Error(1)
}

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

func setupRouter() (http.Handler, *MockEmbeddingService, *MockMatchSearchService, *MockReconcileService, *MockSuggestionWorkflow) {
	embeddingSvc := new(MockEmbeddingService)
	searchSvc := new(MockMatchSearchService)
	reconcileSvc := new(MockReconcileService)
	suggestionSvc := new(MockSuggestionWorkflow)

	cfg := RouterConfig{
		EmbeddingHandler:  handlers.NewEmbeddingHandler(embeddingSvc),
		MatchHandler:      handlers.NewMatchHandler(searchSvc, reconcileSvc),
		SuggestionHandler: handlers.NewSuggestionHandler(suggestionSvc),
	}

	router := NewRouter(cfg)
	return router, embeddingSvc, searchSvc, reconcileSvc, suggestionSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_EmbeddingRoutes(t *testing.T) {
	router, embeddingSvc, _, _, _ := setupRouter()

	embeddingSvc.On("Add", mock.Anything, mock.Anything).Return(nil).Once()
	embeddingSvc.On("Modify", mock.Anything, mock.Anything).Return(nil).Once()
	embeddingSvc.On("Remove", mock.Anything, mock.Anything).Return(nil).Once()

	routes := []struct {
		method string
		body   string
		status int
	}{
		{http.MethodPost, `{"items":[{"title":"x","wishlistId":1}]}`, http.StatusCreated},
		{http.MethodPatch, `{"items":[{"title":"x","wishlistId":1}]}`, http.StatusOK},
		{http.MethodDelete, `{"wishlistIds":[1]}`, http.StatusOK},
	}

	for _, route := range routes {
		t.Run(route.method, func(t *testing.T) {
			req := httptest.NewRequest(route.method, "/embeddings", bytes.NewReader([]byte(route.body)))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, route.status, w.Code)
		})
	}

	embeddingSvc.AssertExpectations(t)
}

func TestRouter_SearchRoute(t *testing.T) {
	router, _, searchSvc, _, _ := setupRouter()

	searchSvc.On("TopKMatches", mock.Anything, mock.Anything).
		Return([][]*domain.MatchResult{{}}, nil)

	body := `{"queries":["antibiotics"]}`
	req := httptest.NewRequest(http.MethodPost, "/matches/search", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	searchSvc.AssertExpectations(t)
}

func TestRouter_ReconcileRoute_ExtractsOfferID(t *testing.T) {
	router, _, _, reconcileSvc, _ := setupRouter()

	reconcileSvc.On("LoadDonorOfferEmbeddings", mock.Anything, int64(42), mock.Anything).Return(nil)
	reconcileSvc.On("FindSimilarFromCache", mock.Anything, int64(42), "gauze", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	body := `{"rows":[{"query":"gauze"}]}`
	req := httptest.NewRequest(http.MethodPost, "/offers/42/reconcile/match", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	reconcileSvc.AssertExpectations(t)
}

func TestRouter_SuggestionRoutes(t *testing.T) {
	router, _, _, _, suggestionSvc := setupRouter()

	suggestionSvc.On("Preview", mock.Anything, int64(42)).Return(&service.PreviewResult{SessionID: "s"}, nil).Once()
	suggestionSvc.On("Keep", mock.Anything, int64(42)).Return(&service.CommitResult{}, nil).Once()
	suggestionSvc.On("Undo", int64(42)).Return(nil).Once()

	for _, action := range []string{"preview", "keep", "undo"} {
		t.Run(action, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/offers/42/suggestions/"+action, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
		})
	}

	suggestionSvc.AssertExpectations(t)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
