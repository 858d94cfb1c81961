package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/api"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/api/handlers"
	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/api/middleware"
)

type RouterConfig struct {
	EmbeddingHandler  *handlers.EmbeddingHandler
	MatchHandler      *handlers.MatchHandler
	SuggestionHandler *handlers.SuggestionHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/embeddings", func(r chi.Router) {
		r.Post("/", cfg.EmbeddingHandler.Add)
		r.Patch("/", cfg.EmbeddingHandler.Modify)
		r.Delete("/", cfg.EmbeddingHandler.Remove)
	})

	r.Post("/matches/search", cfg.MatchHandler.Search)

	r.Route("/offers/{offerID}", func(r chi.Router) {
		r.Post("/reconcile/match", cfg.MatchHandler.ReconcileOffer)
		r.Route("/suggestions", func(r chi.Router) {
			r.Post("/preview", cfg.SuggestionHandler.Preview)
			r.Post("/keep", cfg.SuggestionHandler.Keep)
			r.Post("/undo", cfg.SuggestionHandler.Undo)
		})
	})

	return r
}
