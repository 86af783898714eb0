package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookshelf/internal/service"
)

type RecommendationHandler struct {
	recs   *service.RecommendationService
	logger *slog.Logger
}

func NewRecommendationHandler(recs *service.RecommendationService, logger *slog.Logger) *RecommendationHandler {
	return &RecommendationHandler{recs: recs, logger: logger}
}

// HandleRecommend lists books related to the one in the URL.
//
// HTTP: GET /recommendations/{bookId}?limit=5
// RESPONSE: a bare JSON array, [] when nothing matches.
func (h *RecommendationHandler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	limit, err := positiveQueryInt(r, "limit")
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	books, err := h.recs.Recommend(r.Context(), chi.URLParam(r, "bookId"), limit)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, books)
}
