package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/service"
)

// ReviewHandler serves review creation, editing and deletion.
type ReviewHandler struct {
	reviews *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a ReviewHandler.
func NewReviewHandler(reviews *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

// ReviewResponse wraps a single review.
type ReviewResponse struct {
	Message string        `json:"message,omitempty"`
	Review  *model.Review `json:"review"`
}

// reviewBody is the wire shape of a new review. Older clients send the
// text as "content"; "comment" wins when both are present.
type reviewBody struct {
	BookID  string `json:"bookId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
	Content string `json:"content"`
}

type reviewPatch struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
	Content *string `json:"content"`
}

// HandleCreateForBook adds the caller's review to the book in the URL.
//
// HTTP: POST /books/{id}/reviews
// Auth: Required
// REQUEST BODY: {"rating": 5, "comment": "loved it"}
func (h *ReviewHandler) HandleCreateForBook(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, chi.URLParam(r, "id"))
}

// HandleCreate adds the caller's review to the book named in the body.
//
// HTTP: POST /reviews
// Auth: Required
// REQUEST BODY: {"bookId": "...", "rating": 5, "comment": "loved it"}
func (h *ReviewHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, "")
}

func (h *ReviewHandler) create(w http.ResponseWriter, r *http.Request, bookID string) {
	var body reviewBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	if bookID == "" {
		bookID = body.BookID
	}
	comment := body.Comment
	if comment == "" {
		comment = body.Content
	}

	id, _ := auth.IdentityFromContext(r.Context())
	review, err := h.reviews.Create(r.Context(), id, service.CreateReviewInput{
		BookID:  bookID,
		Rating:  body.Rating,
		Comment: comment,
	})
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, ReviewResponse{Message: "review created successfully", Review: review})
}

// HandleUpdate applies a partial update to a review.
//
// HTTP: PUT /reviews/{id}
// Auth: Required (author or admin)
func (h *ReviewHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch reviewPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	comment := patch.Comment
	if comment == nil {
		comment = patch.Content
	}

	id, _ := auth.IdentityFromContext(r.Context())
	review, err := h.reviews.Update(r.Context(), id, chi.URLParam(r, "id"), service.UpdateReviewInput{
		Rating:  patch.Rating,
		Comment: comment,
	})
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, ReviewResponse{Message: "review updated successfully", Review: review})
}

// HandleDelete removes a review.
//
// HTTP: DELETE /reviews/{id}
// Auth: Required (author or admin)
func (h *ReviewHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	if err := h.reviews.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, MessageResponse{Message: "review deleted successfully"})
}

// HandleListMine returns the caller's reviews, newest first.
//
// HTTP: GET /users/me/reviews
// Auth: Required
func (h *ReviewHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	reviews, err := h.reviews.ListByUser(r.Context(), id.UserID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, ReviewListResponse{Reviews: reviews})
}
