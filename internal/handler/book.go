package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/service"
)

// BookHandler serves the catalogue endpoints.
type BookHandler struct {
	books   *service.BookService
	reviews *service.ReviewService
	logger  *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(books *service.BookService, reviews *service.ReviewService, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		books:   books,
		reviews: reviews,
		logger:  logger,
	}
}

// BookResponse wraps a single book.
type BookResponse struct {
	Message string      `json:"message,omitempty"`
	Book    *model.Book `json:"book"`
}

// BookDetailResponse wraps a book together with its reviews.
type BookDetailResponse struct {
	Book *model.BookDetail `json:"book"`
}

// ReviewListResponse wraps a list of reviews.
type ReviewListResponse struct {
	Reviews []model.Review `json:"reviews"`
}

// HandleList returns one page of the catalogue.
//
// HTTP: GET /books?page=1&limit=10&genre=&author=&title=&sortBy=createdAt&order=desc
// RESPONSE: {"books": [...], "page": 1, "limit": 10, "totalPages": 3, "totalBooks": 25}
func (h *BookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	page, err := h.books.List(r.Context(), q)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, page)
}

// HandleListMine returns one page of the caller's own books.
//
// HTTP: GET /users/me/books
// Auth: Required
func (h *BookHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	page, err := h.books.ListByUser(r.Context(), id.UserID, q)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, page)
}

// HandleGet returns one book with its reviews, newest first.
//
// HTTP: GET /books/{id}
func (h *BookHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.books.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, BookDetailResponse{Book: detail})
}

// HandleCreate adds a book owned by the caller.
//
// HTTP: POST /books
// Auth: Required
// REQUEST BODY: {"title": "T", "author": "Au", "isbn": "123", "genre": "SF"}
func (h *BookHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBookInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	book, err := h.books.Create(r.Context(), id, in)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, BookResponse{Message: "book created successfully", Book: book})
}

// HandleUpdate applies a partial update to a book.
//
// HTTP: PUT /books/{id}
// Auth: Required (creator or admin)
func (h *BookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateBookInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	book, err := h.books.Update(r.Context(), id, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, BookResponse{Message: "book updated successfully", Book: book})
}

// HandleDelete removes a book and all of its reviews.
//
// HTTP: DELETE /books/{id}
// Auth: Required (creator or admin)
func (h *BookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	if err := h.books.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, MessageResponse{Message: "book deleted successfully"})
}

// HandleListReviews returns a book's reviews, newest first.
//
// HTTP: GET /books/{id}/reviews
func (h *BookHandler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.ListByBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, ReviewListResponse{Reviews: reviews})
}

func listQuery(r *http.Request) (service.ListBooksQuery, error) {
	page, err := positiveQueryInt(r, "page")
	if err != nil {
		return service.ListBooksQuery{}, err
	}
	limit, err := positiveQueryInt(r, "limit")
	if err != nil {
		return service.ListBooksQuery{}, err
	}

	v := r.URL.Query()
	return service.ListBooksQuery{
		Page:   page,
		Limit:  limit,
		Genre:  v.Get("genre"),
		Author: v.Get("author"),
		Title:  v.Get("title"),
		SortBy: v.Get("sortBy"),
		Order:  v.Get("order"),
	}, nil
}
