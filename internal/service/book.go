// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain Go values and an auth.Identity, never *http.Request,
// so the same rules apply to every caller. They return apperror values that
// the handler layer translates to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
	"github.com/sakif/bookshelf/internal/validation"
)

// Paging limits for book listings.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// ListBooksQuery selects one page of the catalogue.
//
// Zero Page and Limit mean "use the default". A Limit above MaxPageLimit is
// clamped rather than rejected.
type ListBooksQuery struct {
	Page   int    `json:"page"   validate:"gte=0,lte=1000000"`
	Limit  int    `json:"limit"  validate:"gte=0"`
	Genre  string `json:"genre"  validate:"max=100"`
	Author string `json:"author" validate:"max=200"`
	Title  string `json:"title"  validate:"max=200"`
	SortBy string `json:"sortBy" validate:"omitempty,oneof=createdAt updatedAt title author genre isbn averageRating reviewCount"`
	Order  string `json:"order"  validate:"omitempty,oneof=asc desc"`
}

// CreateBookInput is the body of POST /books.
type CreateBookInput struct {
	Title       string `json:"title"       validate:"required,notblank,max=200"`
	Author      string `json:"author"      validate:"required,notblank,max=200"`
	ISBN        string `json:"isbn"        validate:"required,notblank,max=32"`
	Genre       string `json:"genre"       validate:"required,notblank,max=100"`
	Description string `json:"description" validate:"max=5000"`
	CoverImage  string `json:"coverImage"  validate:"omitempty,http_url,max=2048"`
}

// UpdateBookInput is the body of PUT /books/{id}. Absent (nil) fields are
// left untouched; a present required field may not be blank.
type UpdateBookInput struct {
	Title       *string `json:"title"       validate:"omitnil,notblank,max=200"`
	Author      *string `json:"author"      validate:"omitnil,notblank,max=200"`
	ISBN        *string `json:"isbn"        validate:"omitnil,notblank,max=32"`
	Genre       *string `json:"genre"       validate:"omitnil,notblank,max=100"`
	Description *string `json:"description" validate:"omitnil,max=5000"`
	CoverImage  *string `json:"coverImage"  validate:"omitempty,http_url,max=2048"`
}

func (in UpdateBookInput) empty() bool {
	return in.Title == nil && in.Author == nil && in.ISBN == nil &&
		in.Genre == nil && in.Description == nil && in.CoverImage == nil
}

// BookService handles business logic for the catalogue.
type BookService struct {
	books     repository.BookRepository
	reviews   repository.ReviewRepository
	validator *validation.Validator
	logger    *slog.Logger
}

// NewBookService creates a BookService.
func NewBookService(
	books repository.BookRepository,
	reviews repository.ReviewRepository,
	validator *validation.Validator,
	logger *slog.Logger,
) *BookService {
	return &BookService{
		books:     books,
		reviews:   reviews,
		validator: validator,
		logger:    logger,
	}
}

// List returns one page of books matching q.
func (s *BookService) List(ctx context.Context, q ListBooksQuery) (*model.BookPage, error) {
	return s.list(ctx, "", q)
}

// ListByUser returns one page of the books created by userID.
func (s *BookService) ListByUser(ctx context.Context, userID string, q ListBooksQuery) (*model.BookPage, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated("authorization token required")
	}
	return s.list(ctx, userID, q)
}

func (s *BookService) list(ctx context.Context, userID string, q ListBooksQuery) (*model.BookPage, error) {
	if err := s.validator.Validate(q); err != nil {
		return nil, err
	}

	page := q.Page
	if page == 0 {
		page = 1
	}
	limit := q.Limit
	switch {
	case limit == 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = repository.SortCreatedAt
	}

	filter := repository.BookFilter{
		Genre:  strings.TrimSpace(q.Genre),
		Author: strings.TrimSpace(q.Author),
		Title:  strings.TrimSpace(q.Title),
		UserID: userID,
	}
	opts := repository.ListOptions{
		SortBy:    sortBy,
		Ascending: q.Order == "asc",
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}

	books, total, err := s.books.ListBooks(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("service/book: listing books: %w", err)
	}
	if books == nil {
		books = []model.Book{}
	}

	return &model.BookPage{
		Books:      books,
		Page:       page,
		Limit:      limit,
		TotalPages: model.TotalPages(total, limit),
		TotalBooks: total,
	}, nil
}

// Create validates and stores a new book owned by the caller.
func (s *BookService) Create(ctx context.Context, id auth.Identity, in CreateBookInput) (*model.Book, error) {
	if id.UserID == "" {
		return nil, apperror.Unauthenticated("authorization token required")
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Description = strings.TrimSpace(in.Description)
	in.CoverImage = strings.TrimSpace(in.CoverImage)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	book := &model.Book{
		Title:       in.Title,
		Author:      in.Author,
		ISBN:        in.ISBN,
		Genre:       in.Genre,
		Description: in.Description,
		CoverImage:  in.CoverImage,
		UserID:      id.UserID,
	}
	if err := s.books.CreateBook(ctx, book); err != nil {
		return nil, wrapUnlessApp("service/book: creating book", err)
	}

	s.logger.Info("book created",
		slog.String("bookID", book.ID),
		slog.String("userID", id.UserID),
	)

	// Read back so the response carries the creator's name.
	return s.books.GetBook(ctx, book.ID)
}

// Get returns a book with its reviews, newest first.
func (s *BookService) Get(ctx context.Context, bookID string) (*model.BookDetail, error) {
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, wrapUnlessApp("service/book: getting book", err)
	}
	reviews, err := s.reviews.ListReviewsByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("service/book: listing reviews for %s: %w", bookID, err)
	}
	return model.NewBookDetail(*book, reviews), nil
}

// Update applies a partial update. Only the creator or an admin may do so.
func (s *BookService) Update(ctx context.Context, id auth.Identity, bookID string, in UpdateBookInput) (*model.Book, error) {
	in.Title = trimPtr(in.Title)
	in.Author = trimPtr(in.Author)
	in.ISBN = trimPtr(in.ISBN)
	in.Genre = trimPtr(in.Genre)
	in.Description = trimPtr(in.Description)
	in.CoverImage = trimPtr(in.CoverImage)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	book, err := s.authorize(ctx, id, bookID)
	if err != nil {
		return nil, err
	}
	if in.empty() {
		return book, nil
	}

	updated, err := s.books.UpdateBook(ctx, bookID, repository.BookUpdate{
		Title:       in.Title,
		Author:      in.Author,
		ISBN:        in.ISBN,
		Genre:       in.Genre,
		Description: in.Description,
		CoverImage:  in.CoverImage,
	})
	if err != nil {
		return nil, wrapUnlessApp("service/book: updating book", err)
	}

	s.logger.Info("book updated",
		slog.String("bookID", bookID),
		slog.String("userID", id.UserID),
	)
	return updated, nil
}

// Delete removes a book and its reviews. Only the creator or an admin may
// do so.
func (s *BookService) Delete(ctx context.Context, id auth.Identity, bookID string) error {
	if _, err := s.authorize(ctx, id, bookID); err != nil {
		return err
	}
	if err := s.books.DeleteBook(ctx, bookID); err != nil {
		return wrapUnlessApp("service/book: deleting book", err)
	}

	s.logger.Info("book deleted",
		slog.String("bookID", bookID),
		slog.String("userID", id.UserID),
	)
	return nil
}

// authorize loads the book and checks that the caller may mutate it.
// NotFound takes precedence over Forbidden.
func (s *BookService) authorize(ctx context.Context, id auth.Identity, bookID string) (*model.Book, error) {
	if id.UserID == "" {
		return nil, apperror.Unauthenticated("authorization token required")
	}
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, wrapUnlessApp("service/book: getting book", err)
	}
	if !id.CanModify(book.UserID) {
		return nil, apperror.Forbidden("only the book's creator or an admin can change it")
	}
	return book, nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// wrapUnlessApp passes apperror values through untouched, so handlers see
// the original message, and wraps everything else with context.
func wrapUnlessApp(msg string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
