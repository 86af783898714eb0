// Package repository declares the storage contracts the service layer
// depends on. Implementations live in subpackages (sqlstore).
package repository

import (
	"context"

	"github.com/sakif/bookshelf/internal/model"
)

// Sort fields accepted by BookRepository.List.
const (
	SortCreatedAt     = "createdAt"
	SortUpdatedAt     = "updatedAt"
	SortTitle         = "title"
	SortAuthor        = "author"
	SortGenre         = "genre"
	SortISBN          = "isbn"
	SortAverageRating = "averageRating"
	SortReviewCount   = "reviewCount"
)

// SortFields lists every accepted sort key.
var SortFields = []string{
	SortCreatedAt, SortUpdatedAt, SortTitle, SortAuthor,
	SortGenre, SortISBN, SortAverageRating, SortReviewCount,
}

// BookFilter narrows a listing. Empty fields match everything; non-empty
// fields are case-insensitive substring matches.
type BookFilter struct {
	Genre  string
	Author string
	Title  string
	UserID string // exact match on the creator; used for "my books"
}

// ListOptions controls ordering and paging. Callers pass already-validated
// values; Limit > 0 and Offset >= 0.
type ListOptions struct {
	SortBy    string
	Ascending bool
	Limit     int
	Offset    int
}

// BookUpdate is a partial update: nil fields are left untouched.
type BookUpdate struct {
	Title       *string
	Author      *string
	ISBN        *string
	Genre       *string
	Description *string
	CoverImage  *string
}

// ReviewUpdate is a partial update: nil fields are left untouched.
type ReviewUpdate struct {
	Rating  *int
	Comment *string
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type BookRepository interface {
	CreateBook(ctx context.Context, book *model.Book) error
	GetBook(ctx context.Context, id string) (*model.Book, error)
	ListBooks(ctx context.Context, filter BookFilter, opts ListOptions) ([]model.Book, int, error)
	UpdateBook(ctx context.Context, id string, upd BookUpdate) (*model.Book, error)
	DeleteBook(ctx context.Context, id string) error
	// Related returns books sharing genre or author with the given book,
	// excluding the book itself.
	Related(ctx context.Context, book *model.Book, limit int) ([]model.Book, error)
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, review *model.Review) error
	GetReview(ctx context.Context, id string) (*model.Review, error)
	ListReviewsByBook(ctx context.Context, bookID string) ([]model.Review, error)
	ListReviewsByUser(ctx context.Context, userID string) ([]model.Review, error)
	UpdateReview(ctx context.Context, id string, upd ReviewUpdate) (*model.Review, error)
	DeleteReview(ctx context.Context, id string) error
}
