package service

import (
	"context"
	"fmt"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
)

const (
	DefaultRecommendationLimit = 5
	MaxRecommendationLimit     = 20
)

// RecommendationService suggests books related to a given one.
type RecommendationService struct {
	books repository.BookRepository
}

func NewRecommendationService(books repository.BookRepository) *RecommendationService {
	return &RecommendationService{books: books}
}

// Recommend returns up to limit other books that share the source book's
// genre or author, newest first. limit 0 means the default; larger values
// are clamped to MaxRecommendationLimit.
func (s *RecommendationService) Recommend(ctx context.Context, bookID string, limit int) ([]model.Book, error) {
	switch {
	case limit < 0:
		return nil, apperror.ValidationFailed("limit", "limit must be a positive integer")
	case limit == 0:
		limit = DefaultRecommendationLimit
	case limit > MaxRecommendationLimit:
		limit = MaxRecommendationLimit
	}

	source, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, wrapUnlessApp("service/recommendation: getting book", err)
	}

	books, err := s.books.Related(ctx, source, limit)
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: finding related books: %w", err)
	}
	return nonNil(books), nil
}
