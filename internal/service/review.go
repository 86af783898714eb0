package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
	"github.com/sakif/bookshelf/internal/validation"
)

// CreateReviewInput carries a new review. BookID comes from the URL or the
// request body, depending on the route.
type CreateReviewInput struct {
	BookID  string `json:"bookId"  validate:"required"`
	Rating  int    `json:"rating"  validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"required,notblank,max=5000"`
}

// UpdateReviewInput is a partial update; nil fields are left untouched.
type UpdateReviewInput struct {
	Rating  *int    `json:"rating"  validate:"omitnil,gte=1,lte=5"`
	Comment *string `json:"comment" validate:"omitnil,notblank,max=5000"`
}

// ReviewService handles business logic for reviews.
type ReviewService struct {
	reviews   repository.ReviewRepository
	books     repository.BookRepository
	validator *validation.Validator
	logger    *slog.Logger
}

// NewReviewService creates a ReviewService.
func NewReviewService(
	reviews repository.ReviewRepository,
	books repository.BookRepository,
	validator *validation.Validator,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		reviews:   reviews,
		books:     books,
		validator: validator,
		logger:    logger,
	}
}

// Create adds the caller's review to a book.
//
// Input is checked before the book lookup, so a bad rating on a missing
// book is a 400, not a 404.
func (s *ReviewService) Create(ctx context.Context, id auth.Identity, in CreateReviewInput) (*model.Review, error) {
	if id.UserID == "" {
		return nil, apperror.Unauthenticated("authorization token required")
	}

	in.BookID = strings.TrimSpace(in.BookID)
	in.Comment = strings.TrimSpace(in.Comment)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	if _, err := s.books.GetBook(ctx, in.BookID); err != nil {
		return nil, wrapUnlessApp("service/review: getting book", err)
	}

	review := &model.Review{
		Rating:  in.Rating,
		Comment: in.Comment,
		UserID:  id.UserID,
		BookID:  in.BookID,
	}
	if err := s.reviews.CreateReview(ctx, review); err != nil {
		return nil, wrapUnlessApp("service/review: creating review", err)
	}

	s.logger.Info("review created",
		slog.String("reviewID", review.ID),
		slog.String("bookID", review.BookID),
		slog.String("userID", id.UserID),
	)

	// Read back so the response carries the author's name.
	return s.reviews.GetReview(ctx, review.ID)
}

// Update changes the caller's review. Only the author or an admin may.
func (s *ReviewService) Update(ctx context.Context, id auth.Identity, reviewID string, in UpdateReviewInput) (*model.Review, error) {
	in.Comment = trimPtr(in.Comment)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	review, err := s.authorize(ctx, id, reviewID)
	if err != nil {
		return nil, err
	}
	if in.Rating == nil && in.Comment == nil {
		return review, nil
	}

	updated, err := s.reviews.UpdateReview(ctx, reviewID, repository.ReviewUpdate{
		Rating:  in.Rating,
		Comment: in.Comment,
	})
	if err != nil {
		return nil, wrapUnlessApp("service/review: updating review", err)
	}

	s.logger.Info("review updated",
		slog.String("reviewID", reviewID),
		slog.String("userID", id.UserID),
	)
	return updated, nil
}

// Delete removes the caller's review. Only the author or an admin may.
func (s *ReviewService) Delete(ctx context.Context, id auth.Identity, reviewID string) error {
	if _, err := s.authorize(ctx, id, reviewID); err != nil {
		return err
	}
	if err := s.reviews.DeleteReview(ctx, reviewID); err != nil {
		return wrapUnlessApp("service/review: deleting review", err)
	}

	s.logger.Info("review deleted",
		slog.String("reviewID", reviewID),
		slog.String("userID", id.UserID),
	)
	return nil
}

// ListByBook returns a book's reviews, newest first. Fails with
// apperror.ErrNotFound for an unknown book.
func (s *ReviewService) ListByBook(ctx context.Context, bookID string) ([]model.Review, error) {
	if _, err := s.books.GetBook(ctx, bookID); err != nil {
		return nil, wrapUnlessApp("service/review: getting book", err)
	}
	reviews, err := s.reviews.ListReviewsByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("service/review: listing reviews for %s: %w", bookID, err)
	}
	return nonNil(reviews), nil
}

// ListByUser returns the reviews a user has written, newest first.
func (s *ReviewService) ListByUser(ctx context.Context, userID string) ([]model.Review, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated("authorization token required")
	}
	reviews, err := s.reviews.ListReviewsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/review: listing reviews by %s: %w", userID, err)
	}
	return nonNil(reviews), nil
}

func (s *ReviewService) authorize(ctx context.Context, id auth.Identity, reviewID string) (*model.Review, error) {
	if id.UserID == "" {
		return nil, apperror.Unauthenticated("authorization token required")
	}
	review, err := s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		return nil, wrapUnlessApp("service/review: getting review", err)
	}
	if !id.CanModify(review.UserID) {
		return nil, apperror.Forbidden("only the review's author or an admin can change it")
	}
	return review, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
