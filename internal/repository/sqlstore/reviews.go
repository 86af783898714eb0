package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
)

var _ repository.ReviewRepository = (*Store)(nil)

const reviewSelect = `
SELECT r.id, r.rating, r.comment, r.user_id, r.book_id,
       COALESCE(u.name, '') AS user_name,
       r.created_at, r.updated_at
FROM reviews r
LEFT JOIN users u ON u.id = r.user_id`

type reviewRow struct {
	model.Review
	UserName string `db:"user_name"`
}

func (r reviewRow) toModel() model.Review {
	rv := r.Review
	rv.User = model.UserRef{ID: rv.UserID, Name: r.UserName}
	return rv
}

func toReviews(rows []reviewRow) []model.Review {
	reviews := make([]model.Review, 0, len(rows))
	for _, r := range rows {
		reviews = append(reviews, r.toModel())
	}
	return reviews
}

// CreateReview inserts a review. The book and user must exist; the foreign
// keys reject anything else and the failure comes back as
// apperror.ErrNotFound for whichever is missing.
func (s *Store) CreateReview(ctx context.Context, review *model.Review) error {
	now := time.Now().UTC()
	review.ID = xid.New().String()
	review.CreatedAt = now
	review.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO reviews (id, rating, comment, user_id, book_id, created_at, updated_at)
		 VALUES (:id, :rating, :comment, :user_id, :book_id, :created_at, :updated_at)`,
		review,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("review", "a review with this id already exists")
		}
		if isForeignKeyViolation(err) {
			return s.missingReviewReference(ctx, review)
		}
		return fmt.Errorf("sqlstore: creating review: %w", err)
	}
	return nil
}

// missingReviewReference names the row a failed review insert pointed at.
// Neither driver says which constraint fired, so the book is checked; if it
// is there, the user must be the one missing.
func (s *Store) missingReviewReference(ctx context.Context, review *model.Review) error {
	var exists int
	err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT 1 FROM books WHERE id = ?`), review.BookID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperror.NotFound("book", review.BookID)
	case err != nil:
		return fmt.Errorf("sqlstore: checking book %s: %w", review.BookID, err)
	default:
		return apperror.NotFound("user", review.UserID)
	}
}

// GetReview retrieves one review with its author's name.
// Returns apperror.ErrNotFound if no review exists with that id.
func (s *Store) GetReview(ctx context.Context, id string) (*model.Review, error) {
	var row reviewRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(reviewSelect+` WHERE r.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("review", id)
		}
		return nil, fmt.Errorf("sqlstore: getting review %s: %w", id, err)
	}
	rv := row.toModel()
	return &rv, nil
}

// ListReviewsByBook returns every review of a book, newest first.
// An unknown book yields an empty slice, not an error.
func (s *Store) ListReviewsByBook(ctx context.Context, bookID string) ([]model.Review, error) {
	var rows []reviewRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(reviewSelect+` WHERE r.book_id = ? ORDER BY r.created_at DESC, r.id DESC`), bookID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing reviews for book %s: %w", bookID, err)
	}
	return toReviews(rows), nil
}

// ListReviewsByUser returns every review written by a user, newest first.
func (s *Store) ListReviewsByUser(ctx context.Context, userID string) ([]model.Review, error) {
	var rows []reviewRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(reviewSelect+` WHERE r.user_id = ? ORDER BY r.created_at DESC, r.id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing reviews by user %s: %w", userID, err)
	}
	return toReviews(rows), nil
}

// UpdateReview applies the non-nil fields of upd and returns the result.
func (s *Store) UpdateReview(ctx context.Context, id string, upd repository.ReviewUpdate) (*model.Review, error) {
	var (
		sets []string
		args []any
	)
	if upd.Rating != nil {
		sets = append(sets, `rating = ?`)
		args = append(args, *upd.Rating)
	}
	if upd.Comment != nil {
		sets = append(sets, `comment = ?`)
		args = append(args, *upd.Comment)
	}
	sets = append(sets, `updated_at = ?`)
	args = append(args, time.Now().UTC(), id)

	result, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE reviews SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: updating review %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperror.NotFound("review", id)
	}

	return s.GetReview(ctx, id)
}

// DeleteReview removes a review.
func (s *Store) DeleteReview(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM reviews WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting review %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("review", id)
	}
	return nil
}
