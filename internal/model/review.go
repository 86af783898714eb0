package model

import "time"

// Review is a single user's rating and comment on a book.
// Rating is always within [MinRating, MaxRating].
type Review struct {
	ID        string    `json:"id"        db:"id"`
	Rating    int       `json:"rating"    db:"rating"`
	Comment   string    `json:"comment"   db:"comment"`
	UserID    string    `json:"userId"    db:"user_id"`
	BookID    string    `json:"bookId"    db:"book_id"`
	User      UserRef   `json:"user"      db:"-"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

const (
	MinRating = 1
	MaxRating = 5
)

// RatingSummary breaks a book's reviews down by star count.
type RatingSummary struct {
	Average    float64 `json:"average"`
	Total      int     `json:"total"`
	OneStar    int     `json:"oneStar"`
	TwoStars   int     `json:"twoStars"`
	ThreeStars int     `json:"threeStars"`
	FourStars  int     `json:"fourStars"`
	FiveStars  int     `json:"fiveStars"`
}

// SummarizeRatings computes the mean and per-star counts of reviews.
// The average of zero reviews is 0.
func SummarizeRatings(reviews []Review) RatingSummary {
	var s RatingSummary
	sum := 0
	for _, r := range reviews {
		switch r.Rating {
		case 1:
			s.OneStar++
		case 2:
			s.TwoStars++
		case 3:
			s.ThreeStars++
		case 4:
			s.FourStars++
		case 5:
			s.FiveStars++
		}
		sum += r.Rating
		s.Total++
	}
	if s.Total > 0 {
		s.Average = float64(sum) / float64(s.Total)
	}
	return s
}
