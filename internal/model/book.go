package model

import "time"

// Book is a catalogue entry created by a user.
//
// AverageRating and ReviewCount are derived from the book's reviews at read
// time; they are never stored.
type Book struct {
	ID            string    `json:"id"            db:"id"`
	Title         string    `json:"title"         db:"title"`
	Author        string    `json:"author"        db:"author"`
	ISBN          string    `json:"isbn"          db:"isbn"`
	Genre         string    `json:"genre"         db:"genre"`
	Description   string    `json:"description"   db:"description"`
	CoverImage    string    `json:"coverImage"    db:"cover_image"`
	UserID        string    `json:"userId"        db:"user_id"`
	CreatedBy     *UserRef  `json:"createdBy"     db:"-"`
	AverageRating float64   `json:"averageRating" db:"average_rating"`
	ReviewCount   int       `json:"reviewCount"   db:"review_count"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}

// BookDetail is a book together with all of its reviews, newest first.
type BookDetail struct {
	Book
	Reviews []Review      `json:"reviews"`
	Ratings RatingSummary `json:"ratings"`
}

// NewBookDetail assembles the detail view and recomputes the derived rating
// fields from reviews so they always agree with the list that is returned.
func NewBookDetail(book Book, reviews []Review) *BookDetail {
	if reviews == nil {
		reviews = []Review{}
	}
	summary := SummarizeRatings(reviews)
	book.AverageRating = summary.Average
	book.ReviewCount = summary.Total
	return &BookDetail{
		Book:    book,
		Reviews: reviews,
		Ratings: summary,
	}
}

// BookPage is one page of a filtered, sorted book listing.
type BookPage struct {
	Books      []Book `json:"books"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
	TotalBooks int    `json:"totalBooks"`
}

// TotalPages returns ceil(total/limit), and 0 when limit is not positive.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
