package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateBook(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")

	book, err := s.books.Create(context.Background(), owner, CreateBookInput{
		Title:       "  Dune ",
		Author:      "Frank Herbert",
		ISBN:        "9780441172719",
		Genre:       "Science Fiction",
		Description: "Spice.",
		CoverImage:  "https://covers.example.com/dune.jpg",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if book.ID == "" {
		t.Error("Create() did not assign an ID")
	}
	if book.Title != "Dune" {
		t.Errorf("Title = %q, want trimmed %q", book.Title, "Dune")
	}
	if book.UserID != owner.UserID {
		t.Errorf("UserID = %q, want %q", book.UserID, owner.UserID)
	}
	if book.CreatedBy == nil || book.CreatedBy.Name != "Owner" {
		t.Errorf("CreatedBy = %+v, want Owner", book.CreatedBy)
	}
}

func TestCreateBook_Validation(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")

	valid := CreateBookInput{Title: "T", Author: "Au", ISBN: "123", Genre: "SF"}
	tests := []struct {
		name   string
		mutate func(*CreateBookInput)
	}{
		{"missing title", func(in *CreateBookInput) { in.Title = "" }},
		{"blank author", func(in *CreateBookInput) { in.Author = "   " }},
		{"missing isbn", func(in *CreateBookInput) { in.ISBN = "" }},
		{"missing genre", func(in *CreateBookInput) { in.Genre = "" }},
		{"cover not a url", func(in *CreateBookInput) { in.CoverImage = "cover.png" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if _, err := s.books.Create(context.Background(), owner, in); !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateBook_Anonymous(t *testing.T) {
	s := newTestServices(t)

	_, err := s.books.Create(context.Background(), auth.Identity{}, CreateBookInput{Title: "T", Author: "A", ISBN: "1", Genre: "G"})
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Fatalf("Create() error = %v, want ErrUnauthenticated", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListBooks_Defaults(t *testing.T) {
	s := newTestServices(t)

	page, err := s.books.List(context.Background(), ListBooksQuery{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if page.Page != 1 || page.Limit != DefaultPageLimit {
		t.Errorf("page/limit = %d/%d, want 1/%d", page.Page, page.Limit, DefaultPageLimit)
	}
	if page.Books == nil {
		t.Error("Books is nil, want empty slice")
	}
	if page.TotalPages != 0 {
		t.Errorf("TotalPages = %d, want 0 for an empty catalogue", page.TotalPages)
	}

	opts := s.store.lastListOpts
	if opts.SortBy != repository.SortCreatedAt || opts.Ascending {
		t.Errorf("default ordering = %s asc=%v, want createdAt desc", opts.SortBy, opts.Ascending)
	}
}

func TestListBooks_Pagination(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")
	for i := 0; i < 25; i++ {
		s.createBook(t, owner, fmt.Sprintf("Book %02d", i), "Author", "Genre")
	}

	page, err := s.books.List(context.Background(), ListBooksQuery{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(page.Books) > 10 {
		t.Errorf("page 2 returned %d books, want at most 10", len(page.Books))
	}
	if page.TotalBooks != 25 {
		t.Errorf("TotalBooks = %d, want 25", page.TotalBooks)
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want ceil(25/10) = 3", page.TotalPages)
	}
	if s.store.lastListOpts.Offset != 10 {
		t.Errorf("Offset = %d, want 10", s.store.lastListOpts.Offset)
	}
}

func TestListBooks_LimitClampedToMax(t *testing.T) {
	s := newTestServices(t)

	page, err := s.books.List(context.Background(), ListBooksQuery{Limit: 5000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != MaxPageLimit {
		t.Errorf("Limit = %d, want clamped to %d", page.Limit, MaxPageLimit)
	}
}

func TestListBooks_InvalidQuery(t *testing.T) {
	s := newTestServices(t)

	tests := []struct {
		name string
		q    ListBooksQuery
	}{
		{"negative page", ListBooksQuery{Page: -1}},
		{"negative limit", ListBooksQuery{Limit: -5}},
		{"unknown sort", ListBooksQuery{SortBy: "password"}},
		{"unknown order", ListBooksQuery{Order: "up"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.books.List(context.Background(), tt.q); !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("List() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestListBooks_PassesFiltersThrough(t *testing.T) {
	s := newTestServices(t)

	_, err := s.books.List(context.Background(), ListBooksQuery{
		Genre: " sci ", Author: "herb", Title: "dune", SortBy: "title", Order: "asc",
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	f := s.store.lastListFilter
	if f.Genre != "sci" || f.Author != "herb" || f.Title != "dune" {
		t.Errorf("filter = %+v", f)
	}
	if s.store.lastListOpts.SortBy != repository.SortTitle || !s.store.lastListOpts.Ascending {
		t.Errorf("opts = %+v, want title asc", s.store.lastListOpts)
	}
}

func TestListBooks_RepositoryError(t *testing.T) {
	s := newTestServices(t)
	s.store.listErr = errors.New("connection refused")

	if _, err := s.books.List(context.Background(), ListBooksQuery{}); err == nil {
		t.Fatal("List() should propagate repository errors")
	}
}

func TestListByUser(t *testing.T) {
	s := newTestServices(t)
	alice := s.register(t, "alice@x.com", "Alice")
	bob := s.register(t, "bob@x.com", "Bob")
	s.createBook(t, alice, "Mine", "A", "G")
	s.createBook(t, bob, "Theirs", "B", "G")

	page, err := s.books.ListByUser(context.Background(), alice.UserID, ListBooksQuery{})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if page.TotalBooks != 1 || page.Books[0].Title != "Mine" {
		t.Errorf("ListByUser() = %+v, want only Mine", page.Books)
	}
}

// =========================================================================
// GET TESTS
// =========================================================================

func TestGetBook_NoReviews(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")
	book := s.createBook(t, owner, "T", "Au", "SF")

	detail, err := s.books.Get(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if detail.Reviews == nil || len(detail.Reviews) != 0 {
		t.Errorf("Reviews = %v, want empty slice", detail.Reviews)
	}
	if detail.AverageRating != 0 {
		t.Errorf("AverageRating = %v, want 0", detail.AverageRating)
	}
}

func TestGetBook_AverageAndOrdering(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")
	reader := s.register(t, "reader@x.com", "Reader")
	book := s.createBook(t, owner, "T", "Au", "SF")

	ctx := context.Background()
	if _, err := s.reviews.Create(ctx, owner, CreateReviewInput{BookID: book.ID, Rating: 3, Comment: "ok"}); err != nil {
		t.Fatal(err)
	}
	newest, err := s.reviews.Create(ctx, reader, CreateReviewInput{BookID: book.ID, Rating: 4, Comment: "good"})
	if err != nil {
		t.Fatal(err)
	}

	detail, err := s.books.Get(ctx, book.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if detail.AverageRating != 3.5 {
		t.Errorf("AverageRating = %v, want 3.5", detail.AverageRating)
	}
	if detail.Ratings.ThreeStars != 1 || detail.Ratings.FourStars != 1 {
		t.Errorf("Ratings = %+v", detail.Ratings)
	}
	if detail.Reviews[0].ID != newest.ID {
		t.Errorf("first review = %s, want newest %s", detail.Reviews[0].ID, newest.ID)
	}
	if detail.Reviews[0].User.Name != "Reader" {
		t.Errorf("review author = %+v, want Reader", detail.Reviews[0].User)
	}
}

func TestGetBook_NotFound(t *testing.T) {
	s := newTestServices(t)
	if _, err := s.books.Get(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdateBook_Partial(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")
	book := s.createBook(t, owner, "Old", "Au", "SF")

	got, err := s.books.Update(context.Background(), owner, book.ID, UpdateBookInput{Title: ptr(" New ")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Title != "New" {
		t.Errorf("Title = %q, want %q", got.Title, "New")
	}
	if got.Author != "Au" || got.Genre != "SF" {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestUpdateBook_EmptyPatchReturnsCurrent(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")
	book := s.createBook(t, owner, "Same", "Au", "SF")

	got, err := s.books.Update(context.Background(), owner, book.ID, UpdateBookInput{})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Title != "Same" {
		t.Errorf("Title = %q, want %q", got.Title, "Same")
	}
}

func TestUpdateBook_BlankRequiredField(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")
	book := s.createBook(t, owner, "T", "Au", "SF")

	_, err := s.books.Update(context.Background(), owner, book.ID, UpdateBookInput{Genre: ptr("  ")})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation", err)
	}
}

func TestUpdateBook_Ownership(t *testing.T) {
	s := newTestServices(t, "admin@x.com")
	owner := s.register(t, "owner@x.com", "Owner")
	stranger := s.register(t, "stranger@x.com", "Stranger")
	admin := s.register(t, "admin@x.com", "Admin")
	book := s.createBook(t, owner, "T", "Au", "SF")
	ctx := context.Background()

	if _, err := s.books.Update(ctx, stranger, book.ID, UpdateBookInput{Title: ptr("Hijacked")}); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("stranger Update() error = %v, want ErrForbidden", err)
	}
	if _, err := s.books.Update(ctx, admin, book.ID, UpdateBookInput{Title: ptr("Moderated")}); err != nil {
		t.Errorf("admin Update() error = %v", err)
	}
	if _, err := s.books.Update(ctx, owner, "missing", UpdateBookInput{Title: ptr("x")}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateBook_UnownedBookIsAdminOnly(t *testing.T) {
	s := newTestServices(t)
	user := s.register(t, "user@x.com", "User")
	s.store.books["orphan"] = &model.Book{ID: "orphan", Title: "Orphan"}

	_, err := s.books.Update(context.Background(), user, "orphan", UpdateBookInput{Title: ptr("Mine now")})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Update() error = %v, want ErrForbidden", err)
	}

	admin := auth.Identity{UserID: "root", Role: model.RoleAdmin}
	if _, err := s.books.Update(context.Background(), admin, "orphan", UpdateBookInput{Title: ptr("Fixed")}); err != nil {
		t.Fatalf("admin Update() error = %v", err)
	}
}

func TestDeleteBook(t *testing.T) {
	s := newTestServices(t)
	owner := s.register(t, "owner@x.com", "Owner")
	stranger := s.register(t, "stranger@x.com", "Stranger")
	book := s.createBook(t, owner, "T", "Au", "SF")
	ctx := context.Background()

	if _, err := s.reviews.Create(ctx, stranger, CreateReviewInput{BookID: book.ID, Rating: 5, Comment: "great"}); err != nil {
		t.Fatal(err)
	}

	if err := s.books.Delete(ctx, stranger, book.ID); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("stranger Delete() error = %v, want ErrForbidden", err)
	}
	if err := s.books.Delete(ctx, owner, book.ID); err != nil {
		t.Fatalf("owner Delete() error = %v", err)
	}
	if len(s.store.reviews) != 0 {
		t.Errorf("%d reviews survived their book", len(s.store.reviews))
	}
	if err := s.books.Delete(ctx, owner, book.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
