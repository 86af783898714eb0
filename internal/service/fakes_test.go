package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
	"github.com/sakif/bookshelf/internal/validation"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory implementation of the user, book and review
// repositories. It mirrors the SQL store's observable behaviour closely
// enough for service tests: NotFound on missing ids, Conflict on duplicate
// emails, derived rating aggregates, and cascade on book delete.

type fakeStore struct {
	users   map[string]*model.User
	books   map[string]*model.Book
	reviews map[string]*model.Review
	nextID  int
	clock   time.Time

	// set to a non-nil error to simulate a database failure
	listErr   error
	createErr error

	lastListFilter repository.BookFilter
	lastListOpts   repository.ListOptions
}

var (
	_ repository.UserRepository   = (*fakeStore)(nil)
	_ repository.BookRepository   = (*fakeStore)(nil)
	_ repository.ReviewRepository = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*model.User),
		books:   make(map[string]*model.Book),
		reviews: make(map[string]*model.Review),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%03d", prefix, f.nextID)
}

// tick returns a strictly increasing timestamp so "newest first" is stable.
func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// --- users ---

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	email := strings.ToLower(user.Email)
	for _, u := range f.users {
		if u.Email == email {
			return apperror.Conflict("user", "email is already registered")
		}
	}
	user.ID = f.id("user")
	user.Email = email
	user.CreatedAt = f.tick()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

// --- books ---

func (f *fakeStore) decorate(b model.Book) model.Book {
	var sum, n int
	for _, r := range f.reviews {
		if r.BookID == b.ID {
			sum += r.Rating
			n++
		}
	}
	b.ReviewCount = n
	b.AverageRating = 0
	if n > 0 {
		b.AverageRating = float64(sum) / float64(n)
	}
	if u, ok := f.users[b.UserID]; ok {
		b.CreatedBy = &model.UserRef{ID: u.ID, Name: u.Name}
	}
	return b
}

func (f *fakeStore) CreateBook(_ context.Context, book *model.Book) error {
	if f.createErr != nil {
		return f.createErr
	}
	book.ID = f.id("book")
	book.CreatedAt = f.tick()
	book.UpdatedAt = book.CreatedAt
	stored := *book
	f.books[book.ID] = &stored
	return nil
}

func (f *fakeStore) GetBook(_ context.Context, id string) (*model.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, apperror.NotFound("book", id)
	}
	out := f.decorate(*b)
	return &out, nil
}

func (f *fakeStore) ListBooks(_ context.Context, filter repository.BookFilter, opts repository.ListOptions) ([]model.Book, int, error) {
	f.lastListFilter = filter
	f.lastListOpts = opts
	if f.listErr != nil {
		return nil, 0, f.listErr
	}

	contains := func(field, q string) bool {
		return q == "" || strings.Contains(strings.ToLower(field), strings.ToLower(q))
	}
	var matched []model.Book
	for _, b := range f.books {
		if contains(b.Genre, filter.Genre) && contains(b.Author, filter.Author) &&
			contains(b.Title, filter.Title) && (filter.UserID == "" || b.UserID == filter.UserID) {
			matched = append(matched, f.decorate(*b))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if opts.Ascending {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if opts.Offset >= total {
		return []model.Book{}, total, nil
	}
	end := opts.Offset + opts.Limit
	if end > total {
		end = total
	}
	return matched[opts.Offset:end], total, nil
}

func (f *fakeStore) UpdateBook(_ context.Context, id string, upd repository.BookUpdate) (*model.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, apperror.NotFound("book", id)
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&b.Title, upd.Title)
	apply(&b.Author, upd.Author)
	apply(&b.ISBN, upd.ISBN)
	apply(&b.Genre, upd.Genre)
	apply(&b.Description, upd.Description)
	apply(&b.CoverImage, upd.CoverImage)
	b.UpdatedAt = f.tick()
	out := f.decorate(*b)
	return &out, nil
}

func (f *fakeStore) DeleteBook(_ context.Context, id string) error {
	if _, ok := f.books[id]; !ok {
		return apperror.NotFound("book", id)
	}
	delete(f.books, id)
	for rid, r := range f.reviews {
		if r.BookID == id {
			delete(f.reviews, rid)
		}
	}
	return nil
}

func (f *fakeStore) Related(_ context.Context, book *model.Book, limit int) ([]model.Book, error) {
	var out []model.Book
	for _, b := range f.books {
		if b.ID == book.ID {
			continue
		}
		if strings.EqualFold(b.Genre, book.Genre) || strings.EqualFold(b.Author, book.Author) {
			out = append(out, f.decorate(*b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- reviews ---

func (f *fakeStore) withAuthor(r model.Review) model.Review {
	if u, ok := f.users[r.UserID]; ok {
		r.User = model.UserRef{ID: u.ID, Name: u.Name}
	}
	return r
}

func (f *fakeStore) CreateReview(_ context.Context, review *model.Review) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.books[review.BookID]; !ok {
		return fmt.Errorf("FOREIGN KEY constraint failed")
	}
	review.ID = f.id("review")
	review.CreatedAt = f.tick()
	review.UpdatedAt = review.CreatedAt
	stored := *review
	f.reviews[review.ID] = &stored
	return nil
}

func (f *fakeStore) GetReview(_ context.Context, id string) (*model.Review, error) {
	r, ok := f.reviews[id]
	if !ok {
		return nil, apperror.NotFound("review", id)
	}
	out := f.withAuthor(*r)
	return &out, nil
}

func (f *fakeStore) listReviews(keep func(*model.Review) bool) []model.Review {
	var out []model.Review
	for _, r := range f.reviews {
		if keep(r) {
			out = append(out, f.withAuthor(*r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeStore) ListReviewsByBook(_ context.Context, bookID string) ([]model.Review, error) {
	return f.listReviews(func(r *model.Review) bool { return r.BookID == bookID }), nil
}

func (f *fakeStore) ListReviewsByUser(_ context.Context, userID string) ([]model.Review, error) {
	return f.listReviews(func(r *model.Review) bool { return r.UserID == userID }), nil
}

func (f *fakeStore) UpdateReview(_ context.Context, id string, upd repository.ReviewUpdate) (*model.Review, error) {
	r, ok := f.reviews[id]
	if !ok {
		return nil, apperror.NotFound("review", id)
	}
	if upd.Rating != nil {
		r.Rating = *upd.Rating
	}
	if upd.Comment != nil {
		r.Comment = *upd.Comment
	}
	r.UpdatedAt = f.tick()
	out := f.withAuthor(*r)
	return &out, nil
}

func (f *fakeStore) DeleteReview(_ context.Context, id string) error {
	if _, ok := f.reviews[id]; !ok {
		return apperror.NotFound("review", id)
	}
	delete(f.reviews, id)
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokenService(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// services bundles every service over one shared fake store.
type services struct {
	store   *fakeStore
	tokens  *auth.TokenService
	auth    *AuthService
	books   *BookService
	reviews *ReviewService
	recs    *RecommendationService
}

func newTestServices(t *testing.T, adminEmails ...string) *services {
	t.Helper()
	store := newFakeStore()
	tokens := newTestTokenService(t)
	v := validation.New()
	logger := discardLogger()
	return &services{
		store:   store,
		tokens:  tokens,
		auth:    NewAuthService(store, tokens, auth.NewPasswordServiceForTest(), v, adminEmails, logger),
		books:   NewBookService(store, store, v, logger),
		reviews: NewReviewService(store, store, v, logger),
		recs:    NewRecommendationService(store),
	}
}

// register creates an account through the service and returns its identity.
func (s *services) register(t *testing.T, email, name string) auth.Identity {
	t.Helper()
	res, err := s.auth.Register(context.Background(), RegisterInput{Email: email, Password: "secret1", Name: name})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return auth.Identity{UserID: res.User.ID, Role: res.User.Role}
}

func (s *services) createBook(t *testing.T, id auth.Identity, title, author, genre string) *model.Book {
	t.Helper()
	b, err := s.books.Create(context.Background(), id, CreateBookInput{
		Title: title, Author: author, ISBN: "123", Genre: genre,
	})
	if err != nil {
		t.Fatalf("create book %q: %v", title, err)
	}
	return b
}

func ptr[T any](v T) *T { return &v }
