// Package client is a Go client for the bookshelf HTTP API.
//
// A Client remembers the signed-in user for the life of the process and
// persists the bearer token through a TokenStore, so a later process can
// pick the session back up with Restore.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sakif/bookshelf/internal/model"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("bookshelf: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("bookshelf: %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// ErrNotSignedIn is returned by calls that need a token when none is stored.
var ErrNotSignedIn = errors.New("bookshelf: not signed in")

// Client talks to one bookshelf server.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore

	mu   sync.Mutex
	user *model.PublicUser
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenStore sets where the bearer token is kept. The default is a
// MemoryTokenStore.
func WithTokenStore(ts TokenStore) Option {
	return func(c *Client) { c.tokens = ts }
}

// New creates a Client for the server at baseURL, e.g.
// "http://localhost:3001" or "http://localhost:3001/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base URL %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u.String(),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  &MemoryTokenStore{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// =========================================================================
// Session
// =========================================================================

type authResponse struct {
	User  model.PublicUser `json:"user"`
	Token string           `json:"token"`
}

// Register creates an account, stores its token and makes it the current
// user.
func (c *Client) Register(ctx context.Context, email, password, name string) (*model.PublicUser, error) {
	var res authResponse
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, body, &res, false); err != nil {
		return nil, err
	}
	return c.signIn(res)
}

// Login signs in, stores the token and makes the user current.
func (c *Client) Login(ctx context.Context, email, password string) (*model.PublicUser, error) {
	var res authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &res, false); err != nil {
		return nil, err
	}
	return c.signIn(res)
}

func (c *Client) signIn(res authResponse) (*model.PublicUser, error) {
	if err := c.tokens.Save(res.Token); err != nil {
		return nil, err
	}
	user := res.User
	c.setUser(&user)
	return &user, nil
}

// Logout forgets the token and the current user. The token itself stays
// valid on the server until it expires.
func (c *Client) Logout() error {
	c.setUser(nil)
	return c.tokens.Clear()
}

// CurrentUser returns the signed-in user known to this Client, or nil.
func (c *Client) CurrentUser() *model.PublicUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Client) setUser(u *model.PublicUser) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
}

// Restore resumes a session from the stored token by fetching /auth/me.
// It returns (nil, nil) when no token is stored. A token the server
// rejects with 401 is cleared.
func (c *Client) Restore(ctx context.Context) (*model.PublicUser, error) {
	token, err := c.tokens.Load()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	user, err := c.Me(ctx)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			_ = c.Logout()
		}
		return nil, err
	}
	return user, nil
}

// Me fetches the signed-in user's profile and makes it current.
func (c *Client) Me(ctx context.Context) (*model.PublicUser, error) {
	var user model.PublicUser
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &user, true); err != nil {
		return nil, err
	}
	c.setUser(&user)
	return &user, nil
}

// =========================================================================
// Books
// =========================================================================

// BookQuery selects a page of books. Zero values are left to the server's
// defaults.
type BookQuery struct {
	Page   int
	Limit  int
	Genre  string
	Author string
	Title  string
	SortBy string
	Order  string
}

func (q BookQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	for key, val := range map[string]string{
		"genre": q.Genre, "author": q.Author, "title": q.Title, "sortBy": q.SortBy, "order": q.Order,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	return v
}

// BookInput is a new book.
type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Genre       string `json:"genre"`
	Description string `json:"description,omitempty"`
	CoverImage  string `json:"coverImage,omitempty"`
}

// BookPatch changes only its non-nil fields.
type BookPatch struct {
	Title       *string `json:"title,omitempty"`
	Author      *string `json:"author,omitempty"`
	ISBN        *string `json:"isbn,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	Description *string `json:"description,omitempty"`
	CoverImage  *string `json:"coverImage,omitempty"`
}

type bookEnvelope struct {
	Book model.Book `json:"book"`
}

// ListBooks fetches one page of the catalogue.
func (c *Client) ListBooks(ctx context.Context, q BookQuery) (*model.BookPage, error) {
	var page model.BookPage
	if err := c.do(ctx, http.MethodGet, "/books", q.values(), nil, &page, false); err != nil {
		return nil, err
	}
	return &page, nil
}

// MyBooks fetches one page of the signed-in user's books.
func (c *Client) MyBooks(ctx context.Context, q BookQuery) (*model.BookPage, error) {
	var page model.BookPage
	if err := c.do(ctx, http.MethodGet, "/users/me/books", q.values(), nil, &page, true); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetBook fetches a book with its reviews.
func (c *Client) GetBook(ctx context.Context, id string) (*model.BookDetail, error) {
	var res struct {
		Book model.BookDetail `json:"book"`
	}
	if err := c.do(ctx, http.MethodGet, "/books/"+url.PathEscape(id), nil, nil, &res, false); err != nil {
		return nil, err
	}
	return &res.Book, nil
}

// CreateBook adds a book owned by the signed-in user.
func (c *Client) CreateBook(ctx context.Context, in BookInput) (*model.Book, error) {
	var res bookEnvelope
	if err := c.do(ctx, http.MethodPost, "/books", nil, in, &res, true); err != nil {
		return nil, err
	}
	return &res.Book, nil
}

// UpdateBook applies a partial update.
func (c *Client) UpdateBook(ctx context.Context, id string, patch BookPatch) (*model.Book, error) {
	var res bookEnvelope
	if err := c.do(ctx, http.MethodPut, "/books/"+url.PathEscape(id), nil, patch, &res, true); err != nil {
		return nil, err
	}
	return &res.Book, nil
}

// DeleteBook removes a book and its reviews.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/books/"+url.PathEscape(id), nil, nil, nil, true)
}

// Recommendations lists books related to id. limit 0 uses the server
// default.
func (c *Client) Recommendations(ctx context.Context, id string, limit int) ([]model.Book, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var books []model.Book
	if err := c.do(ctx, http.MethodGet, "/recommendations/"+url.PathEscape(id), q, nil, &books, false); err != nil {
		return nil, err
	}
	return books, nil
}

// =========================================================================
// Reviews
// =========================================================================

// ReviewPatch changes only its non-nil fields.
type ReviewPatch struct {
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

type reviewEnvelope struct {
	Review model.Review `json:"review"`
}

type reviewList struct {
	Reviews []model.Review `json:"reviews"`
}

// BookReviews lists a book's reviews, newest first.
func (c *Client) BookReviews(ctx context.Context, bookID string) ([]model.Review, error) {
	var res reviewList
	if err := c.do(ctx, http.MethodGet, "/books/"+url.PathEscape(bookID)+"/reviews", nil, nil, &res, false); err != nil {
		return nil, err
	}
	return res.Reviews, nil
}

// MyReviews lists the signed-in user's reviews, newest first.
func (c *Client) MyReviews(ctx context.Context) ([]model.Review, error) {
	var res reviewList
	if err := c.do(ctx, http.MethodGet, "/users/me/reviews", nil, nil, &res, true); err != nil {
		return nil, err
	}
	return res.Reviews, nil
}

// CreateReview rates a book.
func (c *Client) CreateReview(ctx context.Context, bookID string, rating int, comment string) (*model.Review, error) {
	var res reviewEnvelope
	body := map[string]any{"rating": rating, "comment": comment}
	if err := c.do(ctx, http.MethodPost, "/books/"+url.PathEscape(bookID)+"/reviews", nil, body, &res, true); err != nil {
		return nil, err
	}
	return &res.Review, nil
}

// UpdateReview applies a partial update.
func (c *Client) UpdateReview(ctx context.Context, id string, patch ReviewPatch) (*model.Review, error) {
	var res reviewEnvelope
	if err := c.do(ctx, http.MethodPut, "/reviews/"+url.PathEscape(id), nil, patch, &res, true); err != nil {
		return nil, err
	}
	return &res.Review, nil
}

// DeleteReview removes a review.
func (c *Client) DeleteReview(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/reviews/"+url.PathEscape(id), nil, nil, nil, true)
}

// =========================================================================
// Transport
// =========================================================================

// do sends one request. body, when non-nil, is JSON-encoded; out, when
// non-nil, receives the decoded 2xx body. With needAuth set, a missing token
// fails fast with ErrNotSignedIn; otherwise a stored token is still sent.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, needAuth bool) error {
	token, err := c.tokens.Load()
	if err != nil {
		return err
	}
	if needAuth && token == "" {
		return ErrNotSignedIn
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error   string            `json:"error"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
		apiErr.Details = body.Details
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
