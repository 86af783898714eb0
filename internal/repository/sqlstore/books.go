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

var _ repository.BookRepository = (*Store)(nil)

// bookSelect reads a book together with its creator's name and the rating
// aggregates. The aggregates come from a grouped subquery, so a book with no
// reviews gets 0 / 0 rather than NULL.
const bookSelect = `
SELECT b.id, b.title, b.author, b.isbn, b.genre, b.description, b.cover_image,
       b.user_id, COALESCE(u.name, '') AS creator_name,
       COALESCE(rs.average_rating, 0) AS average_rating,
       COALESCE(rs.review_count, 0) AS review_count,
       b.created_at, b.updated_at
FROM books b
LEFT JOIN users u ON u.id = b.user_id
LEFT JOIN (
    SELECT book_id, AVG(rating) AS average_rating, COUNT(*) AS review_count
    FROM reviews
    GROUP BY book_id
) rs ON rs.book_id = b.id`

// sortColumns maps API sort keys to ORDER BY expressions. Only keys in this
// map ever reach the SQL text.
var sortColumns = map[string]string{
	repository.SortCreatedAt:     "b.created_at",
	repository.SortUpdatedAt:     "b.updated_at",
	repository.SortTitle:         "LOWER(b.title)",
	repository.SortAuthor:        "LOWER(b.author)",
	repository.SortGenre:         "LOWER(b.genre)",
	repository.SortISBN:          "b.isbn",
	repository.SortAverageRating: "average_rating",
	repository.SortReviewCount:   "review_count",
}

// bookRow is the scan target for bookSelect.
type bookRow struct {
	model.Book
	CreatorName string `db:"creator_name"`
}

func (r bookRow) toModel() model.Book {
	b := r.Book
	if b.UserID != "" {
		b.CreatedBy = &model.UserRef{ID: b.UserID, Name: r.CreatorName}
	}
	return b
}

func toBooks(rows []bookRow) []model.Book {
	books := make([]model.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, r.toModel())
	}
	return books
}

// CreateBook inserts a book and fills in its id and timestamps.
// Returns apperror.ErrNotFound if the owning user does not exist.
func (s *Store) CreateBook(ctx context.Context, book *model.Book) error {
	now := time.Now().UTC()
	book.ID = xid.New().String()
	book.CreatedAt = now
	book.UpdatedAt = now
	book.AverageRating = 0
	book.ReviewCount = 0

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO books (id, title, author, isbn, genre, description, cover_image, user_id, created_at, updated_at)
		 VALUES (:id, :title, :author, :isbn, :genre, :description, :cover_image, :user_id, :created_at, :updated_at)`,
		book,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("book", "a book with this id already exists")
		}
		// user_id is the only reference on books.
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", book.UserID)
		}
		return fmt.Errorf("sqlstore: creating book: %w", err)
	}
	return nil
}

// GetBook retrieves one book with its rating aggregates.
// Returns apperror.ErrNotFound if no book exists with that id.
func (s *Store) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var row bookRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(bookSelect+` WHERE b.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("book", id)
		}
		return nil, fmt.Errorf("sqlstore: getting book %s: %w", id, err)
	}
	b := row.toModel()
	return &b, nil
}

// ListBooks returns one page of books matching filter, plus the total number
// of matches across all pages.
//
// Text filters are case-insensitive substring matches. LIKE wildcards in the
// user's input are escaped so "50%" matches literally.
func (s *Store) ListBooks(ctx context.Context, filter repository.BookFilter, opts repository.ListOptions) ([]model.Book, int, error) {
	where, args := s.bookWhere(filter)

	var total int
	err := s.db.GetContext(ctx, &total,
		s.db.Rebind(`SELECT COUNT(*) FROM books b`+where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: counting books: %w", err)
	}
	if total == 0 {
		return []model.Book{}, 0, nil
	}

	col, ok := sortColumns[opts.SortBy]
	if !ok {
		col = sortColumns[repository.SortCreatedAt]
	}
	dir := "DESC"
	if opts.Ascending {
		dir = "ASC"
	}

	// id breaks ties; xids sort by creation time.
	query := bookSelect + where +
		fmt.Sprintf(` ORDER BY %s %s, b.id %s LIMIT ? OFFSET ?`, col, dir, dir)

	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query),
		append(args, opts.Limit, opts.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("sqlstore: listing books: %w", err)
	}
	return toBooks(rows), total, nil
}

// bookWhere builds the WHERE clause for a listing. Every value goes through
// a placeholder.
//
// Text filters fold case on both sides: ILIKE on Postgres, foldFunc on
// SQLite.
func (s *Store) bookWhere(f repository.BookFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	like := func(col, v string) {
		if s.dialect == DialectPostgres {
			conds = append(conds, col+` ILIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(v)+"%")
			return
		}
		conds = append(conds, foldFunc+`(`+col+`) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(foldText(v))+"%")
	}
	if v := strings.TrimSpace(f.Genre); v != "" {
		like("b.genre", v)
	}
	if v := strings.TrimSpace(f.Author); v != "" {
		like("b.author", v)
	}
	if v := strings.TrimSpace(f.Title); v != "" {
		like("b.title", v)
	}
	if f.UserID != "" {
		conds = append(conds, `b.user_id = ?`)
		args = append(args, f.UserID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// UpdateBook applies the non-nil fields of upd and returns the stored result.
// Concurrent updates are last-write-wins.
func (s *Store) UpdateBook(ctx context.Context, id string, upd repository.BookUpdate) (*model.Book, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+` = ?`)
			args = append(args, *v)
		}
	}
	set("title", upd.Title)
	set("author", upd.Author)
	set("isbn", upd.ISBN)
	set("genre", upd.Genre)
	set("description", upd.Description)
	set("cover_image", upd.CoverImage)

	sets = append(sets, `updated_at = ?`)
	args = append(args, time.Now().UTC(), id)

	result, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE books SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: updating book %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperror.NotFound("book", id)
	}

	return s.GetBook(ctx, id)
}

// DeleteBook removes a book. Its reviews go with it (ON DELETE CASCADE).
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM books WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting book %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("book", id)
	}
	return nil
}

// Related returns up to limit other books that share the genre or the
// author of book, newest first. Matching is case-insensitive and exact.
func (s *Store) Related(ctx context.Context, book *model.Book, limit int) ([]model.Book, error) {
	fold := "LOWER"
	if s.dialect == DialectSQLite {
		fold = foldFunc
	}
	query := bookSelect + fmt.Sprintf(`
WHERE b.id <> ? AND (%[1]s(b.genre) = %[1]s(?) OR %[1]s(b.author) = %[1]s(?))
ORDER BY b.created_at DESC, b.id DESC
LIMIT ?`, fold)

	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query),
		book.ID, book.Genre, book.Author, limit); err != nil {
		return nil, fmt.Errorf("sqlstore: finding books related to %s: %w", book.ID, err)
	}
	return toBooks(rows), nil
}
