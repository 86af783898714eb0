// Command bookctl is a terminal client for a bookshelf server.
//
// Usage:
//
//	bookctl [-server URL] <command> [flags]
//
// The session token is kept in the user config directory, so `bookctl login`
// once is enough for later commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sakif/bookshelf/internal/client"
	"github.com/sakif/bookshelf/internal/model"
)

const defaultServer = "http://localhost:3001/api"

const usage = `usage: bookctl [-server URL] <command> [flags]

commands:
  register   -email E -password P [-name N]
  login      -email E -password P
  logout
  whoami
  books      [-page N] [-limit N] [-genre G] [-author A] [-title T] [-sort F] [-order asc|desc] [-mine]
  book       <id>
  add-book   -title T -author A -isbn I -genre G [-description D] [-cover URL]
  edit-book  <id> [-title T] [-author A] [-isbn I] [-genre G] [-description D] [-cover URL]
  delete-book <id>
  review     <bookId> -rating N [-comment C]
  edit-review <id> [-rating N] [-comment C]
  delete-review <id>
  reviews    [-mine | <bookId>]
  recommend  <bookId> [-limit N]

The server URL defaults to $BOOKSHELF_URL, then ` + defaultServer + `.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "bookctl:", err)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			for field, msg := range apiErr.Details {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("bookctl", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	serverURL := global.String("server", envOr("BOOKSHELF_URL", defaultServer), "bookshelf API base URL")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("no command given")
	}

	tokenPath, err := client.DefaultTokenPath()
	if err != nil {
		return err
	}
	c, err := client.New(*serverURL, client.WithTokenStore(client.FileTokenStore{Path: tokenPath}))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "register":
		return cmdRegister(ctx, c, rest, out)
	case "login":
		return cmdLogin(ctx, c, rest, out)
	case "logout":
		if err := c.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Signed out.")
		return nil
	case "whoami":
		return cmdWhoami(ctx, c, out)
	case "books":
		return cmdBooks(ctx, c, rest, out)
	case "book":
		return cmdBook(ctx, c, rest, out)
	case "add-book":
		return cmdAddBook(ctx, c, rest, out)
	case "edit-book":
		return cmdEditBook(ctx, c, rest, out)
	case "delete-book":
		return cmdDeleteBook(ctx, c, rest, out)
	case "review":
		return cmdReview(ctx, c, rest, out)
	case "edit-review":
		return cmdEditReview(ctx, c, rest, out)
	case "delete-review":
		return cmdDeleteReview(ctx, c, rest, out)
	case "reviews":
		return cmdReviews(ctx, c, rest, out)
	case "recommend":
		return cmdRecommend(ctx, c, rest, out)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func cmdRegister(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password, at least 6 characters")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := c.Register(ctx, *email, *password, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Registered and signed in as %s (%s).\n", displayName(user), user.Role)
	return nil
}

func cmdLogin(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := c.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Signed in as %s.\n", displayName(user))
	return nil
}

func cmdWhoami(ctx context.Context, c *client.Client, out io.Writer) error {
	user, err := c.Restore(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		fmt.Fprintln(out, "Not signed in.")
		return nil
	}
	fmt.Fprintf(out, "%s <%s> role=%s id=%s\n", displayName(user), user.Email, user.Role, user.ID)
	return nil
}

func cmdBooks(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("books", flag.ContinueOnError)
	var q client.BookQuery
	fs.IntVar(&q.Page, "page", 0, "page number")
	fs.IntVar(&q.Limit, "limit", 0, "books per page")
	fs.StringVar(&q.Genre, "genre", "", "genre contains")
	fs.StringVar(&q.Author, "author", "", "author contains")
	fs.StringVar(&q.Title, "title", "", "title contains")
	fs.StringVar(&q.SortBy, "sort", "", "sort field")
	fs.StringVar(&q.Order, "order", "", "asc or desc")
	mine := fs.Bool("mine", false, "only books I added")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		page *model.BookPage
		err  error
	)
	if *mine {
		page, err = c.MyBooks(ctx, q)
	} else {
		page, err = c.ListBooks(ctx, q)
	}
	if err != nil {
		return err
	}

	printBooks(out, page.Books)
	fmt.Fprintf(out, "\npage %d of %d, %d books\n", page.Page, page.TotalPages, page.TotalBooks)
	return nil
}

func cmdBook(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("book: expected exactly one book id")
	}
	detail, err := c.GetBook(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\nby %s\n", detail.Title, detail.Author)
	fmt.Fprintf(out, "ISBN %s  genre %s\n", detail.ISBN, detail.Genre)
	if detail.Description != "" {
		fmt.Fprintf(out, "\n%s\n", detail.Description)
	}
	fmt.Fprintf(out, "\n%s (%d reviews)\n", stars(detail.AverageRating), detail.ReviewCount)
	if len(detail.Reviews) > 0 {
		fmt.Fprintln(out)
		printReviews(out, detail.Reviews)
	}
	return nil
}

func cmdAddBook(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-book", flag.ContinueOnError)
	var in client.BookInput
	fs.StringVar(&in.Title, "title", "", "title")
	fs.StringVar(&in.Author, "author", "", "author")
	fs.StringVar(&in.ISBN, "isbn", "", "ISBN")
	fs.StringVar(&in.Genre, "genre", "", "genre")
	fs.StringVar(&in.Description, "description", "", "description")
	fs.StringVar(&in.CoverImage, "cover", "", "cover image URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	book, err := c.CreateBook(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Added %q (%s).\n", book.Title, book.ID)
	return nil
}

// cmdEditBook sends only the flags given on the command line, so
// `edit-book abc -genre Classics` leaves every other field alone.
func cmdEditBook(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	id, args, err := leadingID("edit-book", args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("edit-book", flag.ContinueOnError)
	title := fs.String("title", "", "title")
	author := fs.String("author", "", "author")
	isbn := fs.String("isbn", "", "ISBN")
	genre := fs.String("genre", "", "genre")
	description := fs.String("description", "", "description")
	cover := fs.String("cover", "", "cover image URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch client.BookPatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch.Title = title
		case "author":
			patch.Author = author
		case "isbn":
			patch.ISBN = isbn
		case "genre":
			patch.Genre = genre
		case "description":
			patch.Description = description
		case "cover":
			patch.CoverImage = cover
		}
	})

	book, err := c.UpdateBook(ctx, id, patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %q (%s).\n", book.Title, book.ID)
	return nil
}

func cmdDeleteBook(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("delete-book: expected exactly one book id")
	}
	if err := c.DeleteBook(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(out, "Book deleted along with its reviews.")
	return nil
}

func cmdEditReview(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	id, args, err := leadingID("edit-review", args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("edit-review", flag.ContinueOnError)
	rating := fs.Int("rating", 0, "1 to 5")
	comment := fs.String("comment", "", "comment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch client.ReviewPatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rating":
			patch.Rating = rating
		case "comment":
			patch.Comment = comment
		}
	})

	review, err := c.UpdateReview(ctx, id, patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Review %s now has %d stars.\n", review.ID, review.Rating)
	return nil
}

func cmdDeleteReview(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("delete-review: expected exactly one review id")
	}
	if err := c.DeleteReview(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(out, "Review deleted.")
	return nil
}

// leadingID splits `<id> [flags]`. The flag package stops at the first
// non-flag argument, so the id has to come first.
func leadingID(cmd string, args []string) (string, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", nil, fmt.Errorf("%s: expected an id before flags", cmd)
	}
	return args[0], args[1:], nil
}

// cmdReview takes the book id first, then flags, e.g. `review abc -rating 4`.
func cmdReview(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	bookID, args, err := leadingID("review", args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	rating := fs.Int("rating", 0, "1 to 5")
	comment := fs.String("comment", "", "comment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	review, err := c.CreateReview(ctx, bookID, *rating, *comment)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reviewed with %d stars (%s).\n", review.Rating, review.ID)
	return nil
}

func cmdReviews(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reviews", flag.ContinueOnError)
	mine := fs.Bool("mine", false, "only my reviews")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		reviews []model.Review
		err     error
	)
	switch {
	case *mine:
		reviews, err = c.MyReviews(ctx)
	case fs.NArg() == 1:
		reviews, err = c.BookReviews(ctx, fs.Arg(0))
	default:
		return errors.New("reviews: pass -mine or a book id")
	}
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		fmt.Fprintln(out, "No reviews.")
		return nil
	}
	printReviews(out, reviews)
	return nil
}

func cmdRecommend(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	bookID, args, err := leadingID("recommend", args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("recommend", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "how many")
	if err := fs.Parse(args); err != nil {
		return err
	}
	books, err := c.Recommendations(ctx, bookID, *limit)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		fmt.Fprintln(out, "No recommendations.")
		return nil
	}
	printBooks(out, books)
	return nil
}

func printBooks(out io.Writer, books []model.Book) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tGENRE\tRATING")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, b.Genre, rating(b.AverageRating, b.ReviewCount))
	}
	tw.Flush()
}

func printReviews(out io.Writer, reviews []model.Review) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBY\tRATING\tDATE\tCOMMENT")
	for _, r := range reviews {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.User.Name, r.Rating, r.CreatedAt.Format("2006-01-02"), r.Comment)
	}
	tw.Flush()
}

func rating(avg float64, count int) string {
	if count == 0 {
		return "-"
	}
	return strconv.FormatFloat(avg, 'f', 1, 64) + " (" + strconv.Itoa(count) + ")"
}

func stars(avg float64) string {
	full := int(avg + 0.5)
	return strings.Repeat("★", full) + strings.Repeat("☆", model.MaxRating-full) + " " + strconv.FormatFloat(avg, 'f', 1, 64)
}

func displayName(u *model.PublicUser) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
