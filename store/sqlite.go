// Package store persists scraped books to a SQLite snapshot database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aluiziolira/go-scrape-books/models"
	"github.com/aluiziolira/go-scrape-books/pipeline"
	"github.com/cespare/xxhash/v2"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var _ pipeline.OutputWriter = (*SQLiteWriter)(nil)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("store: closed")

// SQLite binds at most 32766 parameters per statement.
const maxBindParams = 32766

var maxRowsPerInsert = maxBindParams / len(bookColumns)

var bookColumns = []string{
	"run_id",
	"upc",
	"title",
	"category",
	"product_type",
	"price_excl_tax",
	"price_inc_tax",
	"tax",
	"availability",
	"num_reviews",
	"url",
	"fingerprint",
	"scraped_at",
}

// SQLiteWriter appends the books of one run to a books table. Rows are keyed
// by (run_id, upc), so several runs can share one database file.
type SQLiteWriter struct {
	path      string
	runID     string
	scrapedAt string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteWriter opens (or creates) the database at path and prepares the
// schema. Use ":memory:" for an in-memory database.
func NewSQLiteWriter(path, runID string) (*SQLiteWriter, error) {
	if runID == "" {
		return nil, fmt.Errorf("store: run id is required")
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteWriter{
		path:      path,
		runID:     runID,
		scrapedAt: time.Now().UTC().Format(time.RFC3339),
		db:        db,
	}, nil
}

func open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return conn, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS books (
		run_id TEXT NOT NULL,
		upc TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		product_type TEXT NOT NULL DEFAULT '',
		price_excl_tax TEXT NOT NULL DEFAULT '',
		price_inc_tax TEXT NOT NULL DEFAULT '',
		tax TEXT NOT NULL DEFAULT '',
		availability TEXT NOT NULL DEFAULT '',
		num_reviews TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL,
		scraped_at TEXT NOT NULL,
		PRIMARY KEY (run_id, upc)
	);

	CREATE INDEX IF NOT EXISTS idx_books_category ON books(category);
`

// Write inserts one batch inside a transaction.
func (w *SQLiteWriter) Write(books []*models.Book) error {
	if len(books) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return ErrClosed
	}

	ctx := context.Background()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	for start := 0; start < len(books); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(books))
		if _, err := w.insert(books[start:end]).RunWith(tx).ExecContext(ctx); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert books: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit books: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) insert(books []*models.Book) sq.InsertBuilder {
	insert := sq.Insert("books").Columns(bookColumns...).Options("OR REPLACE")
	for _, b := range books {
		insert = insert.Values(
			w.runID,
			b.UPC,
			b.Title,
			b.Category,
			b.ProductType,
			b.PriceExclTax,
			b.PriceInclTax,
			b.Tax,
			b.Availability,
			b.NumReviews,
			b.URL,
			Fingerprint(b),
			w.scrapedAt,
		)
	}
	return insert
}

// Close closes the database. It is safe to call more than once.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}

// Validate checks that the books table is readable for this run. After Close
// a file-backed database is reopened for the check.
func (w *SQLiteWriter) Validate() error {
	w.mu.Lock()
	db := w.db
	w.mu.Unlock()

	if db == nil {
		if w.path == ":memory:" {
			return ErrClosed
		}
		reopened, err := open(w.path)
		if err != nil {
			return err
		}
		defer reopened.Close()
		db = reopened
	}

	if _, err := countBooks(context.Background(), db, w.runID); err != nil {
		return fmt.Errorf("validate books table: %w", err)
	}
	return nil
}

// Count returns the number of rows stored for this writer's run.
func (w *SQLiteWriter) Count(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return 0, ErrClosed
	}
	return countBooks(ctx, w.db, w.runID)
}

func countBooks(ctx context.Context, db *sql.DB, runID string) (int, error) {
	var n int
	err := sq.Select("COUNT(*)").
		From("books").
		Where(sq.Eq{"run_id": runID}).
		RunWith(db).
		QueryRowContext(ctx).
		Scan(&n)
	return n, err
}

// Fingerprint hashes the exported fields of a book, so unchanged listings can
// be recognised across runs.
func Fingerprint(b *models.Book) string {
	fields := []string{
		b.Title,
		b.Category,
		b.UPC,
		b.ProductType,
		b.PriceExclTax,
		b.PriceInclTax,
		b.Tax,
		b.Availability,
		b.NumReviews,
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(fields, "\x1f")))
}
