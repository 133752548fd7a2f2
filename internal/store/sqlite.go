package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/reviewd/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
//
// Each SQLiteStore owns its own connection. The serving process holds one
// long-lived instance; every review pipeline process opens a separate
// short-lived instance against the same file, so a stalled pipeline can
// never starve the serving connection. WAL plus busy_timeout makes the
// cross-process writes safe.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all access through Go's connection pool.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads across processes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so writes from concurrent processes wait instead
	// of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Reviews ---

func (s *SQLiteStore) CreateReview(ctx context.Context, r *models.Review) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.Status == "" {
		r.Status = models.ReviewStatusPending
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, repository_url, revision, requester, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RepositoryURL, r.Revision, r.Requester, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repository_url, revision, requester, status, classification, standards, result, failure_kind, failure_cause, created_at, updated_at, completed_at
		FROM reviews WHERE id = ?`, id)

	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.Review, error) {
	query := `SELECT id, repository_url, revision, requester, status, classification, standards, result, failure_kind, failure_cause, created_at, updated_at, completed_at
		FROM reviews`
	var args []any

	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReview(sc scanner) (*models.Review, error) {
	r := &models.Review{}
	var status string
	var classification, standards, result, failureKind, failureCause sql.NullString
	var completedAt sql.NullTime

	if err := sc.Scan(&r.ID, &r.RepositoryURL, &r.Revision, &r.Requester, &status,
		&classification, &standards, &result, &failureKind, &failureCause,
		&r.CreatedAt, &r.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}

	r.Status = models.ReviewStatus(status)
	if classification.Valid {
		c := &models.Classification{}
		if err := json.Unmarshal([]byte(classification.String), c); err != nil {
			return nil, fmt.Errorf("decode classification: %w", err)
		}
		r.Classification = c
	}
	if standards.Valid {
		if err := json.Unmarshal([]byte(standards.String), &r.Standards); err != nil {
			return nil, fmt.Errorf("decode standards: %w", err)
		}
	}
	if result.Valid {
		res := &models.Result{}
		if err := json.Unmarshal([]byte(result.String), res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		r.Result = res
	}
	if failureKind.Valid {
		r.Failure = &models.Failure{
			Kind:  models.FailureKind(failureKind.String),
			Cause: failureCause.String,
		}
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return r, nil
}

// transition atomically applies a status-bearing update. It reads the
// current status inside a transaction, refuses any write that would move
// the record backward or out of a terminal state, and appends the status
// and updated_at columns to the caller's SET clause.
func (s *SQLiteStore) transition(ctx context.Context, id string, next models.ReviewStatus, setClause string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM reviews WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("review %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	if !models.ReviewStatus(current).CanTransitionTo(next) {
		return fmt.Errorf("review %s: %s -> %s: %w", id, current, next, ErrStatusRegression)
	}

	set := "status=?, updated_at=?"
	if setClause != "" {
		set = setClause + ", " + set
	}
	args = append(args, string(next), time.Now().UTC(), id)

	if _, err := tx.ExecContext(ctx, "UPDATE reviews SET "+set+" WHERE id=?", args...); err != nil {
		return fmt.Errorf("update review: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status models.ReviewStatus) error {
	if status.Terminal() {
		return fmt.Errorf("review %s: %s is terminal, use CompleteReview or FailReview: %w", id, status, ErrStatusRegression)
	}
	return s.transition(ctx, id, status, "")
}

func (s *SQLiteStore) SetClassification(ctx context.Context, id string, c models.Classification, status models.ReviewStatus) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode classification: %w", err)
	}
	return s.transition(ctx, id, status, "classification=?", string(data))
}

func (s *SQLiteStore) SetStandards(ctx context.Context, id string, refs []models.StandardRef, status models.ReviewStatus) error {
	if refs == nil {
		refs = []models.StandardRef{}
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode standards: %w", err)
	}
	return s.transition(ctx, id, status, "standards=?", string(data))
}

func (s *SQLiteStore) CompleteReview(ctx context.Context, id string, result models.Result) error {
	if result.Findings == nil {
		result.Findings = []models.Finding{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.transition(ctx, id, models.ReviewStatusCompleted,
		"result=?, completed_at=?", string(data), time.Now().UTC())
}

func (s *SQLiteStore) FailReview(ctx context.Context, id string, kind models.FailureKind, cause string) error {
	return s.transition(ctx, id, models.ReviewStatusFailed,
		"failure_kind=?, failure_cause=?, completed_at=?", string(kind), cause, time.Now().UTC())
}

// --- Standards ---

func (s *SQLiteStore) CreateStandard(ctx context.Context, std *models.Standard) error {
	if std.ID == "" {
		std.ID = newULID()
	}
	if std.Version == "" {
		std.Version = "1"
	}
	if std.Scope == "" {
		std.Scope = "org"
	}
	now := time.Now().UTC()
	std.CreatedAt = now
	std.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO standards (id, name, version, scope, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		std.ID, std.Name, std.Version, std.Scope, std.Text, std.CreatedAt, std.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create standard: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertStandard(ctx context.Context, std *models.Standard) error {
	if std.ID == "" {
		std.ID = newULID()
	}
	if std.Version == "" {
		std.Version = "1"
	}
	if std.Scope == "" {
		std.Scope = "org"
	}
	now := time.Now().UTC()
	std.CreatedAt = now
	std.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO standards (id, name, version, scope, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, version) DO UPDATE SET scope=excluded.scope, text=excluded.text, updated_at=excluded.updated_at`,
		std.ID, std.Name, std.Version, std.Scope, std.Text, std.CreatedAt, std.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert standard: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetStandard(ctx context.Context, id string) (*models.Standard, error) {
	std := &models.Standard{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, version, scope, text, created_at, updated_at FROM standards WHERE id = ?`, id,
	).Scan(&std.ID, &std.Name, &std.Version, &std.Scope, &std.Text, &std.CreatedAt, &std.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("standard %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get standard: %w", err)
	}
	return std, nil
}

func (s *SQLiteStore) ListStandards(ctx context.Context) ([]*models.Standard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, version, scope, text, created_at, updated_at FROM standards ORDER BY scope, name`)
	if err != nil {
		return nil, fmt.Errorf("list standards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanStandards(rows)
}

// QueryStandards returns standards whose scope matches any of the given
// tags, plus organization-wide defaults (scope "org"), which apply to
// every repository.
func (s *SQLiteStore) QueryStandards(ctx context.Context, scopes []string) ([]*models.Standard, error) {
	placeholders := make([]string, 0, len(scopes))
	args := make([]any, 0, len(scopes))
	for _, scope := range scopes {
		placeholders = append(placeholders, "?")
		args = append(args, scope)
	}

	query := `SELECT id, name, version, scope, text, created_at, updated_at FROM standards WHERE scope = 'org'`
	if len(placeholders) > 0 {
		query = `SELECT id, name, version, scope, text, created_at, updated_at FROM standards
		WHERE scope IN (` + strings.Join(placeholders, ", ") + `) OR scope = 'org'`
	}
	query += " ORDER BY scope, name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query standards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanStandards(rows)
}

func scanStandards(rows *sql.Rows) ([]*models.Standard, error) {
	var standards []*models.Standard
	for rows.Next() {
		std := &models.Standard{}
		if err := rows.Scan(&std.ID, &std.Name, &std.Version, &std.Scope, &std.Text, &std.CreatedAt, &std.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan standard: %w", err)
		}
		standards = append(standards, std)
	}
	return standards, rows.Err()
}
