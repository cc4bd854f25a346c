package residue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"evoforge/internal/logging"
)

// Store persists residue entries in SQLite. Entries are append-only.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the residue database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create residue directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open residue database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS residue (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		category TEXT NOT NULL,
		summary TEXT NOT NULL,
		detail TEXT,
		excerpt TEXT,
		score REAL DEFAULT 0,
		goal TEXT,
		domain TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_residue_task ON residue(task_id);
	CREATE INDEX IF NOT EXISTS idx_residue_domain ON residue(domain);
	CREATE INDEX IF NOT EXISTS idx_residue_category ON residue(category);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create residue schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends one entry. The entry's ID and CreatedAt are assigned here.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO residue (id, task_id, cycle, category, summary, detail, excerpt, score, goal, domain, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.Cycle, string(e.Category), e.Summary, e.Detail, e.Excerpt, e.Score, e.Goal, e.Domain, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert residue entry: %w", err)
	}
	logging.Residue("recorded %s for task %s cycle %d: %s", e.Category, e.TaskID, e.Cycle, e.Summary)
	return nil
}

// ByTask returns all entries for a task in cycle order.
func (s *Store) ByTask(ctx context.Context, taskID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, cycle, category, summary, detail, excerpt, score, goal, domain, created_at
		FROM residue WHERE task_id = ? ORDER BY cycle, created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query residue: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Query describes what FindRelevant should match against.
type Query struct {
	Goal     string
	Domain   string
	Artifact string
}

// FindRelevant returns up to limit entries ranked by keyword overlap with the
// query, most relevant first. Domain matches are required when the query
// carries a domain.
func (s *Store) FindRelevant(ctx context.Context, q Query, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}

	var (
		rows *sql.Rows
		err  error
	)
	if q.Domain != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, task_id, cycle, category, summary, detail, excerpt, score, goal, domain, created_at
			FROM residue WHERE domain = ? ORDER BY created_at DESC LIMIT 500`, q.Domain)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, task_id, cycle, category, summary, detail, excerpt, score, goal, domain, created_at
			FROM residue ORDER BY created_at DESC LIMIT 500`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query residue: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	keywords := tokenize(q.Goal + " " + q.Artifact)
	type ranked struct {
		entry Entry
		score int
	}
	var hits []ranked
	for _, e := range entries {
		text := strings.ToLower(e.Summary + " " + e.Detail + " " + e.Goal)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, ranked{entry: e, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Entry, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	return out, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var category string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Cycle, &category, &e.Summary, &e.Detail,
			&e.Excerpt, &e.Score, &e.Goal, &e.Domain, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan residue entry: %w", err)
		}
		e.Category = Category(category)
		out = append(out, e)
	}
	return out, rows.Err()
}
