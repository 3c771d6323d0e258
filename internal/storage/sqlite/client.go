package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/storage/models"
	"github.com/gradelens/backend/pkg/logger"
)

// Client wraps the grade database. Each course has its own table named by
// the compact course code ("CSCE221") with one row per section; the
// professors and chat_history tables are shared.
type Client struct {
	db *sql.DB
}

var tableNamePattern = regexp.MustCompile(`^[A-Z]{2,4}[0-9]{3}$`)

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS professors (
		name TEXT PRIMARY KEY,
		review_id TEXT,
		department TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_professors_review ON professors(review_id);

	CREATE TABLE IF NOT EXISTS chat_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		query_text TEXT NOT NULL,
		answer TEXT,
		courses TEXT,
		outcome TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_user ON chat_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_chat_created ON chat_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// TableForCode converts a normalized course code ("CSCE 221") to its grade
// table name ("CSCE221"). Codes that do not fit the table-name shape are
// rejected so a code can never smuggle SQL into an identifier position.
func TableForCode(code string) (string, bool) {
	name := strings.ReplaceAll(strings.ToUpper(code), " ", "")
	if !tableNamePattern.MatchString(name) {
		return "", false
	}
	return name, true
}

// CoursesExist checks every code in one round trip against the table
// catalog and reports per-code existence.
func (c *Client) CoursesExist(ctx context.Context, codes []string) (map[string]bool, error) {
	result := make(map[string]bool, len(codes))
	if len(codes) == 0 {
		return result, nil
	}

	tableByCode := make(map[string]string, len(codes))
	placeholders := make([]string, 0, len(codes))
	args := make([]interface{}, 0, len(codes))

	for _, code := range codes {
		result[code] = false
		table, ok := TableForCode(code)
		if !ok {
			continue
		}
		tableByCode[code] = table
		placeholders = append(placeholders, "?")
		args = append(args, table)
	}

	if len(args) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name IN (%s)",
		strings.Join(placeholders, ","),
	)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to check course tables: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate table names: %w", err)
	}

	for code, table := range tableByCode {
		result[code] = found[table]
	}

	return result, nil
}

// CourseTermStats returns per-instructor-per-term aggregates for one course,
// sorted by descending average GPA. A course table with no rows yields an
// empty slice.
func (c *Client) CourseTermStats(ctx context.Context, code string) ([]models.InstructorTermStat, error) {
	table, ok := TableForCode(code)
	if !ok {
		return nil, fmt.Errorf("invalid course code %q", code)
	}

	query := fmt.Sprintf(`
		SELECT instructor, term, COUNT(*) AS sections, AVG(gpa) AS avg_gpa
		FROM "%s"
		GROUP BY instructor, term
		ORDER BY avg_gpa DESC`, table)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query course stats: %w", err)
	}
	defer rows.Close()

	stats := make([]models.InstructorTermStat, 0)
	for rows.Next() {
		var s models.InstructorTermStat
		if err := rows.Scan(&s.Instructor, &s.Term, &s.Sections, &s.AvgGPA); err != nil {
			return nil, fmt.Errorf("failed to scan course stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate course stats: %w", err)
	}

	return stats, nil
}

// ProfessorsByName resolves instructor names to review-site ids in one
// batched lookup. Names without a professors row are simply absent from the
// result.
func (c *Client) ProfessorsByName(ctx context.Context, names []string) ([]models.Professor, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, name := range names {
		placeholders[i] = "?"
		args[i] = name
	}

	query := fmt.Sprintf(
		"SELECT name, review_id, department FROM professors WHERE name IN (%s)",
		strings.Join(placeholders, ","),
	)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query professors: %w", err)
	}
	defer rows.Close()

	professors := make([]models.Professor, 0, len(names))
	for rows.Next() {
		var p models.Professor
		var reviewID, department sql.NullString
		if err := rows.Scan(&p.Name, &reviewID, &department); err != nil {
			return nil, fmt.Errorf("failed to scan professor: %w", err)
		}
		p.ReviewID = reviewID.String
		p.Department = department.String
		professors = append(professors, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate professors: %w", err)
	}

	return professors, nil
}

func (c *Client) InsertChatRecord(ctx context.Context, record *models.ChatRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO chat_history (id, user_id, query_text, answer, courses, outcome, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.QueryText,
		record.Answer,
		record.Courses,
		record.Outcome,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat record: %w", err)
	}
	return nil
}

func (c *Client) RecentChatRecords(ctx context.Context, userID string, limit int) ([]models.ChatRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, query_text, answer, courses, outcome, latency_ms, created_at
		FROM chat_history
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	records := make([]models.ChatRecord, 0, limit)
	for rows.Next() {
		var r models.ChatRecord
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.QueryText, &r.Answer, &r.Courses, &r.Outcome, &r.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat record: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat records: %w", err)
	}

	return records, nil
}
