package policy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// AuditStore persists admission decisions so a denied candidate can be
// traced back to the policy that blocked it.
type AuditStore struct {
	db *sql.DB
}

// OpenAuditStore opens (or creates) the audit database at dbPath.
// ":memory:" yields an ephemeral store for tests.
func OpenAuditStore(dbPath string) (*AuditStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &AuditStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return s, nil
}

func (s *AuditStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS admission_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		decision_id TEXT NOT NULL UNIQUE,
		policy_path TEXT NOT NULL,
		result TEXT NOT NULL,
		violations TEXT NOT NULL DEFAULT '[]',
		input_json TEXT NOT NULL DEFAULT '{}',
		seed_id INTEGER,
		candidate_id INTEGER,
		request_id TEXT,
		evaluated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_admission_seed ON admission_decisions(seed_id);
	CREATE INDEX IF NOT EXISTS idx_admission_result ON admission_decisions(result);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// SaveDecision records one decision. A blank DecisionID gets a fresh UUID,
// a zero EvaluatedAt gets the current time.
func (s *AuditStore) SaveDecision(decision *PolicyDecision) error {
	if decision == nil {
		return fmt.Errorf("decision is nil")
	}
	if decision.DecisionID == "" {
		decision.DecisionID = uuid.New().String()
	}
	if decision.EvaluatedAt.IsZero() {
		decision.EvaluatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO admission_decisions (
			decision_id, policy_path, result, violations, input_json, seed_id, candidate_id, request_id, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		decision.DecisionID,
		decision.PolicyPath,
		decision.Result,
		decision.ViolationsJSON(),
		decision.InputJSON(),
		nullInt(decision.SeedID),
		nullInt(decision.CandidateID),
		nullString(decision.RequestID),
		decision.EvaluatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert admission decision: %w", err)
	}
	return nil
}

// GetDecision fetches one decision by UUID.
func (s *AuditStore) GetDecision(decisionID string) (*PolicyDecision, error) {
	row := s.db.QueryRow(`
		SELECT id, decision_id, policy_path, result, violations, input_json, seed_id, candidate_id, request_id, evaluated_at
		FROM admission_decisions
		WHERE decision_id = ?`, decisionID)
	return scanDecision(row)
}

// ListDecisionsOptions filters ListDecisions.
type ListDecisionsOptions struct {
	SeedID    int       // filter by seed work item
	RequestID string    // filter by pipeline request
	Result    string    // "allow" or "deny"
	Since     time.Time // evaluated_at >= Since
	Limit     int       // 0 means no limit
}

// ListDecisions fetches decisions newest-first with optional filters.
func (s *AuditStore) ListDecisions(opts ListDecisionsOptions) ([]*PolicyDecision, error) {
	query := `
		SELECT id, decision_id, policy_path, result, violations, input_json, seed_id, candidate_id, request_id, evaluated_at
		FROM admission_decisions
		WHERE 1=1`
	args := []any{}

	if opts.SeedID != 0 {
		query += " AND seed_id = ?"
		args = append(args, opts.SeedID)
	}
	if opts.RequestID != "" {
		query += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Result != "" {
		query += " AND result = ?"
		args = append(args, opts.Result)
	}
	if !opts.Since.IsZero() {
		query += " AND evaluated_at >= ?"
		args = append(args, opts.Since.Format(time.RFC3339))
	}
	query += " ORDER BY evaluated_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query admission decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []*PolicyDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// CountDenials counts deny outcomes since the given time.
func (s *AuditStore) CountDenials(since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM admission_decisions WHERE result = 'deny' AND evaluated_at >= ?",
		since.Format(time.RFC3339),
	).Scan(&count)
	return count, err
}

// PruneOldDecisions removes decisions older than the given age and reports
// how many were dropped.
func (s *AuditStore) PruneOldDecisions(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.Exec(
		"DELETE FROM admission_decisions WHERE evaluated_at < ?",
		cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("prune old decisions: %w", err)
	}
	return result.RowsAffected()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(row scanner) (*PolicyDecision, error) {
	var d PolicyDecision
	var violationsJSON, inputJSON, evaluatedAt string
	var seedID, candidateID sql.NullInt64
	var requestID sql.NullString

	err := row.Scan(
		&d.ID,
		&d.DecisionID,
		&d.PolicyPath,
		&d.Result,
		&violationsJSON,
		&inputJSON,
		&seedID,
		&candidateID,
		&requestID,
		&evaluatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("decision not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan admission decision: %w", err)
	}

	d.Violations = ParseViolations(violationsJSON)
	if inputJSON != "" && inputJSON != "{}" {
		var input any
		if err := json.Unmarshal([]byte(inputJSON), &input); err == nil {
			d.Input = input
		}
	}
	d.SeedID = int(seedID.Int64)
	d.CandidateID = int(candidateID.Int64)
	d.RequestID = requestID.String
	d.EvaluatedAt, _ = time.Parse(time.RFC3339, evaluatedAt)
	return &d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}
