package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/choppy/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// An in-memory database lives per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Batch runs ---

// CreateBatch inserts run and, when present, its records in one transaction.
func (s *SQLiteStore) CreateBatch(ctx context.Context, run *model.BatchRun) error {
	s.logger.Debug("sql", "op", "insert", "table", "batches", "id", run.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (id, project_name, app, server, username, dry_run, succeeded, failed, project_dir, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectName, run.App, run.Server, run.Username, boolToInt(run.DryRun),
		run.Succeeded, run.Failed, run.ProjectDir, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	if err := insertRecords(ctx, tx, run.Records); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.BatchRun, error) {
	s.logger.Debug("sql", "op", "select", "table", "batches", "id", id)

	run, err := scanBatch(s.db.QueryRowContext(ctx,
		`SELECT id, project_name, app, server, username, dry_run, succeeded, failed, project_dir, created_at
		 FROM batches WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if run.Records, err = s.ListRecords(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context, opts model.ListOptions) ([]*model.BatchRun, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "batches", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	// Build WHERE clause dynamically based on filters.
	var whereClauses []string
	var countArgs []any

	if opts.Project != "" {
		whereClauses = append(whereClauses, "project_name = ?")
		countArgs = append(countArgs, opts.Project)
	}
	if opts.Username != "" {
		whereClauses = append(whereClauses, "username = ?")
		countArgs = append(countArgs, opts.Username)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT id, project_name, app, server, username, dry_run, succeeded, failed, project_dir, created_at
		FROM batches` + whereSQL + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.BatchRun
	for rows.Next() {
		run, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// --- Batch records ---

func (s *SQLiteStore) AddRecords(ctx context.Context, records []model.BatchRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "batch_records", "count", len(records))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRecords(ctx context.Context, batchID string) ([]model.BatchRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "batch_records", "batch_id", batchID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, position, sample_id, workflow_id, state, error, record
		 FROM batch_records WHERE batch_id = ? ORDER BY position`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BatchRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindByWorkflowID(ctx context.Context, workflowID string) (*model.BatchRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "batch_records", "workflow_id", workflowID)

	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT batch_id, position, sample_id, workflow_id, state, error, record
		 FROM batch_records WHERE workflow_id = ? LIMIT 1`, workflowID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*model.BatchRun, error) {
	var run model.BatchRun
	var dryRun int
	var createdAt string
	if err := row.Scan(&run.ID, &run.ProjectName, &run.App, &run.Server, &run.Username, &dryRun,
		&run.Succeeded, &run.Failed, &run.ProjectDir, &createdAt); err != nil {
		return nil, err
	}
	run.DryRun = dryRun != 0
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &run, nil
}

func scanRecord(row scanner) (*model.BatchRecord, error) {
	var rec model.BatchRecord
	var state, recordJSON string
	if err := row.Scan(&rec.BatchID, &rec.Position, &rec.SampleID, &rec.WorkflowID,
		&state, &rec.Error, &recordJSON); err != nil {
		return nil, err
	}
	rec.State = model.RecordState(state)
	rec.Record = model.NewRecord()
	if err := json.Unmarshal([]byte(recordJSON), rec.Record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, records []model.BatchRecord) error {
	for _, rec := range records {
		recordJSON := []byte("{}")
		if rec.Record != nil {
			var err error
			if recordJSON, err = json.Marshal(rec.Record); err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO batch_records (batch_id, position, sample_id, workflow_id, state, error, record)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.BatchID, rec.Position, rec.SampleID, rec.WorkflowID, string(rec.State), rec.Error, string(recordJSON),
		)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", rec.Position, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
